// internal/ledger/ledger.go
package ledger

import (
	"CoverLedger/internal/errs"
	fpmath "CoverLedger/internal/math"

	"github.com/google/uuid"
)

// Ledger is the shared account store. Every mutation is gated to
// registered movers, preserves the refundable/non-refundable split,
// and appends an audit entry to the pending buffer, which the engine
// drains on operation success.
//
// Not thread-safe — only accessed under the engine's execution slot.
type Ledger struct {
	accounts  map[uuid.UUID]*Account
	movers    *MoverRegistry
	retainers *RetainerRegistry

	// pending audit entries for the in-flight operation
	pending []Entry
}

func NewLedger() *Ledger {
	return &Ledger{
		accounts:  make(map[uuid.UUID]*Account),
		movers:    NewMoverRegistry(),
		retainers: NewRetainerRegistry(),
		pending:   make([]Entry, 0, 8),
	}
}

func (l *Ledger) Movers() *MoverRegistry       { return l.movers }
func (l *Ledger) Retainers() *RetainerRegistry { return l.retainers }

func (l *Ledger) requireMover(caller uuid.UUID) error {
	if !l.movers.IsActive(caller) {
		return errs.Newf(errs.Authorization, "caller %s is not a registered mover", caller)
	}
	return nil
}

func (l *Ledger) getOrCreate(addr uuid.UUID) *Account {
	acc := l.accounts[addr]
	if acc == nil {
		acc = &Account{Address: addr}
		l.accounts[addr] = acc
	}
	return acc
}

func (l *Ledger) record(kind EntryKind, from, to uuid.UUID, amount, nrShare int64) {
	l.pending = append(l.pending, Entry{
		EntryID:            uuid.New(),
		Kind:               kind,
		From:               from,
		To:                 to,
		Amount:             amount,
		NonRefundableShare: nrShare,
	})
}

// Mint credits new balance to an account. Non-refundable mints raise
// the account's non-refundable share by the full amount.
func (l *Ledger) Mint(caller, to uuid.UUID, amount int64, isNonRefundable bool) (int64, int64, error) {
	if err := l.requireMover(caller); err != nil {
		return 0, 0, err
	}
	if to == uuid.Nil {
		return 0, 0, errs.New(errs.Validation, "mint to zero address")
	}
	if amount <= 0 {
		return 0, 0, errs.New(errs.Validation, "non-positive mint amount")
	}

	acc := l.getOrCreate(to)
	acc.Balance += amount
	var nrShare int64
	if isNonRefundable {
		acc.NonRefundable += amount
		nrShare = amount
	}

	l.record(EntryKindMint, uuid.Nil, to, amount, nrShare)
	return acc.Balance, acc.NonRefundable, nil
}

// Burn destroys balance. The non-refundable share of the removed
// amount is consumed proportionally.
func (l *Ledger) Burn(caller, from uuid.UUID, amount int64) (int64, int64, error) {
	if err := l.requireMover(caller); err != nil {
		return 0, 0, err
	}
	if from == uuid.Nil {
		return 0, 0, errs.New(errs.Validation, "burn from zero address")
	}
	if amount <= 0 {
		return 0, 0, errs.New(errs.Validation, "non-positive burn amount")
	}

	acc := l.getOrCreate(from)
	if amount > acc.Balance {
		return 0, 0, errs.Newf(errs.Balance, "burn %d exceeds balance %d", amount, acc.Balance)
	}

	nrShare := fpmath.ProportionalShare(amount, acc.NonRefundable, acc.Balance)
	acc.Balance -= amount
	acc.NonRefundable -= nrShare

	l.record(EntryKindBurn, from, uuid.Nil, amount, nrShare)
	return acc.Balance, acc.NonRefundable, nil
}

// Transfer moves the caller's own balance. The proportional
// non-refundable share travels with the amount.
func (l *Ledger) Transfer(caller, to uuid.UUID, amount int64) (int64, int64, error) {
	return l.TransferFrom(caller, caller, to, amount)
}

// TransferFrom moves balance between two accounts on behalf of a
// mover. The proportional non-refundable share of the moved amount is
// deducted from the sender and credited to the recipient, conserving
// the global non-refundable total.
func (l *Ledger) TransferFrom(caller, from, to uuid.UUID, amount int64) (int64, int64, error) {
	if err := l.requireMover(caller); err != nil {
		return 0, 0, err
	}
	if from == uuid.Nil || to == uuid.Nil {
		return 0, 0, errs.New(errs.Validation, "transfer with zero address")
	}
	if from == to {
		return 0, 0, errs.New(errs.Validation, "self transfer")
	}
	if amount <= 0 {
		return 0, 0, errs.New(errs.Validation, "non-positive transfer amount")
	}

	src := l.getOrCreate(from)
	if amount > src.Balance {
		return 0, 0, errs.Newf(errs.Balance, "transfer %d exceeds balance %d", amount, src.Balance)
	}
	dst := l.getOrCreate(to)

	nrShare := fpmath.ProportionalShare(amount, src.NonRefundable, src.Balance)
	src.Balance -= amount
	src.NonRefundable -= nrShare
	dst.Balance += amount
	dst.NonRefundable += nrShare

	l.record(EntryKindTransfer, from, to, amount, nrShare)
	return src.Balance, src.NonRefundable, nil
}

// Withdraw removes balance out of the system. Fails when the
// resulting balance drops below the aggregate retainer floor. The
// non-refundable share of the removed amount is consumed
// proportionally, so once no floor applies the entire balance is
// withdrawable.
func (l *Ledger) Withdraw(caller, from uuid.UUID, amount int64) (int64, int64, error) {
	if err := l.requireMover(caller); err != nil {
		return 0, 0, err
	}
	if from == uuid.Nil {
		return 0, 0, errs.New(errs.Validation, "withdraw from zero address")
	}
	if amount <= 0 {
		return 0, 0, errs.New(errs.Validation, "non-positive withdraw amount")
	}

	acc := l.getOrCreate(from)
	if amount > acc.Balance {
		return 0, 0, errs.Newf(errs.Balance, "withdraw %d exceeds balance %d", amount, acc.Balance)
	}

	floor := l.retainers.MinBalanceRequired(from)
	if acc.Balance-amount < floor {
		return 0, 0, errs.Newf(errs.Balance, "withdraw would leave balance %d below retained floor %d",
			acc.Balance-amount, floor).
			WithDetail("floor", floor).
			WithDetail("balance", acc.Balance)
	}

	nrShare := fpmath.ProportionalShare(amount, acc.NonRefundable, acc.Balance)
	acc.Balance -= amount
	acc.NonRefundable -= nrShare

	l.record(EntryKindWithdraw, from, uuid.Nil, amount, nrShare)
	return acc.Balance, acc.NonRefundable, nil
}

// AddRewardPoints credits non-withdrawable reward points.
func (l *Ledger) AddRewardPoints(caller, to uuid.UUID, amount int64) error {
	if err := l.requireMover(caller); err != nil {
		return err
	}
	if to == uuid.Nil {
		return errs.New(errs.Validation, "reward to zero address")
	}
	if amount <= 0 {
		return errs.New(errs.Validation, "non-positive reward amount")
	}

	acc := l.getOrCreate(to)
	acc.RewardPoints += amount

	l.record(EntryKindRewardAccrue, uuid.Nil, to, amount, 0)
	return nil
}

// SpendRewardPoints consumes reward points against a premium charge.
func (l *Ledger) SpendRewardPoints(caller, from uuid.UUID, amount int64) error {
	if err := l.requireMover(caller); err != nil {
		return err
	}
	if amount <= 0 {
		return errs.New(errs.Validation, "non-positive reward spend")
	}

	acc := l.getOrCreate(from)
	if amount > acc.RewardPoints {
		return errs.Newf(errs.Balance, "reward spend %d exceeds points %d", amount, acc.RewardPoints)
	}
	acc.RewardPoints -= amount

	l.record(EntryKindRewardSpend, from, uuid.Nil, amount, 0)
	return nil
}

// SetCooldownStart stamps the withdrawal cooldown (unix seconds).
func (l *Ledger) SetCooldownStart(caller, account uuid.UUID, start int64) error {
	if err := l.requireMover(caller); err != nil {
		return err
	}
	l.getOrCreate(account).CooldownStart = start
	return nil
}

// ClearCooldown resets a running withdrawal cooldown.
func (l *Ledger) ClearCooldown(caller, account uuid.UUID) error {
	if err := l.requireMover(caller); err != nil {
		return err
	}
	l.getOrCreate(account).CooldownStart = 0
	return nil
}

// MarkReferralUsed permanently flags the account as having redeemed a
// referral code.
func (l *Ledger) MarkReferralUsed(caller, account uuid.UUID) error {
	if err := l.requireMover(caller); err != nil {
		return err
	}
	l.getOrCreate(account).UsedReferralCode = true
	return nil
}

// --- Reads ---

// AccountOf returns a copy of the account record.
func (l *Ledger) AccountOf(addr uuid.UUID) (Account, bool) {
	acc := l.accounts[addr]
	if acc == nil {
		return Account{Address: addr}, false
	}
	return *acc, true
}

func (l *Ledger) BalanceOf(addr uuid.UUID) int64 {
	if acc := l.accounts[addr]; acc != nil {
		return acc.Balance
	}
	return 0
}

func (l *Ledger) NonRefundableOf(addr uuid.UUID) int64 {
	if acc := l.accounts[addr]; acc != nil {
		return acc.NonRefundable
	}
	return 0
}

func (l *Ledger) RewardPointsOf(addr uuid.UUID) int64 {
	if acc := l.accounts[addr]; acc != nil {
		return acc.RewardPoints
	}
	return 0
}

func (l *Ledger) CooldownStartOf(addr uuid.UUID) int64 {
	if acc := l.accounts[addr]; acc != nil {
		return acc.CooldownStart
	}
	return 0
}

func (l *Ledger) HasUsedReferralCode(addr uuid.UUID) bool {
	if acc := l.accounts[addr]; acc != nil {
		return acc.UsedReferralCode
	}
	return false
}

// MinBalanceRequired returns the aggregate retainer floor for addr.
func (l *Ledger) MinBalanceRequired(addr uuid.UUID) int64 {
	return l.retainers.MinBalanceRequired(addr)
}

// TotalSupply sums every account balance.
func (l *Ledger) TotalSupply() int64 {
	var total int64
	for _, acc := range l.accounts {
		total += acc.Balance
	}
	return total
}

// --- Pending entries ---

// DrainEntries returns and clears the audit entries of the in-flight
// operation.
func (l *Ledger) DrainEntries() []Entry {
	drained := l.pending
	l.pending = make([]Entry, 0, 8)
	return drained
}

// DiscardEntries drops pending audit entries after a failed operation.
func (l *Ledger) DiscardEntries() {
	l.pending = l.pending[:0]
}

// --- Invariants & snapshot hooks ---

// ValidateInvariants checks the split bound on every account.
func (l *Ledger) ValidateInvariants() error {
	for addr, acc := range l.accounts {
		if acc.Balance < 0 {
			return errs.Newf(errs.State, "account %s has negative balance %d", addr, acc.Balance)
		}
		if acc.NonRefundable < 0 || acc.NonRefundable > acc.Balance {
			return errs.Newf(errs.State, "account %s non-refundable %d outside [0, %d]",
				addr, acc.NonRefundable, acc.Balance)
		}
		if acc.RewardPoints < 0 {
			return errs.Newf(errs.State, "account %s has negative reward points %d", addr, acc.RewardPoints)
		}
	}
	return nil
}

// Accounts returns copies of all account records (snapshot creation).
func (l *Ledger) Accounts() []Account {
	out := make([]Account, 0, len(l.accounts))
	for _, acc := range l.accounts {
		out = append(out, *acc)
	}
	return out
}

// RestoreAccount directly sets an account record (snapshot restore).
func (l *Ledger) RestoreAccount(acc Account) {
	copied := acc
	l.accounts[acc.Address] = &copied
}

// ReplayEntry reapplies a persisted audit entry to account state.
// Recovery only: mover gating, floor checks, and entry recording are
// all skipped, so entries must be replayed exactly once and in log
// order.
func (l *Ledger) ReplayEntry(entry Entry) {
	switch entry.Kind {
	case EntryKindMint:
		acc := l.getOrCreate(entry.To)
		acc.Balance += entry.Amount
		acc.NonRefundable += entry.NonRefundableShare
	case EntryKindBurn:
		acc := l.getOrCreate(entry.From)
		acc.Balance -= entry.Amount
		acc.NonRefundable -= entry.NonRefundableShare
	case EntryKindTransfer:
		src := l.getOrCreate(entry.From)
		src.Balance -= entry.Amount
		src.NonRefundable -= entry.NonRefundableShare
		dst := l.getOrCreate(entry.To)
		dst.Balance += entry.Amount
		dst.NonRefundable += entry.NonRefundableShare
	case EntryKindWithdraw:
		acc := l.getOrCreate(entry.From)
		acc.Balance -= entry.Amount
		acc.NonRefundable -= entry.NonRefundableShare
	case EntryKindRewardAccrue:
		l.getOrCreate(entry.To).RewardPoints += entry.Amount
	case EntryKindRewardSpend:
		l.getOrCreate(entry.From).RewardPoints -= entry.Amount
	}
}
