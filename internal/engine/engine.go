// internal/engine/engine.go
package engine

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"CoverLedger/internal/claims"
	"CoverLedger/internal/clock"
	"CoverLedger/internal/cover"
	"CoverLedger/internal/errs"
	"CoverLedger/internal/event"
	"CoverLedger/internal/gov"
	"CoverLedger/internal/ledger"
	"CoverLedger/internal/observability"
	"CoverLedger/internal/payment"
	"CoverLedger/internal/risk"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Command types carried as idempotency namespaces for collector
// batches.
const (
	CommandChargePremiums = "charge_premiums"
	CommandCancelPolicies = "cancel_policies"
)

// Output is one enveloped event leaving the engine. The ledger entries
// of an operation ride on its first Output; later Outputs of the same
// operation carry nil Entries.
type Output struct {
	Envelope *event.EventEnvelope
	Entries  []ledger.Entry
}

// Engine is the single-writer execution slot in front of all domain
// state. Every mutating operation runs to completion under the mutex:
// validation errors discard the operation's pending events and entries,
// success seals them into hash-chained envelopes and hands them to the
// persistence and projection stages.
//
// All state the engine guards (ledger, risk manager, product,
// governance, signer set, asset registry) is only ever touched through
// it; the components themselves are not thread-safe.
type Engine struct {
	mu sync.Mutex

	ledger  *ledger.Ledger
	pool    *ledger.PremiumPool
	risk    *risk.Manager
	product *cover.Product
	gov     *gov.Authority
	signers *claims.SignerSet
	assets  *payment.Registry
	outbox  *event.Outbox
	clock   clock.Clock

	sequence int64
	hasher   *StateHasher
	entropy  io.Reader
	dedup    *Dedup

	persistChan    chan<- Output
	projectionChan chan<- Output

	metrics *observability.Metrics
}

func NewEngine(
	led *ledger.Ledger,
	pool *ledger.PremiumPool,
	riskMgr *risk.Manager,
	product *cover.Product,
	authority *gov.Authority,
	signers *claims.SignerSet,
	assets *payment.Registry,
	outbox *event.Outbox,
	clk clock.Clock,
	dedup *Dedup,
	persistChan, projectionChan chan<- Output,
	metrics *observability.Metrics,
) *Engine {
	return &Engine{
		ledger:         led,
		pool:           pool,
		risk:           riskMgr,
		product:        product,
		gov:            authority,
		signers:        signers,
		assets:         assets,
		outbox:         outbox,
		clock:          clk,
		sequence:       0,
		hasher:         NewStateHasher(),
		entropy:        ulid.Monotonic(rand.Reader, 0),
		dedup:          dedup,
		persistChan:    persistChan,
		projectionChan: projectionChan,
		metrics:        metrics,
	}
}

// =============================================================
// Execution pipeline
// =============================================================

func (e *Engine) execute(op string, fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.executeLocked(op, "", fn)
}

func (e *Engine) executeLocked(op, commandRef string, fn func() error) error {
	start := time.Now()

	if err := fn(); err != nil {
		e.outbox.Discard()
		e.ledger.DiscardEntries()
		if e.metrics != nil {
			reason := "internal"
			if category, ok := errs.CategoryOf(err); ok {
				reason = string(category)
			}
			e.metrics.CoreOpsRejected.WithLabelValues(op, reason).Inc()
		}
		return err
	}

	e.postCheckInvariants(op)
	e.flush(op, commandRef)

	if e.metrics != nil {
		e.metrics.CoreOpsApplied.WithLabelValues(op).Inc()
		e.metrics.CoreOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		e.metrics.CoreSequence.Set(float64(e.sequence))
	}
	return nil
}

// flush seals the operation's pending events and entries into
// envelopes and emits them downstream. A no-op operation (repeat
// purchase at the current limit, batch entry skips) emits nothing and
// does not advance the sequence.
func (e *Engine) flush(op, commandRef string) {
	events := e.outbox.Drain()
	entries := e.ledger.DrainEntries()
	if len(events) == 0 && len(entries) == 0 {
		return
	}
	if len(events) == 0 {
		panic(fmt.Sprintf("FATAL: %s recorded %d ledger entries without a domain event", op, len(entries)))
	}

	now := e.clock.Now()

	hashStart := time.Now()
	digest := e.computeStateDigest(events, entries)
	if e.metrics != nil {
		e.metrics.CoreStateHashDur.Observe(time.Since(hashStart).Seconds())
	}

	for i, evt := range events {
		prev := e.hasher.PrevHash()
		stateHash := e.hasher.ComputeHash(e.sequence, digest)

		envelope := &event.EventEnvelope{
			Sequence:   e.sequence,
			EventID:    e.newEventID(now),
			EventType:  evt.EventType(),
			Account:    evt.Account(),
			Timestamp:  now,
			CommandRef: commandRef,
			Payload:    evt,
			StateHash:  stateHash,
			PrevHash:   prev,
		}
		e.sequence++

		out := Output{Envelope: envelope}
		if i == 0 {
			out.Entries = entries
		}
		e.emit(out)

		if e.metrics != nil {
			e.metrics.CoreEventsEmitted.WithLabelValues(evt.EventType().String()).Inc()
		}
	}

	if e.metrics != nil {
		for _, entry := range entries {
			e.metrics.CoreEntriesRecorded.WithLabelValues(entry.Kind.String()).Inc()
		}
	}
}

func (e *Engine) emit(out Output) {
	if e.persistChan != nil {
		select {
		case e.persistChan <- out:
		default:
			// Persistence is the durability boundary: block rather than
			// drop, and count the stall.
			if e.metrics != nil {
				e.metrics.PersistBackpressure.Inc()
			}
			e.persistChan <- out
		}
	}

	if e.projectionChan != nil {
		select {
		case e.projectionChan <- out:
		default:
			// Projections are rebuildable; dropping is preferable to
			// stalling the engine.
			if e.metrics != nil {
				e.metrics.ProjectionDrops.WithLabelValues("all").Inc()
			}
		}
	}
}

func (e *Engine) newEventID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), e.entropy).String()
}

// computeStateDigest serializes the canonical bytes of every entity an
// operation touched: accounts referenced by entries or events, then
// policies, then strategies, each group in a deterministic order. The
// digest feeds the envelope hash chain, so two replicas applying the
// same operation must produce identical bytes.
func (e *Engine) computeStateDigest(events []event.Event, entries []ledger.Entry) []byte {
	accounts := make(map[uuid.UUID]struct{})
	policies := make(map[uint64]struct{})
	strategies := make(map[uuid.UUID]struct{})

	for _, entry := range entries {
		if entry.From != uuid.Nil {
			accounts[entry.From] = struct{}{}
		}
		if entry.To != uuid.Nil {
			accounts[entry.To] = struct{}{}
		}
	}

	for _, evt := range events {
		if acc := evt.Account(); acc != nil && *acc != uuid.Nil {
			accounts[*acc] = struct{}{}
		}
		switch ev := evt.(type) {
		case *event.PolicyCreated:
			policies[ev.PolicyID] = struct{}{}
		case *event.PolicyUpdated:
			policies[ev.PolicyID] = struct{}{}
		case *event.PolicyDeactivated:
			policies[ev.PolicyID] = struct{}{}
		case *event.PolicyCanceled:
			policies[ev.PolicyID] = struct{}{}
		case *event.PremiumCharged:
			policies[ev.PolicyID] = struct{}{}
		case *event.PremiumPartiallyCharged:
			policies[ev.PolicyID] = struct{}{}
		case *event.CoverLimitAdjusted:
			strategies[ev.Strategy] = struct{}{}
		case *event.StrategyAdded:
			strategies[ev.Strategy] = struct{}{}
		case *event.StrategyStatusSet:
			strategies[ev.Strategy] = struct{}{}
		case *event.WeightAllocationSet:
			strategies[ev.Strategy] = struct{}{}
		}
	}

	digest := make([]byte, 0, 64*(len(accounts)+len(policies)+len(strategies)))

	sortedAccounts := make([]uuid.UUID, 0, len(accounts))
	for addr := range accounts {
		sortedAccounts = append(sortedAccounts, addr)
	}
	sort.Slice(sortedAccounts, func(i, j int) bool {
		return bytes.Compare(sortedAccounts[i][:], sortedAccounts[j][:]) < 0
	})
	for _, addr := range sortedAccounts {
		if acc, ok := e.ledger.AccountOf(addr); ok {
			digest = append(digest, acc.CanonicalBytes()...)
		}
	}

	sortedPolicies := make([]uint64, 0, len(policies))
	for id := range policies {
		sortedPolicies = append(sortedPolicies, id)
	}
	sort.Slice(sortedPolicies, func(i, j int) bool { return sortedPolicies[i] < sortedPolicies[j] })
	for _, id := range sortedPolicies {
		if policy, ok := e.product.PolicyByID(id); ok {
			digest = append(digest, policy.CanonicalBytes()...)
		}
	}

	sortedStrategies := make([]uuid.UUID, 0, len(strategies))
	for addr := range strategies {
		sortedStrategies = append(sortedStrategies, addr)
	}
	sort.Slice(sortedStrategies, func(i, j int) bool {
		return bytes.Compare(sortedStrategies[i][:], sortedStrategies[j][:]) < 0
	})
	for _, addr := range sortedStrategies {
		if strategy, ok := e.risk.StrategyOf(addr); ok {
			digest = append(digest, strategy.CanonicalBytes()...)
		}
	}

	return digest
}

// postCheckInvariants runs after every successful operation, before
// its outputs are sealed. A violation means state is corrupt and the
// process must not continue emitting.
func (e *Engine) postCheckInvariants(op string) {
	if err := e.validateState(); err != nil {
		panic(fmt.Sprintf("FATAL: state corrupt after %s: %v", op, err))
	}
}

func (e *Engine) validateState() error {
	if err := e.ledger.ValidateInvariants(); err != nil {
		return err
	}
	if err := e.risk.ValidateInvariants(); err != nil {
		return err
	}
	if err := e.product.ValidateInvariants(); err != nil {
		return err
	}

	// The strategy's allocation in the risk manager must mirror the
	// sum of active policy cover limits at all times.
	var activeSum int64
	for _, policy := range e.product.Policies() {
		if policy.Active {
			activeSum += policy.CoverLimit
		}
	}
	if allocated := e.risk.ActiveCoverLimitOf(e.product.StrategyAddress()); allocated != activeSum {
		return errs.Newf(errs.State, "strategy allocation %d diverged from active policy sum %d",
			allocated, activeSum)
	}
	return nil
}

// ValidateState checks every cross-component invariant, used after
// recovery and by tests. Live operations run the same checks and
// panic instead.
func (e *Engine) ValidateState() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.validateState()
}

// =============================================================
// Policyholder operations
// =============================================================

func (e *Engine) Purchase(account uuid.UUID, coverLimit int64, referral *uuid.UUID) error {
	return e.execute("purchase", func() error {
		return e.product.Purchase(account, coverLimit, referral)
	})
}

func (e *Engine) PurchaseWithStable(funder, account uuid.UUID, coverLimit int64, symbol string, amount int64, referral *uuid.UUID) error {
	return e.execute("purchase_with_stable", func() error {
		return e.product.PurchaseWithStable(funder, account, coverLimit, symbol, amount, referral)
	})
}

func (e *Engine) PurchaseWithNonStable(funder, account uuid.UUID, coverLimit int64, symbol string, amount, price, priceDeadline int64, priceToken string, referral *uuid.UUID) error {
	return e.execute("purchase_with_non_stable", func() error {
		return e.product.PurchaseWithNonStable(funder, account, coverLimit, symbol, amount, price, priceDeadline, priceToken, referral)
	})
}

func (e *Engine) Deposit(funder, recipient uuid.UUID, amount int64) error {
	return e.execute("deposit", func() error {
		return e.product.Deposit(funder, recipient, amount)
	})
}

func (e *Engine) DepositStable(funder, recipient uuid.UUID, symbol string, amount int64) error {
	return e.execute("deposit_stable", func() error {
		return e.product.DepositStable(funder, recipient, symbol, amount)
	})
}

func (e *Engine) DepositNonStable(funder, recipient uuid.UUID, symbol string, amount, price, priceDeadline int64, priceToken string) error {
	return e.execute("deposit_non_stable", func() error {
		return e.product.DepositNonStable(funder, recipient, symbol, amount, price, priceDeadline, priceToken)
	})
}

func (e *Engine) Withdraw(owner uuid.UUID, amount int64) error {
	return e.execute("withdraw", func() error {
		return e.product.Withdraw(owner, amount)
	})
}

func (e *Engine) DeactivatePolicy(owner uuid.UUID) error {
	return e.execute("deactivate_policy", func() error {
		return e.product.DeactivatePolicy(owner)
	})
}

func (e *Engine) Cancel(owner uuid.UUID, premium, deadline int64, signedClaim string) error {
	return e.execute("cancel", func() error {
		return e.product.Cancel(owner, premium, deadline, signedClaim)
	})
}

// =============================================================
// Collector operations
// =============================================================

// ChargePremiums runs one collector billing batch. The batch index is
// the idempotency key: a redelivered batch is acknowledged as a no-op
// before any account is touched.
func (e *Engine) ChargePremiums(caller uuid.UUID, accounts []uuid.UUID, premiums []int64, batchIndex int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := strconv.FormatInt(batchIndex, 10)
	if e.dedup.IsDuplicate(CommandChargePremiums, key) {
		if e.metrics != nil {
			e.metrics.CoreOpsRejected.WithLabelValues("charge_premiums", "duplicate").Inc()
		}
		return nil
	}

	err := e.executeLocked("charge_premiums", CommandChargePremiums+":"+key, func() error {
		return e.product.ChargePremiums(caller, accounts, premiums, batchIndex)
	})
	if err != nil {
		return err
	}

	e.dedup.MarkProcessed(CommandChargePremiums, key)
	if e.metrics != nil {
		e.metrics.ChargeBatchSize.Observe(float64(len(accounts)))
		e.metrics.DedupLRUSize.Set(float64(e.dedup.LRUSize()))
		e.metrics.PremiumPoolBalance.Set(float64(e.pool.Balance()))
	}
	return nil
}

// CancelPolicies closes policies in bulk with collector-attested
// premiums. commandID is the transport-level idempotency key; "" skips
// deduplication for direct calls.
func (e *Engine) CancelPolicies(caller uuid.UUID, accounts []uuid.UUID, premiums []int64, commandID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if commandID != "" && e.dedup.IsDuplicate(CommandCancelPolicies, commandID) {
		if e.metrics != nil {
			e.metrics.CoreOpsRejected.WithLabelValues("cancel_policies", "duplicate").Inc()
		}
		return nil
	}

	commandRef := ""
	if commandID != "" {
		commandRef = CommandCancelPolicies + ":" + commandID
	}
	err := e.executeLocked("cancel_policies", commandRef, func() error {
		return e.product.CancelPolicies(caller, accounts, premiums)
	})
	if err != nil {
		return err
	}

	if commandID != "" {
		e.dedup.MarkProcessed(CommandCancelPolicies, commandID)
	}
	return nil
}

// =============================================================
// Governance operations
// =============================================================

func (e *Engine) SetPendingGovernance(caller, pending uuid.UUID) error {
	return e.execute("set_pending_governance", func() error {
		if err := e.gov.SetPending(caller, pending); err != nil {
			return err
		}
		e.outbox.Record(&event.GovernancePending{Current: e.gov.Current(), Pending: pending})
		return nil
	})
}

// AcceptGovernance completes the two-step handover. The caller must be
// the pending authority, which the authority itself enforces.
func (e *Engine) AcceptGovernance(caller uuid.UUID) error {
	return e.execute("accept_governance", func() error {
		previous := e.gov.Current()
		if err := e.gov.Accept(caller); err != nil {
			return err
		}
		e.outbox.Record(&event.GovernanceAccepted{Previous: previous, Current: e.gov.Current()})
		return nil
	})
}

func (e *Engine) SetMaxRate(caller uuid.UUID, num, denom int64) error {
	return e.execute("set_max_rate", func() error {
		if err := e.gov.Require(caller); err != nil {
			return err
		}
		return e.product.SetMaxRate(num, denom)
	})
}

func (e *Engine) SetChargeCycle(caller uuid.UUID, cycle cover.ChargeCycle) error {
	return e.execute("set_charge_cycle", func() error {
		if err := e.gov.Require(caller); err != nil {
			return err
		}
		return e.product.SetChargeCycle(cycle)
	})
}

func (e *Engine) SetPaused(caller uuid.UUID, paused bool) error {
	return e.execute("set_paused", func() error {
		if err := e.gov.Require(caller); err != nil {
			return err
		}
		e.product.SetPaused(paused)
		return nil
	})
}

func (e *Engine) SetCooldownSeconds(caller uuid.UUID, seconds int64) error {
	return e.execute("set_cooldown_seconds", func() error {
		if err := e.gov.Require(caller); err != nil {
			return err
		}
		return e.product.SetCooldownSeconds(seconds)
	})
}

func (e *Engine) SetReferralReward(caller uuid.UUID, amount int64) error {
	return e.execute("set_referral_reward", func() error {
		if err := e.gov.Require(caller); err != nil {
			return err
		}
		return e.product.SetReferralReward(amount)
	})
}

func (e *Engine) SetReferralOn(caller uuid.UUID, on bool) error {
	return e.execute("set_referral_on", func() error {
		if err := e.gov.Require(caller); err != nil {
			return err
		}
		e.product.SetReferralOn(on)
		return nil
	})
}

func (e *Engine) SetMaxChargeBatchSize(caller uuid.UUID, n int) error {
	return e.execute("set_max_charge_batch_size", func() error {
		if err := e.gov.Require(caller); err != nil {
			return err
		}
		return e.product.SetMaxChargeBatchSize(n)
	})
}

func (e *Engine) SetBaseURI(caller uuid.UUID, uri string) error {
	return e.execute("set_base_uri", func() error {
		if err := e.gov.Require(caller); err != nil {
			return err
		}
		e.product.SetBaseURI(uri)
		return nil
	})
}

func (e *Engine) SetCollector(caller, collector uuid.UUID) error {
	return e.execute("set_collector", func() error {
		if err := e.gov.Require(caller); err != nil {
			return err
		}
		return e.product.SetCollector(collector)
	})
}

func (e *Engine) AddStrategy(caller, strategy uuid.UUID, weight uint32) error {
	return e.execute("add_strategy", func() error {
		if err := e.gov.Require(caller); err != nil {
			return err
		}
		return e.risk.AddStrategy(strategy, weight)
	})
}

func (e *Engine) SetStrategyStatuses(caller uuid.UUID, strategies []uuid.UUID, statuses []bool) error {
	return e.execute("set_strategy_statuses", func() error {
		if err := e.gov.Require(caller); err != nil {
			return err
		}
		return e.risk.SetStrategyStatuses(strategies, statuses)
	})
}

func (e *Engine) SetWeightAllocation(caller uuid.UUID, strategies []uuid.UUID, weights []uint32) error {
	return e.execute("set_weight_allocation", func() error {
		if err := e.gov.Require(caller); err != nil {
			return err
		}
		return e.risk.SetWeightAllocation(strategies, weights)
	})
}

func (e *Engine) AddMover(caller, mover uuid.UUID) error {
	return e.execute("add_mover", func() error {
		if err := e.gov.Require(caller); err != nil {
			return err
		}
		if err := e.ledger.Movers().Add(mover); err != nil {
			return err
		}
		e.outbox.Record(&event.ConfigUpdated{Key: "mover_status", Value: statusValue(mover, true)})
		return nil
	})
}

func (e *Engine) SetMoverStatuses(caller uuid.UUID, movers []uuid.UUID, statuses []bool) error {
	return e.execute("set_mover_statuses", func() error {
		if err := e.gov.Require(caller); err != nil {
			return err
		}
		if err := e.ledger.Movers().SetStatuses(movers, statuses); err != nil {
			return err
		}
		for i, mover := range movers {
			e.outbox.Record(&event.ConfigUpdated{Key: "mover_status", Value: statusValue(mover, statuses[i])})
		}
		return nil
	})
}

func (e *Engine) RemoveMover(caller, mover uuid.UUID) error {
	return e.execute("remove_mover", func() error {
		if err := e.gov.Require(caller); err != nil {
			return err
		}
		if err := e.ledger.Movers().Remove(mover); err != nil {
			return err
		}
		e.outbox.Record(&event.ConfigUpdated{Key: "mover_removed", Value: mover.String()})
		return nil
	})
}

func (e *Engine) SetRetainerStatuses(caller uuid.UUID, retainers []uuid.UUID, statuses []bool) error {
	return e.execute("set_retainer_statuses", func() error {
		if err := e.gov.Require(caller); err != nil {
			return err
		}
		if err := e.ledger.Retainers().SetStatuses(retainers, statuses); err != nil {
			return err
		}
		for i, retainer := range retainers {
			e.outbox.Record(&event.ConfigUpdated{Key: "retainer_status", Value: statusValue(retainer, statuses[i])})
		}
		return nil
	})
}

// RemoveRetainer drops a balance-floor provider entirely. Unlike a
// status toggle, the registration itself is gone: re-wiring requires a
// restart, so toggling is the usual path and removal is for retiring a
// retainer for good.
func (e *Engine) RemoveRetainer(caller, retainer uuid.UUID) error {
	return e.execute("remove_retainer", func() error {
		if err := e.gov.Require(caller); err != nil {
			return err
		}
		if err := e.ledger.Retainers().Remove(retainer); err != nil {
			return err
		}
		e.outbox.Record(&event.ConfigUpdated{Key: "retainer_removed", Value: retainer.String()})
		return nil
	})
}

func (e *Engine) AddSigner(caller uuid.UUID, keyID, publicKeyB64 string) error {
	return e.execute("add_signer", func() error {
		if err := e.gov.Require(caller); err != nil {
			return err
		}
		if err := e.signers.AddBase64(keyID, publicKeyB64); err != nil {
			return err
		}
		e.outbox.Record(&event.ConfigUpdated{Key: "signer_added", Value: keyID + ":" + publicKeyB64})
		return nil
	})
}

func (e *Engine) RemoveSigner(caller uuid.UUID, keyID string) error {
	return e.execute("remove_signer", func() error {
		if err := e.gov.Require(caller); err != nil {
			return err
		}
		if err := e.signers.Remove(keyID); err != nil {
			return err
		}
		e.outbox.Record(&event.ConfigUpdated{Key: "signer_removed", Value: keyID})
		return nil
	})
}

func (e *Engine) AddAsset(caller uuid.UUID, asset payment.Asset) error {
	return e.execute("add_asset", func() error {
		if err := e.gov.Require(caller); err != nil {
			return err
		}
		if err := e.assets.Add(asset); err != nil {
			return err
		}
		e.outbox.Record(&event.ConfigUpdated{Key: "asset_added", Value: assetValue(asset)})
		return nil
	})
}

func (e *Engine) RemoveAsset(caller uuid.UUID, symbol string) error {
	return e.execute("remove_asset", func() error {
		if err := e.gov.Require(caller); err != nil {
			return err
		}
		if err := e.assets.Remove(symbol); err != nil {
			return err
		}
		e.outbox.Record(&event.ConfigUpdated{Key: "asset_removed", Value: strings.ToUpper(symbol)})
		return nil
	})
}

// SweepPremiums moves collected premiums out of the pool to a
// governance-chosen destination.
func (e *Engine) SweepPremiums(caller, to uuid.UUID, amount int64) error {
	return e.execute("sweep_premiums", func() error {
		if err := e.gov.Require(caller); err != nil {
			return err
		}
		if to == uuid.Nil {
			return errs.New(errs.Validation, "sweep to zero address")
		}
		if err := e.pool.Sweep(e.product.StrategyAddress(), to, amount); err != nil {
			return err
		}
		e.outbox.Record(&event.PremiumsSwept{To: to, Amount: amount})
		return nil
	})
}

func statusValue(addr uuid.UUID, active bool) string {
	return addr.String() + "=" + strconv.FormatBool(active)
}

func assetValue(asset payment.Asset) string {
	return fmt.Sprintf("%s:%d:%t", strings.ToUpper(asset.Symbol), asset.Decimals, asset.Stable)
}

// =============================================================
// Reads
// =============================================================

// GetSequence returns the next sequence the engine will assign.
func (e *Engine) GetSequence() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sequence
}

// GetStateHash returns the current chain tip.
func (e *Engine) GetStateHash() [32]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasher.PrevHash()
}

func (e *Engine) AccountOf(addr uuid.UUID) (ledger.Account, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.AccountOf(addr)
}

func (e *Engine) BalanceOf(addr uuid.UUID) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.BalanceOf(addr)
}

func (e *Engine) RewardPointsOf(addr uuid.UUID) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.RewardPointsOf(addr)
}

// WithdrawableOf returns the balance share above the retained floor.
func (e *Engine) WithdrawableOf(addr uuid.UUID) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	available := e.ledger.BalanceOf(addr) - e.ledger.MinBalanceRequired(addr)
	if available < 0 {
		return 0
	}
	return available
}

func (e *Engine) MinBalanceRequired(addr uuid.UUID) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.MinBalanceRequired(addr)
}

func (e *Engine) PolicyOf(owner uuid.UUID) (cover.Policy, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.product.PolicyOf(owner)
	if !ok {
		return cover.Policy{}, false
	}
	return e.product.PolicyByID(id)
}

func (e *Engine) PolicyByID(policyID uint64) (cover.Policy, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.product.PolicyByID(policyID)
}

func (e *Engine) PolicyCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.product.PolicyCount()
}

func (e *Engine) TokenURI(policyID uint64) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.product.TokenURI(policyID)
}

func (e *Engine) ProductConfig() cover.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.product.Config()
}

func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.product.Paused()
}

func (e *Engine) MinRequiredAccountBalance(coverLimit int64) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.product.MinRequiredAccountBalance(coverLimit)
}

func (e *Engine) PoolBalance() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool.Balance()
}

func (e *Engine) MaxCover() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.risk.MaxCover()
}

func (e *Engine) ActiveCoverLimit() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.risk.ActiveCoverLimit()
}

func (e *Engine) AvailableCoverCapacity() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.risk.AvailableCoverCapacity()
}

func (e *Engine) Strategies() []risk.Strategy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.risk.Strategies()
}

func (e *Engine) GovernanceState() (current, pending uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gov.Current(), e.gov.Pending()
}

func (e *Engine) AcceptedAssets() []payment.Asset {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.assets.List()
}

func (e *Engine) Signers() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.signers.List()
}
