// internal/engine/snapshot.go
package engine

import (
	"bytes"
	"encoding/base64"
	"sort"
	"time"

	"CoverLedger/internal/cover"
	"CoverLedger/internal/errs"
	"CoverLedger/internal/ledger"
	"CoverLedger/internal/payment"
	"CoverLedger/internal/risk"

	"github.com/google/uuid"
)

// RegistryStatus is one mover or retainer record in a snapshot.
type RegistryStatus struct {
	Address uuid.UUID `json:"address"`
	Active  bool      `json:"active"`
}

// SignerRecord is one trusted attestation signer in a snapshot.
type SignerRecord struct {
	KeyID     string `json:"key_id"`
	PublicKey string `json:"public_key"` // base64
}

// SnapshotState is the full engine state at one sequence, serialized
// periodically so recovery replays only the envelopes after it.
type SnapshotState struct {
	Sequence  int64     `json:"sequence"` // last applied sequence, -1 for genesis
	StateHash [32]byte  `json:"state_hash"`
	TakenAt   time.Time `json:"taken_at"`

	Accounts   []ledger.Account `json:"accounts"`
	Policies   []cover.Policy   `json:"policies"`
	Strategies []risk.Strategy  `json:"strategies"`
	Config     cover.Config     `json:"config"`

	GovCurrent uuid.UUID `json:"gov_current"`
	GovPending uuid.UUID `json:"gov_pending"`

	Movers    []RegistryStatus `json:"movers"`
	Retainers []RegistryStatus `json:"retainers"`
	Signers   []SignerRecord   `json:"signers"`
	Assets    []payment.Asset  `json:"assets"`
}

// CreateSnapshotState captures the engine state under the execution
// slot. Accounts are sorted by address so snapshot bytes are
// deterministic for a given state.
func (e *Engine) CreateSnapshotState() *SnapshotState {
	e.mu.Lock()
	defer e.mu.Unlock()

	accounts := e.ledger.Accounts()
	sort.Slice(accounts, func(i, j int) bool {
		return bytes.Compare(accounts[i].Address[:], accounts[j].Address[:]) < 0
	})

	movers := make([]RegistryStatus, 0, 4)
	for _, addr := range e.ledger.Movers().List() {
		movers = append(movers, RegistryStatus{Address: addr, Active: e.ledger.Movers().IsActive(addr)})
	}
	retainers := make([]RegistryStatus, 0, 2)
	for _, id := range e.ledger.Retainers().List() {
		retainers = append(retainers, RegistryStatus{Address: id, Active: e.ledger.Retainers().IsActive(id)})
	}

	signers := make([]SignerRecord, 0, 2)
	for _, keyID := range e.signers.List() {
		if key, ok := e.signers.Lookup(keyID); ok {
			signers = append(signers, SignerRecord{
				KeyID:     keyID,
				PublicKey: base64.StdEncoding.EncodeToString(key),
			})
		}
	}

	current, pending := e.gov.Current(), e.gov.Pending()

	return &SnapshotState{
		Sequence:   e.sequence - 1,
		StateHash:  e.hasher.PrevHash(),
		TakenAt:    e.clock.Now(),
		Accounts:   accounts,
		Policies:   e.product.Policies(),
		Strategies: e.risk.Strategies(),
		Config:     e.product.Config(),
		GovCurrent: current,
		GovPending: pending,
		Movers:     movers,
		Retainers:  retainers,
		Signers:    signers,
		Assets:     e.assets.List(),
	}
}

// RestoreFromSnapshot loads a snapshot into a freshly wired engine.
// The wiring must already have registered the product as a retainer;
// everything else is reinstated here. Call before serving traffic and
// before replaying post-snapshot envelopes.
func (e *Engine) RestoreFromSnapshot(snap *SnapshotState) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, acc := range snap.Accounts {
		e.ledger.RestoreAccount(acc)
	}
	for _, strategy := range snap.Strategies {
		e.risk.RestoreStrategy(strategy)
	}
	for _, policy := range snap.Policies {
		e.product.RestorePolicy(policy)
	}
	e.product.RestoreConfig(snap.Config)
	e.gov.Restore(snap.GovCurrent, snap.GovPending)

	for _, mover := range snap.Movers {
		if err := e.ledger.Movers().Add(mover.Address); err != nil {
			return err
		}
		if !mover.Active {
			if err := e.ledger.Movers().SetStatuses([]uuid.UUID{mover.Address}, []bool{false}); err != nil {
				return err
			}
		}
	}
	inSnapshot := make(map[uuid.UUID]bool, len(snap.Retainers))
	for _, retainer := range snap.Retainers {
		inSnapshot[retainer.Address] = true
		if err := e.ledger.Retainers().SetStatuses([]uuid.UUID{retainer.Address}, []bool{retainer.Active}); err != nil {
			return err
		}
	}
	// Boot wiring registers the product retainer unconditionally; if
	// governance removed it before the snapshot, drop it again here.
	for _, id := range e.ledger.Retainers().List() {
		if !inSnapshot[id] {
			if err := e.ledger.Retainers().Remove(id); err != nil {
				return err
			}
		}
	}
	for _, signer := range snap.Signers {
		if err := e.signers.AddBase64(signer.KeyID, signer.PublicKey); err != nil {
			return err
		}
	}
	for _, asset := range snap.Assets {
		if err := e.assets.Add(asset); err != nil {
			return err
		}
	}

	e.sequence = snap.Sequence + 1
	e.hasher.SetPrevHash(snap.StateHash)

	if err := e.ledger.ValidateInvariants(); err != nil {
		return errs.Wrap(errs.State, "snapshot fails ledger invariants", err)
	}
	if err := e.risk.ValidateInvariants(); err != nil {
		return errs.Wrap(errs.State, "snapshot fails risk invariants", err)
	}
	if err := e.product.ValidateInvariants(); err != nil {
		return errs.Wrap(errs.State, "snapshot fails product invariants", err)
	}
	return nil
}

// WarmDedup preloads composite dedup keys (most recent processed
// batches from Postgres) so redeliveries right after a restart stay on
// the hot path.
func (e *Engine) WarmDedup(keys []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dedup.WarmFromKeys(keys)
	if e.metrics != nil {
		e.metrics.DedupLRUSize.Set(float64(e.dedup.LRUSize()))
	}
}
