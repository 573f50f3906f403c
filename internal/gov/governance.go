// internal/gov/governance.go
package gov

import (
	"CoverLedger/internal/errs"

	"github.com/google/uuid"
)

// Authority tracks the governance role with a two-step handover:
// the current holder nominates a pending address, and only the pending
// address itself can complete the transfer.
//
// Not thread-safe — only accessed under the engine's execution slot.
type Authority struct {
	current uuid.UUID
	pending uuid.UUID // uuid.Nil when no handover is in flight
}

func NewAuthority(initial uuid.UUID) *Authority {
	return &Authority{current: initial}
}

func (a *Authority) Current() uuid.UUID { return a.current }
func (a *Authority) Pending() uuid.UUID { return a.pending }

// Require fails unless the caller holds governance.
func (a *Authority) Require(caller uuid.UUID) error {
	if caller != a.current {
		return errs.New(errs.Authorization, "caller is not governance")
	}
	return nil
}

// SetPending nominates the next governance holder. Only the current
// holder may nominate; nominating the zero address clears a pending
// handover.
func (a *Authority) SetPending(caller, pending uuid.UUID) error {
	if err := a.Require(caller); err != nil {
		return err
	}
	a.pending = pending
	return nil
}

// Accept completes the handover. The caller must be the pending
// nominee.
func (a *Authority) Accept(caller uuid.UUID) error {
	if a.pending == uuid.Nil {
		return errs.New(errs.State, "no pending governance handover")
	}
	if caller != a.pending {
		return errs.New(errs.Authorization, "caller is not the pending governance")
	}
	a.current = a.pending
	a.pending = uuid.Nil
	return nil
}

// Restore overwrites the full handover state (snapshot recovery).
func (a *Authority) Restore(current, pending uuid.UUID) {
	a.current = current
	a.pending = pending
}
