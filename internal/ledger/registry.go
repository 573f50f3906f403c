// internal/ledger/registry.go
package ledger

import (
	"CoverLedger/internal/errs"

	"github.com/google/uuid"
)

// Retainer imposes a minimum-balance floor on accounts. The cover
// product registers itself as a retainer so active (or cooling-down)
// coverage keeps one billing cycle of balance locked.
type Retainer interface {
	// RetainerID identifies the retainer in the registry.
	RetainerID() uuid.UUID

	// MinBalanceRequired returns the floor this retainer imposes on
	// the account, 0 when none.
	MinBalanceRequired(account uuid.UUID) int64
}

// MoverRegistry is the ordered set of addresses allowed to mutate
// ledger balances. Order is insertion order; membership and status
// lookups are O(1).
//
// Not thread-safe — only accessed under the engine's execution slot.
type MoverRegistry struct {
	order  []uuid.UUID
	status map[uuid.UUID]bool
}

func NewMoverRegistry() *MoverRegistry {
	return &MoverRegistry{
		order:  make([]uuid.UUID, 0, 4),
		status: make(map[uuid.UUID]bool),
	}
}

// Add registers a mover as active. Re-adding an existing mover
// reactivates it without duplicating the order entry.
func (r *MoverRegistry) Add(addr uuid.UUID) error {
	if addr == uuid.Nil {
		return errs.New(errs.Validation, "zero address mover")
	}
	if _, exists := r.status[addr]; !exists {
		r.order = append(r.order, addr)
	}
	r.status[addr] = true
	return nil
}

// Remove deletes a mover from the registry entirely.
func (r *MoverRegistry) Remove(addr uuid.UUID) error {
	if _, exists := r.status[addr]; !exists {
		return errs.New(errs.State, "unknown mover")
	}
	delete(r.status, addr)
	for i, a := range r.order {
		if a == addr {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// SetStatuses toggles movers in bulk. The two slices are parallel
// arrays and must have equal length.
func (r *MoverRegistry) SetStatuses(addrs []uuid.UUID, statuses []bool) error {
	if len(addrs) != len(statuses) {
		return errs.Newf(errs.Validation, "mismatched array lengths: %d addresses, %d statuses",
			len(addrs), len(statuses))
	}
	for _, addr := range addrs {
		if _, exists := r.status[addr]; !exists {
			return errs.Newf(errs.State, "unknown mover %s", addr)
		}
	}
	for i, addr := range addrs {
		r.status[addr] = statuses[i]
	}
	return nil
}

// IsActive reports whether addr is a registered, active mover.
func (r *MoverRegistry) IsActive(addr uuid.UUID) bool {
	return r.status[addr]
}

// List returns movers in registration order.
func (r *MoverRegistry) List() []uuid.UUID {
	out := make([]uuid.UUID, len(r.order))
	copy(out, r.order)
	return out
}

type retainerEntry struct {
	retainer Retainer
	active   bool
}

// RetainerRegistry is the ordered set of balance-floor providers.
// The global floor for an account is the sum over active retainers.
type RetainerRegistry struct {
	order   []uuid.UUID
	entries map[uuid.UUID]*retainerEntry
}

func NewRetainerRegistry() *RetainerRegistry {
	return &RetainerRegistry{
		order:   make([]uuid.UUID, 0, 2),
		entries: make(map[uuid.UUID]*retainerEntry),
	}
}

func (r *RetainerRegistry) Add(ret Retainer) error {
	id := ret.RetainerID()
	if id == uuid.Nil {
		return errs.New(errs.Validation, "zero address retainer")
	}
	if entry, exists := r.entries[id]; exists {
		entry.retainer = ret
		entry.active = true
		return nil
	}
	r.order = append(r.order, id)
	r.entries[id] = &retainerEntry{retainer: ret, active: true}
	return nil
}

func (r *RetainerRegistry) Remove(id uuid.UUID) error {
	if _, exists := r.entries[id]; !exists {
		return errs.New(errs.State, "unknown retainer")
	}
	delete(r.entries, id)
	for i, a := range r.order {
		if a == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// SetStatuses toggles retainers in bulk; parallel arrays must match.
func (r *RetainerRegistry) SetStatuses(ids []uuid.UUID, statuses []bool) error {
	if len(ids) != len(statuses) {
		return errs.Newf(errs.Validation, "mismatched array lengths: %d retainers, %d statuses",
			len(ids), len(statuses))
	}
	for _, id := range ids {
		if _, exists := r.entries[id]; !exists {
			return errs.Newf(errs.State, "unknown retainer %s", id)
		}
	}
	for i, id := range ids {
		r.entries[id].active = statuses[i]
	}
	return nil
}

// MinBalanceRequired folds the floors of all active retainers.
func (r *RetainerRegistry) MinBalanceRequired(account uuid.UUID) int64 {
	var floor int64
	for _, id := range r.order {
		entry := r.entries[id]
		if entry != nil && entry.active {
			floor += entry.retainer.MinBalanceRequired(account)
		}
	}
	return floor
}

// IsActive reports whether id is a registered, active retainer.
func (r *RetainerRegistry) IsActive(id uuid.UUID) bool {
	entry := r.entries[id]
	return entry != nil && entry.active
}

// List returns retainer IDs in registration order.
func (r *RetainerRegistry) List() []uuid.UUID {
	out := make([]uuid.UUID, len(r.order))
	copy(out, r.order)
	return out
}
