// internal/event/policy.go
package event

import "github.com/google/uuid"

type PolicyCreated struct {
	PolicyID   uint64
	Owner      uuid.UUID
	CoverLimit int64 // Fixed-point
}

func (e *PolicyCreated) EventType() EventType { return EventTypePolicyCreated }
func (e *PolicyCreated) Account() *uuid.UUID  { return &e.Owner }

type PolicyUpdated struct {
	PolicyID      uint64
	Owner         uuid.UUID
	OldCoverLimit int64
	NewCoverLimit int64
}

func (e *PolicyUpdated) EventType() EventType { return EventTypePolicyUpdated }
func (e *PolicyUpdated) Account() *uuid.UUID  { return &e.Owner }

type PolicyDeactivated struct {
	PolicyID        uint64
	Owner           uuid.UUID
	PriorCoverLimit int64
	// Unix seconds; 0 when no cooldown was started (billing exhaustion)
	CooldownStart int64
}

func (e *PolicyDeactivated) EventType() EventType { return EventTypePolicyDeactivated }
func (e *PolicyDeactivated) Account() *uuid.UUID  { return &e.Owner }

type PolicyCanceled struct {
	PolicyID        uint64
	Owner           uuid.UUID
	PriorCoverLimit int64
	Charged         int64 // min(attested premium, available funds)
}

func (e *PolicyCanceled) EventType() EventType { return EventTypePolicyCanceled }
func (e *PolicyCanceled) Account() *uuid.UUID  { return &e.Owner }
