package event

import (
	"time"

	"github.com/google/uuid"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypePolicyCreated
	EventTypePolicyUpdated
	EventTypePolicyDeactivated
	EventTypePolicyCanceled
	EventTypePremiumCharged
	EventTypePremiumPartiallyCharged
	EventTypeRewardPointsEarned
	EventTypeDepositMade
	EventTypeWithdrawalMade
	EventTypeStrategyAdded
	EventTypeStrategyStatusSet
	EventTypeWeightAllocationSet
	EventTypeCoverLimitAdjusted
	EventTypeGovernancePending
	EventTypeGovernanceAccepted
	EventTypeConfigUpdated
	EventTypePauseSet
	EventTypePremiumsSwept
)

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by the engine
	Sequence int64

	// Time-ordered unique event ID (ULID)
	EventID string

	// Event type discriminator
	EventType EventType

	// Affected account (nullable for global events)
	Account *uuid.UUID

	// Ambient execution timestamp of the operation (NOT wall-clock of emit)
	Timestamp time.Time

	// Idempotency key of the triggering command ("" for direct calls)
	CommandRef string

	// Event-specific payload
	Payload Event

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads must implement
type Event interface {
	// EventType returns the discriminator
	EventType() EventType

	// Account returns the affected account (nil for global events)
	Account() *uuid.UUID
}

func (et EventType) String() string {
	switch et {
	case EventTypePolicyCreated:
		return "PolicyCreated"
	case EventTypePolicyUpdated:
		return "PolicyUpdated"
	case EventTypePolicyDeactivated:
		return "PolicyDeactivated"
	case EventTypePolicyCanceled:
		return "PolicyCanceled"
	case EventTypePremiumCharged:
		return "PremiumCharged"
	case EventTypePremiumPartiallyCharged:
		return "PremiumPartiallyCharged"
	case EventTypeRewardPointsEarned:
		return "RewardPointsEarned"
	case EventTypeDepositMade:
		return "DepositMade"
	case EventTypeWithdrawalMade:
		return "WithdrawalMade"
	case EventTypeStrategyAdded:
		return "StrategyAdded"
	case EventTypeStrategyStatusSet:
		return "StrategyStatusSet"
	case EventTypeWeightAllocationSet:
		return "WeightAllocationSet"
	case EventTypeCoverLimitAdjusted:
		return "CoverLimitAdjusted"
	case EventTypeGovernancePending:
		return "GovernancePending"
	case EventTypeGovernanceAccepted:
		return "GovernanceAccepted"
	case EventTypeConfigUpdated:
		return "ConfigUpdated"
	case EventTypePauseSet:
		return "PauseSet"
	case EventTypePremiumsSwept:
		return "PremiumsSwept"
	default:
		return "Unknown"
	}
}

// TypeFromString is the inverse of String, for rows read back from the
// event log. Unrecognized names map to EventTypeUnknown.
func TypeFromString(s string) EventType {
	for t := EventTypePolicyCreated; t <= EventTypePremiumsSwept; t++ {
		if t.String() == s {
			return t
		}
	}
	return EventTypeUnknown
}

// NewPayload returns a zero value of the payload struct for t, ready to
// unmarshal a stored payload into.
func NewPayload(t EventType) (Event, bool) {
	switch t {
	case EventTypePolicyCreated:
		return &PolicyCreated{}, true
	case EventTypePolicyUpdated:
		return &PolicyUpdated{}, true
	case EventTypePolicyDeactivated:
		return &PolicyDeactivated{}, true
	case EventTypePolicyCanceled:
		return &PolicyCanceled{}, true
	case EventTypePremiumCharged:
		return &PremiumCharged{}, true
	case EventTypePremiumPartiallyCharged:
		return &PremiumPartiallyCharged{}, true
	case EventTypeRewardPointsEarned:
		return &RewardPointsEarned{}, true
	case EventTypeDepositMade:
		return &DepositMade{}, true
	case EventTypeWithdrawalMade:
		return &WithdrawalMade{}, true
	case EventTypeStrategyAdded:
		return &StrategyAdded{}, true
	case EventTypeStrategyStatusSet:
		return &StrategyStatusSet{}, true
	case EventTypeWeightAllocationSet:
		return &WeightAllocationSet{}, true
	case EventTypeCoverLimitAdjusted:
		return &CoverLimitAdjusted{}, true
	case EventTypeGovernancePending:
		return &GovernancePending{}, true
	case EventTypeGovernanceAccepted:
		return &GovernanceAccepted{}, true
	case EventTypeConfigUpdated:
		return &ConfigUpdated{}, true
	case EventTypePauseSet:
		return &PauseSet{}, true
	case EventTypePremiumsSwept:
		return &PremiumsSwept{}, true
	default:
		return nil, false
	}
}
