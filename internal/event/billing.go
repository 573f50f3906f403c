// internal/event/billing.go
package event

import "github.com/google/uuid"

// PremiumCharged records a fully-collected premium. FromRewards +
// FromBalance always equals Premium.
type PremiumCharged struct {
	PolicyID    uint64
	Owner       uuid.UUID
	Premium     int64
	FromRewards int64
	FromBalance int64
	BatchIndex  int64 // -1 for charges outside collector batches (cancel)
}

func (e *PremiumCharged) EventType() EventType { return EventTypePremiumCharged }
func (e *PremiumCharged) Account() *uuid.UUID  { return &e.Owner }

// PremiumPartiallyCharged records a charge that exhausted the account:
// Charged < Premium, and the policy was deactivated in the same step.
type PremiumPartiallyCharged struct {
	PolicyID    uint64
	Owner       uuid.UUID
	Premium     int64
	Charged     int64
	FromRewards int64
	FromBalance int64
	BatchIndex  int64
}

func (e *PremiumPartiallyCharged) EventType() EventType { return EventTypePremiumPartiallyCharged }
func (e *PremiumPartiallyCharged) Account() *uuid.UUID  { return &e.Owner }

type RewardPointsEarned struct {
	Earner uuid.UUID
	Amount int64
	// Counterparty of the referral (redeemer for the referrer's bonus
	// and vice versa)
	Peer uuid.UUID
	// Redeemed is set on the record of the party that spent the code,
	// whose once-per-account redemption flag was consumed.
	Redeemed bool
}

func (e *RewardPointsEarned) EventType() EventType { return EventTypeRewardPointsEarned }
func (e *RewardPointsEarned) Account() *uuid.UUID  { return &e.Earner }

// PremiumsSwept records a governance transfer out of the premium pool.
type PremiumsSwept struct {
	To     uuid.UUID
	Amount int64
}

func (e *PremiumsSwept) EventType() EventType { return EventTypePremiumsSwept }
func (e *PremiumsSwept) Account() *uuid.UUID  { return &e.To }
