package query

import "github.com/google/uuid"

// AccountResponse is one ledger account as projected for API reads.
type AccountResponse struct {
	Address        uuid.UUID `json:"address"`
	Balance        int64     `json:"balance"`
	NonRefundable  int64     `json:"non_refundable"`
	RewardPoints   int64     `json:"reward_points"`
	CooldownStart  int64     `json:"cooldown_start"`
	UsedReferral   bool      `json:"used_referral"`
	AsOfSequence   int64     `json:"as_of_sequence"`
}

// PolicyResponse is one coverage policy as projected for API reads.
type PolicyResponse struct {
	PolicyID                uint64    `json:"policy_id"`
	Owner                   uuid.UUID `json:"owner"`
	CoverLimit              int64     `json:"cover_limit"`
	PreDeactivateCoverLimit int64     `json:"pre_deactivate_cover_limit"`
	Active                  bool      `json:"active"`
	CreatedAt               int64     `json:"created_at"`
	AsOfSequence            int64     `json:"as_of_sequence"`
}

// PremiumChargeResponse is one premium charge or settlement record.
type PremiumChargeResponse struct {
	EventID     string    `json:"event_id"`
	Sequence    int64     `json:"sequence"`
	PolicyID    uint64    `json:"policy_id"`
	Owner       uuid.UUID `json:"owner"`
	Premium     int64     `json:"premium"`
	Charged     int64     `json:"charged"`
	FromRewards int64     `json:"from_rewards"`
	FromBalance int64     `json:"from_balance"`
	BatchIndex  int64     `json:"batch_index"`
	Outcome     string    `json:"outcome"`
	Timestamp   int64     `json:"timestamp"`
}
