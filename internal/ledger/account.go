package ledger

import (
	"github.com/google/uuid"
)

// PremiumPoolAddress is the well-known system account that receives
// every charged premium. Charged amounts are moved here, never
// destroyed.
var PremiumPoolAddress = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// Account is the per-address ledger record. Balance carries a
// refundable/non-refundable split: NonRefundable tracks the share of
// Balance that originated from non-refundable credit (promotional
// mints, volatile-asset deposits) and is consumed proportionally by
// every outflow.
//
// Invariant: 0 <= NonRefundable <= Balance.
type Account struct {
	Address       uuid.UUID
	Balance       int64 // Fixed-point, quote scale
	NonRefundable int64 // Fixed-point, quote scale

	// RewardPoints is non-withdrawable credit consumed before Balance
	// whenever a premium is charged.
	RewardPoints int64

	// CooldownStart is the unix-seconds timestamp at which the owner
	// deactivated coverage; 0 means no cooldown is running.
	CooldownStart int64

	// UsedReferralCode is set the first time the owner redeems a
	// referral code; redemption is once per account.
	UsedReferralCode bool
}

// Refundable returns the withdrawable-without-haircut share.
func (a *Account) Refundable() int64 {
	return a.Balance - a.NonRefundable
}

// Funds returns everything usable for premium charges.
func (a *Account) Funds() int64 {
	return a.Balance + a.RewardPoints
}

// CanonicalBytes serializes the account for deterministic state
// digests. Layout: address (16) || balance (8 LE) || non_refundable
// (8 LE) || reward_points (8 LE) || cooldown_start (8 LE) || flags (1).
func (a *Account) CanonicalBytes() []byte {
	buf := make([]byte, 0, 49)

	buf = append(buf, a.Address[:]...)
	buf = appendInt64LE(buf, a.Balance)
	buf = appendInt64LE(buf, a.NonRefundable)
	buf = appendInt64LE(buf, a.RewardPoints)
	buf = appendInt64LE(buf, a.CooldownStart)

	var flags byte
	if a.UsedReferralCode {
		flags |= 1
	}
	buf = append(buf, flags)

	return buf
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56),
	)
}
