// internal/ledger/entry.go
package ledger

import (
	"github.com/google/uuid"
)

// EntryKind discriminates audit entries in the ledger log
type EntryKind int32

const (
	EntryKindUnknown EntryKind = iota
	EntryKindMint
	EntryKindBurn
	EntryKindTransfer
	EntryKindWithdraw
	EntryKindRewardAccrue
	EntryKindRewardSpend
)

func (k EntryKind) String() string {
	switch k {
	case EntryKindMint:
		return "mint"
	case EntryKindBurn:
		return "burn"
	case EntryKindTransfer:
		return "transfer"
	case EntryKindWithdraw:
		return "withdraw"
	case EntryKindRewardAccrue:
		return "reward_accrue"
	case EntryKindRewardSpend:
		return "reward_spend"
	default:
		return "unknown"
	}
}

// Entry is one balance (or reward-point) movement in the audit trail.
// Amount is always positive; direction is carried by Kind and the
// From/To pair (uuid.Nil marks the outside world for mint, burn and
// withdraw).
type Entry struct {
	EntryID uuid.UUID
	Kind    EntryKind
	From    uuid.UUID
	To      uuid.UUID
	Amount  int64

	// NonRefundableShare is the slice of Amount consumed from (or, for
	// transfers, carried to the recipient's) non-refundable balance.
	// Zero for reward-point entries.
	NonRefundableShare int64
}
