// internal/cover/policy.go
package cover

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// Policy is one owner's coverage record. Policies are never destroyed:
// deactivation zeroes the cover limit and a later purchase reactivates
// the same ID, so owner and ID stay a stable 1:1 pair for the lifetime
// of the product.
type Policy struct {
	ID    uint64
	Owner uuid.UUID

	// CoverLimit is nonzero exactly while the policy is active.
	CoverLimit int64
	Active     bool

	// PreDeactivateCoverLimit remembers the limit held at the last
	// deactivation. The withdrawal floor keys off it while the owner
	// waits out the cooldown.
	PreDeactivateCoverLimit int64

	CreatedAt int64
}

// CanonicalBytes returns the deterministic encoding folded into the
// state digest: id, owner, coverLimit, preDeactivateCoverLimit, flags.
func (p *Policy) CanonicalBytes() []byte {
	buf := make([]byte, 0, 8+16+8+8+1)
	var u64 [8]byte
	binary.LittleEndian.PutUint64(u64[:], p.ID)
	buf = append(buf, u64[:]...)
	buf = append(buf, p.Owner[:]...)
	binary.LittleEndian.PutUint64(u64[:], uint64(p.CoverLimit))
	buf = append(buf, u64[:]...)
	binary.LittleEndian.PutUint64(u64[:], uint64(p.PreDeactivateCoverLimit))
	buf = append(buf, u64[:]...)
	var flags byte
	if p.Active {
		flags |= 1
	}
	buf = append(buf, flags)
	return buf
}
