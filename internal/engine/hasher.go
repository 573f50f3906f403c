// internal/engine/hasher.go
package engine

import (
	"crypto/sha256"
	"encoding/binary"
)

// GenesisHashSeed anchors the envelope hash chain. The first
// envelope's PrevHash is SHA-256 of this string.
const GenesisHashSeed = "CoverLedger:genesis:v1"

// StateHasher maintains the envelope hash chain:
//
//	state_hash[N] = SHA-256(prev_hash || sequence || state_digest)
//
// Not thread-safe — only accessed under the engine's execution slot.
type StateHasher struct {
	prevHash [32]byte
}

func NewStateHasher() *StateHasher {
	return &StateHasher{prevHash: sha256.Sum256([]byte(GenesisHashSeed))}
}

// ComputeHash derives the next chain hash and advances the tip.
func (h *StateHasher) ComputeHash(sequence int64, stateDigest []byte) [32]byte {
	hasher := sha256.New()

	hasher.Write(h.prevHash[:])

	var seqBuf [8]byte
	binary.LittleEndian.PutUint64(seqBuf[:], uint64(sequence))
	hasher.Write(seqBuf[:])

	hasher.Write(stateDigest)

	var hash [32]byte
	copy(hash[:], hasher.Sum(nil))
	h.prevHash = hash

	return hash
}

// PrevHash returns the current chain tip.
func (h *StateHasher) PrevHash() [32]byte {
	return h.prevHash
}

// SetPrevHash resets the tip when restoring from a snapshot or
// resuming a replayed log.
func (h *StateHasher) SetPrevHash(hash [32]byte) {
	h.prevHash = hash
}
