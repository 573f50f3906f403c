// internal/claims/signer_set.go
package claims

import (
	"crypto/ed25519"
	"encoding/base64"

	"CoverLedger/internal/errs"
)

// SignerSet is the governed registry of trusted attestation signers,
// keyed by the `kid` header carried in signed claims.
//
// Not thread-safe — only accessed under the engine's execution slot.
type SignerSet struct {
	order []string
	keys  map[string]ed25519.PublicKey
}

func NewSignerSet() *SignerSet {
	return &SignerSet{
		order: make([]string, 0, 2),
		keys:  make(map[string]ed25519.PublicKey),
	}
}

// Add registers (or replaces) a trusted signer key.
func (s *SignerSet) Add(keyID string, key ed25519.PublicKey) error {
	if keyID == "" {
		return errs.New(errs.Validation, "empty signer key ID")
	}
	if len(key) != ed25519.PublicKeySize {
		return errs.Newf(errs.Validation, "signer %s: bad public key size %d", keyID, len(key))
	}
	if _, exists := s.keys[keyID]; !exists {
		s.order = append(s.order, keyID)
	}
	s.keys[keyID] = key
	return nil
}

// AddBase64 registers a signer from a base64-encoded public key, the
// form keys take in config files.
func (s *SignerSet) AddBase64(keyID, encoded string) error {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return errs.Wrap(errs.Validation, "signer public key is not base64", err)
	}
	return s.Add(keyID, ed25519.PublicKey(raw))
}

// Remove drops a signer from the trusted set.
func (s *SignerSet) Remove(keyID string) error {
	if _, exists := s.keys[keyID]; !exists {
		return errs.Newf(errs.State, "unknown signer %s", keyID)
	}
	delete(s.keys, keyID)
	for i, id := range s.order {
		if id == keyID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Lookup returns the public key for a key ID.
func (s *SignerSet) Lookup(keyID string) (ed25519.PublicKey, bool) {
	key, ok := s.keys[keyID]
	return key, ok
}

// List returns signer key IDs in registration order.
func (s *SignerSet) List() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
