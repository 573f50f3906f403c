// internal/claims/verifier.go
package claims

import (
	"crypto/ed25519"
	"errors"
	"time"

	"CoverLedger/internal/clock"
	"CoverLedger/internal/errs"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var errUntrustedSigner = errors.New("untrusted signer")

// PriceClaims is the payload of a signed price attestation for a
// non-stable asset: (token, price, deadline) with the deadline carried
// as the standard expiry claim.
type PriceClaims struct {
	Token string `json:"token"`
	Price int64  `json:"price"` // Fixed-point, price scale
	jwt.RegisteredClaims
}

// CancelClaims is the payload of a signed cancellation claim binding
// (premium, policyholder, deadline).
type CancelClaims struct {
	Policyholder string `json:"policyholder"`
	Premium      int64  `json:"premium"` // Fixed-point, quote scale
	jwt.RegisteredClaims
}

// Verifier checks signed claims against the governed signer set and
// the ambient execution clock. It is the sole trust boundary between
// off-chain attestations and engine accounting.
type Verifier struct {
	signers *SignerSet
	clock   clock.Clock
}

func NewVerifier(signers *SignerSet, clk clock.Clock) *Verifier {
	return &Verifier{signers: signers, clock: clk}
}

func (v *Verifier) keyfunc(token *jwt.Token) (interface{}, error) {
	keyID, _ := token.Header["kid"].(string)
	if keyID == "" {
		return nil, errors.New("claim is missing the kid header")
	}
	key, ok := v.signers.Lookup(keyID)
	if !ok {
		return nil, errUntrustedSigner
	}
	return key, nil
}

func (v *Verifier) parseOptions() []jwt.ParserOption {
	return []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.clock.Now),
	}
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return errs.Wrap(errs.Signature, "claim expired", err)
	case errors.Is(err, errUntrustedSigner):
		return errs.Wrap(errs.Signature, "untrusted signer", err)
	default:
		return errs.Wrap(errs.Signature, "malformed claim", err)
	}
}

// VerifyPrice validates a price attestation and checks it binds the
// exact (token, price, deadline) triple the caller supplied.
func (v *Verifier) VerifyPrice(signed, assetToken string, price, deadline int64) error {
	parsed := &PriceClaims{}
	if _, err := jwt.ParseWithClaims(signed, parsed, v.keyfunc, v.parseOptions()...); err != nil {
		return classifyParseError(err)
	}
	if parsed.Token != assetToken || parsed.Price != price {
		return errs.New(errs.Signature, "price claim binds different values")
	}
	if parsed.ExpiresAt == nil || parsed.ExpiresAt.Unix() != deadline {
		return errs.New(errs.Signature, "price claim binds a different deadline")
	}
	return nil
}

// VerifyCancel validates a cancellation claim and checks it binds the
// exact (premium, policyholder, deadline) triple the caller supplied.
func (v *Verifier) VerifyCancel(signed string, policyholder uuid.UUID, premium, deadline int64) error {
	parsed := &CancelClaims{}
	if _, err := jwt.ParseWithClaims(signed, parsed, v.keyfunc, v.parseOptions()...); err != nil {
		return classifyParseError(err)
	}
	if parsed.Policyholder != policyholder.String() || parsed.Premium != premium {
		return errs.New(errs.Signature, "cancel claim binds different values")
	}
	if parsed.ExpiresAt == nil || parsed.ExpiresAt.Unix() != deadline {
		return errs.New(errs.Signature, "cancel claim binds a different deadline")
	}
	return nil
}

// SignPrice issues a price attestation. Used by operator tooling and
// tests; the engine only verifies.
func SignPrice(key ed25519.PrivateKey, keyID, assetToken string, price int64, deadline time.Time) (string, error) {
	c := &PriceClaims{
		Token: assetToken,
		Price: price,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(deadline),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, c)
	token.Header["kid"] = keyID
	return token.SignedString(key)
}

// SignCancel issues a cancellation claim.
func SignCancel(key ed25519.PrivateKey, keyID string, policyholder uuid.UUID, premium int64, deadline time.Time) (string, error) {
	c := &CancelClaims{
		Policyholder: policyholder.String(),
		Premium:      premium,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(deadline),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, c)
	token.Header["kid"] = keyID
	return token.SignedString(key)
}
