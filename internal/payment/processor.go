// internal/payment/processor.go
package payment

import (
	"CoverLedger/internal/claims"
	"CoverLedger/internal/errs"
	"CoverLedger/internal/math"
)

// Processor converts deposits denominated in accepted assets into
// internal quote-scale account credit. Stable assets convert by
// decimal normalization alone; non-stable assets additionally require
// a price attestation signed by an authorized signer.
//
// The processor only quotes. Minting the resulting credit is the
// engine's job, so a failed quote leaves no state behind.
type Processor struct {
	registry *Registry
	verifier *claims.Verifier
}

func NewProcessor(registry *Registry, verifier *claims.Verifier) *Processor {
	return &Processor{registry: registry, verifier: verifier}
}

func (p *Processor) Registry() *Registry {
	return p.registry
}

// QuoteStable returns the quote-scale credit for a stable-asset
// deposit. amount is denominated in the asset's native decimals.
func (p *Processor) QuoteStable(symbol string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, errs.Newf(errs.Validation, "deposit amount must be positive, got %d", amount)
	}
	asset, ok := p.registry.Get(symbol)
	if !ok {
		return 0, errs.Newf(errs.Validation, "asset %s is not accepted", symbol)
	}
	if !asset.Stable {
		return 0, errs.Newf(errs.Validation, "asset %s is not a stable asset", asset.Symbol)
	}
	credit := math.NormalizeDecimals(amount, int(asset.Decimals))
	if credit <= 0 {
		return 0, errs.Newf(errs.Validation, "deposit of %d %s is below the smallest representable credit", amount, asset.Symbol)
	}
	return credit, nil
}

// QuoteNonStable returns the quote-scale credit for a non-stable
// deposit priced by a signed attestation. price is quote units per
// whole token at the price scale; deadline is the attestation expiry
// in unix seconds.
func (p *Processor) QuoteNonStable(symbol string, amount, price, deadline int64, signed string) (int64, error) {
	if amount <= 0 {
		return 0, errs.Newf(errs.Validation, "deposit amount must be positive, got %d", amount)
	}
	if price <= 0 {
		return 0, errs.Newf(errs.Validation, "attested price must be positive, got %d", price)
	}
	asset, ok := p.registry.Get(symbol)
	if !ok {
		return 0, errs.Newf(errs.Validation, "asset %s is not accepted", symbol)
	}
	if asset.Stable {
		return 0, errs.Newf(errs.Validation, "asset %s is a stable asset, use the stable deposit path", asset.Symbol)
	}
	if err := p.verifier.VerifyPrice(signed, asset.Symbol, price, deadline); err != nil {
		return 0, err
	}
	normalized := math.NormalizeDecimals(amount, int(asset.Decimals))
	credit := math.ConvertAtPrice(normalized, price)
	if credit <= 0 {
		return 0, errs.Newf(errs.Validation, "deposit of %d %s is below the smallest representable credit", amount, asset.Symbol)
	}
	return credit, nil
}
