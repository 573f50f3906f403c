// internal/payment/assets.go
package payment

import (
	"strings"

	"CoverLedger/internal/errs"
)

// Asset describes an accepted payment asset. Stable assets convert to
// account credit 1:1 at their native decimals; non-stable assets
// require a signed price attestation at deposit time.
type Asset struct {
	Symbol   string
	Decimals uint8
	Stable   bool
}

// Registry holds the governed set of accepted assets.
// Not thread-safe. Only accessed by the engine under its execution slot.
type Registry struct {
	order  []string
	assets map[string]Asset
}

func NewRegistry() *Registry {
	return &Registry{assets: make(map[string]Asset)}
}

func (r *Registry) Add(asset Asset) error {
	symbol := strings.ToUpper(strings.TrimSpace(asset.Symbol))
	if symbol == "" {
		return errs.New(errs.Validation, "asset symbol must not be empty")
	}
	if asset.Decimals > 18 {
		return errs.Newf(errs.Validation, "asset %s decimals %d exceed the supported maximum of 18", symbol, asset.Decimals)
	}
	if _, exists := r.assets[symbol]; exists {
		return errs.Newf(errs.State, "asset %s is already accepted", symbol)
	}
	asset.Symbol = symbol
	r.assets[symbol] = asset
	r.order = append(r.order, symbol)
	return nil
}

func (r *Registry) Remove(symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if _, exists := r.assets[symbol]; !exists {
		return errs.Newf(errs.Validation, "asset %s is not accepted", symbol)
	}
	delete(r.assets, symbol)
	for i, s := range r.order {
		if s == symbol {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *Registry) Get(symbol string) (Asset, bool) {
	asset, ok := r.assets[strings.ToUpper(strings.TrimSpace(symbol))]
	return asset, ok
}

// List returns accepted assets in registration order.
func (r *Registry) List() []Asset {
	out := make([]Asset, 0, len(r.order))
	for _, symbol := range r.order {
		out = append(out, r.assets[symbol])
	}
	return out
}
