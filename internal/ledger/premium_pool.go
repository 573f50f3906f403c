// internal/ledger/premium_pool.go
package ledger

import (
	"github.com/google/uuid"
)

// PremiumPool is the typed facade over the premium sink account.
// Charged premiums accumulate here until governance sweeps them out.
type PremiumPool struct {
	ledger *Ledger
}

func NewPremiumPool(l *Ledger) *PremiumPool {
	return &PremiumPool{ledger: l}
}

func (p *PremiumPool) Address() uuid.UUID {
	return PremiumPoolAddress
}

// Balance returns the premiums collected and not yet swept.
func (p *PremiumPool) Balance() int64 {
	return p.ledger.BalanceOf(PremiumPoolAddress)
}

// CanCover reports whether the pool holds at least amount.
func (p *PremiumPool) CanCover(amount int64) bool {
	return p.Balance() >= amount
}

// Sweep moves collected premiums to a destination account on behalf
// of a mover (the engine performs the governance check).
func (p *PremiumPool) Sweep(mover, to uuid.UUID, amount int64) error {
	_, _, err := p.ledger.TransferFrom(mover, PremiumPoolAddress, to, amount)
	return err
}
