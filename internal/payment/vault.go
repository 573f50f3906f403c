// internal/payment/vault.go
package payment

import "github.com/google/uuid"

// Vault is the custody sink for external asset deposits. The engine
// never holds the asset itself; it records the credit and hands the
// asset off here.
type Vault interface {
	Custody(funder uuid.UUID, symbol string, amount int64) error
}

// NopVault accepts every deposit without side effects. Deployments
// without a custody integration run with it.
type NopVault struct{}

func (NopVault) Custody(uuid.UUID, string, int64) error { return nil }
