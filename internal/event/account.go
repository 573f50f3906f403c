// internal/event/account.go
package event

import "github.com/google/uuid"

type DepositMade struct {
	Funder    uuid.UUID
	Recipient uuid.UUID
	Amount    int64
	// Asset symbol for payment-path deposits, "" for direct ledger credit
	Asset         string
	NonRefundable bool
}

func (e *DepositMade) EventType() EventType { return EventTypeDepositMade }
func (e *DepositMade) Account() *uuid.UUID  { return &e.Recipient }

type WithdrawalMade struct {
	Owner  uuid.UUID
	Amount int64
}

func (e *WithdrawalMade) EventType() EventType { return EventTypeWithdrawalMade }
func (e *WithdrawalMade) Account() *uuid.UUID  { return &e.Owner }
