// internal/event/risk.go
package event

import "github.com/google/uuid"

type StrategyAdded struct {
	Strategy uuid.UUID
	Weight   uint32
}

func (e *StrategyAdded) EventType() EventType { return EventTypeStrategyAdded }
func (e *StrategyAdded) Account() *uuid.UUID  { return &e.Strategy }

type StrategyStatusSet struct {
	Strategy uuid.UUID
	Active   bool
}

func (e *StrategyStatusSet) EventType() EventType { return EventTypeStrategyStatusSet }
func (e *StrategyStatusSet) Account() *uuid.UUID  { return &e.Strategy }

type WeightAllocationSet struct {
	Strategy uuid.UUID
	Weight   uint32
}

func (e *WeightAllocationSet) EventType() EventType { return EventTypeWeightAllocationSet }
func (e *WeightAllocationSet) Account() *uuid.UUID  { return &e.Strategy }

// CoverLimitAdjusted records a signed delta applied to a strategy's
// active cover limit and the resulting totals.
type CoverLimitAdjusted struct {
	Strategy       uuid.UUID
	Delta          int64
	StrategyActive int64 // strategy activeCoverLimit after the delta
	GlobalActive   int64 // global activeCoverLimit after the delta
}

func (e *CoverLimitAdjusted) EventType() EventType { return EventTypeCoverLimitAdjusted }
func (e *CoverLimitAdjusted) Account() *uuid.UUID  { return &e.Strategy }
