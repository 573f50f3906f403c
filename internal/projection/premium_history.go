// internal/projection/premium_history.go
package projection

import (
	"sync"

	"github.com/google/uuid"
)

const (
	outcomeCharged = "charged"
	outcomePartial = "partial"
	outcomeSettled = "settled"
)

// PremiumRecord is one premium charge or settlement.
type PremiumRecord struct {
	Sequence    int64     `json:"sequence"`
	PolicyID    uint64    `json:"policy_id"`
	Owner       uuid.UUID `json:"owner"`
	Premium     int64     `json:"premium"`
	Charged     int64     `json:"charged"`
	FromRewards int64     `json:"from_rewards"`
	FromBalance int64     `json:"from_balance"`
	BatchIndex  int64     `json:"batch_index"`
	Outcome     string    `json:"outcome"`
	Timestamp   int64     `json:"timestamp"`
}

// PremiumHistory keeps the most recent premium records in memory so the
// hot read path skips the database. Bounded; older records live in
// cover_read.premium_history. Safe for one writer and many readers.
type PremiumHistory struct {
	mu         sync.RWMutex
	records    []PremiumRecord
	maxRecords int
}

func NewPremiumHistory(maxRecords int) *PremiumHistory {
	if maxRecords <= 0 {
		maxRecords = 1024
	}
	return &PremiumHistory{
		records:    make([]PremiumRecord, 0, maxRecords),
		maxRecords: maxRecords,
	}
}

func (h *PremiumHistory) Add(record PremiumRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, record)
	if len(h.records) > h.maxRecords {
		trimmed := make([]PremiumRecord, h.maxRecords)
		copy(trimmed, h.records[len(h.records)-h.maxRecords:])
		h.records = trimmed
	}
}

// QueryByOwner returns up to limit records for owner, newest first.
func (h *PremiumHistory) QueryByOwner(owner uuid.UUID, limit int) []PremiumRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]PremiumRecord, 0)
	for i := len(h.records) - 1; i >= 0 && len(result) < limit; i-- {
		if h.records[i].Owner == owner {
			result = append(result, h.records[i])
		}
	}
	return result
}

// Recent returns up to limit records across all owners, newest first.
func (h *PremiumHistory) Recent(limit int) []PremiumRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if limit > len(h.records) {
		limit = len(h.records)
	}
	result := make([]PremiumRecord, 0, limit)
	for i := len(h.records) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, h.records[i])
	}
	return result
}

func (h *PremiumHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}

func (h *PremiumHistory) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = h.records[:0]
}
