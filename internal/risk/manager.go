// internal/risk/manager.go
package risk

import (
	"CoverLedger/internal/errs"
	"CoverLedger/internal/event"
	fpmath "CoverLedger/internal/math"

	"github.com/google/uuid"
)

// CapitalProvider supplies the underwriting capital backing the pool.
// Treated as an opaque collaborator; the engine wires a config-backed
// implementation and tests use fakes.
type CapitalProvider interface {
	MaxCover() int64
}

// Strategy is one capital-allocation bucket (one per cover product).
type Strategy struct {
	Address          uuid.UUID
	Weight           uint32
	Active           bool
	ActiveCoverLimit int64
}

// CanonicalBytes serializes the strategy for deterministic state
// digests. Layout: address (16) || weight (4 LE) || active (1) ||
// active_cover_limit (8 LE).
func (s *Strategy) CanonicalBytes() []byte {
	buf := make([]byte, 0, 29)
	buf = append(buf, s.Address[:]...)
	buf = append(buf, byte(s.Weight), byte(s.Weight>>8), byte(s.Weight>>16), byte(s.Weight>>24))
	if s.Active {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf,
		byte(s.ActiveCoverLimit), byte(s.ActiveCoverLimit>>8),
		byte(s.ActiveCoverLimit>>16), byte(s.ActiveCoverLimit>>24),
		byte(s.ActiveCoverLimit>>32), byte(s.ActiveCoverLimit>>40),
		byte(s.ActiveCoverLimit>>48), byte(s.ActiveCoverLimit>>56),
	)
	return buf
}

// Manager tracks capital allocation across strategies. The global
// active cover limit is maintained alongside the per-strategy values
// and must always equal their sum.
//
// Not thread-safe — only accessed under the engine's execution slot.
type Manager struct {
	capital    CapitalProvider
	order      []uuid.UUID
	strategies map[uuid.UUID]*Strategy
	weightSum  uint32

	globalActiveCoverLimit int64

	outbox *event.Outbox
}

func NewManager(capital CapitalProvider, outbox *event.Outbox) *Manager {
	return &Manager{
		capital:    capital,
		order:      make([]uuid.UUID, 0, 2),
		strategies: make(map[uuid.UUID]*Strategy),
		outbox:     outbox,
	}
}

// AddStrategy registers a new strategy with the given weight.
// Governance authorization happens at the engine boundary.
func (m *Manager) AddStrategy(strategy uuid.UUID, weight uint32) error {
	if strategy == uuid.Nil {
		return errs.New(errs.Validation, "zero address strategy")
	}
	if _, exists := m.strategies[strategy]; exists {
		return errs.Newf(errs.State, "strategy %s already registered", strategy)
	}

	m.order = append(m.order, strategy)
	m.strategies[strategy] = &Strategy{
		Address: strategy,
		Weight:  weight,
		Active:  true,
	}
	m.weightSum += weight

	m.outbox.Record(&event.StrategyAdded{Strategy: strategy, Weight: weight})
	return nil
}

// SetStrategyStatuses toggles strategies in bulk; parallel arrays must
// have equal length.
func (m *Manager) SetStrategyStatuses(strategies []uuid.UUID, statuses []bool) error {
	if len(strategies) != len(statuses) {
		return errs.Newf(errs.Validation, "mismatched array lengths: %d strategies, %d statuses",
			len(strategies), len(statuses))
	}
	for _, addr := range strategies {
		if _, exists := m.strategies[addr]; !exists {
			return errs.Newf(errs.State, "unknown strategy %s", addr)
		}
	}
	for i, addr := range strategies {
		s := m.strategies[addr]
		if s.Active != statuses[i] {
			s.Active = statuses[i]
			m.outbox.Record(&event.StrategyStatusSet{Strategy: addr, Active: statuses[i]})
		}
	}
	return nil
}

// SetWeightAllocation updates strategy weights in bulk; parallel
// arrays must have equal length.
func (m *Manager) SetWeightAllocation(strategies []uuid.UUID, weights []uint32) error {
	if len(strategies) != len(weights) {
		return errs.Newf(errs.Validation, "mismatched array lengths: %d strategies, %d weights",
			len(strategies), len(weights))
	}
	for _, addr := range strategies {
		if _, exists := m.strategies[addr]; !exists {
			return errs.Newf(errs.State, "unknown strategy %s", addr)
		}
	}
	for i, addr := range strategies {
		s := m.strategies[addr]
		m.weightSum = m.weightSum - s.Weight + weights[i]
		s.Weight = weights[i]
		m.outbox.Record(&event.WeightAllocationSet{Strategy: addr, Weight: weights[i]})
	}
	return nil
}

// UpdateActiveCoverLimit applies a signed delta to a strategy's active
// cover limit. Only the strategy itself may call; increases require
// the strategy to be active, decreases are always allowed so a
// deactivated strategy can wind down.
func (m *Manager) UpdateActiveCoverLimit(caller, strategy uuid.UUID, delta int64) error {
	if caller != strategy {
		return errs.New(errs.Authorization, "only the strategy itself may adjust its cover limit")
	}
	s := m.strategies[strategy]
	if s == nil {
		return errs.Newf(errs.State, "unknown strategy %s", strategy)
	}
	if delta > 0 && !s.Active {
		return errs.Newf(errs.State, "strategy %s is inactive", strategy)
	}

	next := s.ActiveCoverLimit + delta
	if next < 0 {
		return errs.Newf(errs.Validation, "cover limit delta %d would drive strategy below zero (current %d)",
			delta, s.ActiveCoverLimit)
	}

	s.ActiveCoverLimit = next
	m.globalActiveCoverLimit += delta

	m.outbox.Record(&event.CoverLimitAdjusted{
		Strategy:       strategy,
		Delta:          delta,
		StrategyActive: s.ActiveCoverLimit,
		GlobalActive:   m.globalActiveCoverLimit,
	})
	return nil
}

// --- Reads ---

func (m *Manager) MaxCover() int64 {
	return m.capital.MaxCover()
}

// MaxCoverPerStrategy splits max cover by weight; 0 for unknown
// strategies.
func (m *Manager) MaxCoverPerStrategy(strategy uuid.UUID) int64 {
	s := m.strategies[strategy]
	if s == nil {
		return 0
	}
	return fpmath.WeightedCapacity(m.MaxCover(), s.Weight, m.weightSum)
}

func (m *Manager) ActiveCoverLimit() int64 {
	return m.globalActiveCoverLimit
}

func (m *Manager) ActiveCoverLimitOf(strategy uuid.UUID) int64 {
	if s := m.strategies[strategy]; s != nil {
		return s.ActiveCoverLimit
	}
	return 0
}

// AvailableCoverCapacity is the unallocated share of max cover.
func (m *Manager) AvailableCoverCapacity() int64 {
	capacity := m.MaxCover() - m.globalActiveCoverLimit
	if capacity < 0 {
		return 0
	}
	return capacity
}

// MinCapitalRequirement mirrors the global active cover limit under
// the 1:1 backing assumption.
func (m *Manager) MinCapitalRequirement() int64 {
	return m.globalActiveCoverLimit
}

func (m *Manager) MinCapitalRequirementPerStrategy(strategy uuid.UUID) int64 {
	return m.ActiveCoverLimitOf(strategy)
}

// StrategyOf returns a copy of the strategy record.
func (m *Manager) StrategyOf(strategy uuid.UUID) (Strategy, bool) {
	s := m.strategies[strategy]
	if s == nil {
		return Strategy{}, false
	}
	return *s, true
}

func (m *Manager) WeightSum() uint32 {
	return m.weightSum
}

// --- Invariants & snapshot hooks ---

// ValidateInvariants checks that the global total equals the sum of
// per-strategy limits.
func (m *Manager) ValidateInvariants() error {
	var sum int64
	for _, s := range m.strategies {
		if s.ActiveCoverLimit < 0 {
			return errs.Newf(errs.State, "strategy %s has negative active cover limit %d",
				s.Address, s.ActiveCoverLimit)
		}
		sum += s.ActiveCoverLimit
	}
	if sum != m.globalActiveCoverLimit {
		return errs.Newf(errs.State, "strategy cover limits sum to %d but global is %d",
			sum, m.globalActiveCoverLimit)
	}
	return nil
}

// Strategies returns copies in registration order (snapshot creation).
func (m *Manager) Strategies() []Strategy {
	out := make([]Strategy, 0, len(m.order))
	for _, addr := range m.order {
		out = append(out, *m.strategies[addr])
	}
	return out
}

// RestoreStrategy directly re-registers a strategy record and folds
// its values into the totals (snapshot restore).
func (m *Manager) RestoreStrategy(s Strategy) {
	copied := s
	m.order = append(m.order, s.Address)
	m.strategies[s.Address] = &copied
	m.weightSum += s.Weight
	m.globalActiveCoverLimit += s.ActiveCoverLimit
}
