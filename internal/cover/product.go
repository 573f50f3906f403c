// internal/cover/product.go
package cover

import (
	"strconv"

	"CoverLedger/internal/claims"
	"CoverLedger/internal/clock"
	"CoverLedger/internal/errs"
	"CoverLedger/internal/event"
	"CoverLedger/internal/ledger"
	"CoverLedger/internal/math"
	"CoverLedger/internal/payment"
	"CoverLedger/internal/risk"

	"github.com/google/uuid"
)

// Product is the coverage policy engine. It owns the policy table and
// the product configuration, acts as the risk manager strategy backing
// every policy, and is both a ledger mover (it moves premium money)
// and a ledger retainer (it floors withdrawals of covered accounts).
//
// Not thread-safe. Only accessed by the engine under its execution slot.
type Product struct {
	strategy uuid.UUID
	config   Config

	ledger   *ledger.Ledger
	risk     *risk.Manager
	verifier *claims.Verifier
	payments *payment.Processor
	vault    payment.Vault
	clock    clock.Clock
	outbox   *event.Outbox

	nextPolicyID  uint64
	policiesByID  map[uint64]*Policy
	policyByOwner map[uuid.UUID]uint64
}

func NewProduct(
	strategy uuid.UUID,
	config Config,
	led *ledger.Ledger,
	riskMgr *risk.Manager,
	verifier *claims.Verifier,
	payments *payment.Processor,
	vault payment.Vault,
	clk clock.Clock,
	outbox *event.Outbox,
) *Product {
	return &Product{
		strategy:      strategy,
		config:        config,
		ledger:        led,
		risk:          riskMgr,
		verifier:      verifier,
		payments:      payments,
		vault:         vault,
		clock:         clk,
		outbox:        outbox,
		nextPolicyID:  1,
		policiesByID:  make(map[uint64]*Policy),
		policyByOwner: make(map[uuid.UUID]uint64),
	}
}

// StrategyAddress is the product's identity in the risk manager, the
// mover registry, and the retainer registry.
func (p *Product) StrategyAddress() uuid.UUID {
	return p.strategy
}

// MinRequiredAccountBalance is the balance needed to hold coverLimit
// through one full billing cycle at the maximum rate.
func (p *Product) MinRequiredAccountBalance(coverLimit int64) int64 {
	return math.MinRequiredBalance(coverLimit, p.config.MaxRateNum, p.config.MaxRateDenom, p.config.Cycle.Seconds())
}

// =============================================================
// ledger.Retainer
// =============================================================

func (p *Product) RetainerID() uuid.UUID {
	return p.strategy
}

// MinBalanceRequired returns the withdrawal floor for one account: one
// full cycle at max rate against the active cover limit, or against
// the pre-deactivation limit until the cooldown elapses. Zero once a
// started cooldown has run out.
func (p *Product) MinBalanceRequired(account uuid.UUID) int64 {
	policyID, ok := p.policyByOwner[account]
	if !ok {
		return 0
	}
	policy := p.policiesByID[policyID]
	if policy.Active {
		return p.MinRequiredAccountBalance(policy.CoverLimit)
	}
	start := p.ledger.CooldownStartOf(account)
	if start != 0 && p.clock.Now().Unix() >= start+p.config.CooldownSeconds {
		return 0
	}
	return p.MinRequiredAccountBalance(policy.PreDeactivateCoverLimit)
}

// =============================================================
// Reads
// =============================================================

func (p *Product) PolicyOf(owner uuid.UUID) (uint64, bool) {
	id, ok := p.policyByOwner[owner]
	return id, ok
}

func (p *Product) OwnerOf(policyID uint64) (uuid.UUID, bool) {
	policy, ok := p.policiesByID[policyID]
	if !ok {
		return uuid.Nil, false
	}
	return policy.Owner, true
}

func (p *Product) CoverLimitOf(policyID uint64) int64 {
	if policy, ok := p.policiesByID[policyID]; ok {
		return policy.CoverLimit
	}
	return 0
}

func (p *Product) PolicyStatus(policyID uint64) bool {
	if policy, ok := p.policiesByID[policyID]; ok {
		return policy.Active
	}
	return false
}

// BalanceOf reports policy count per owner. The owner-to-policy
// mapping is 1:1 and permanent, so this is 0 or 1.
func (p *Product) BalanceOf(owner uuid.UUID) int {
	if _, ok := p.policyByOwner[owner]; ok {
		return 1
	}
	return 0
}

func (p *Product) PolicyCount() uint64 {
	return p.nextPolicyID - 1
}

// TokenURI is baseURI + policyID for any policy that has ever existed.
func (p *Product) TokenURI(policyID uint64) (string, error) {
	if policyID == 0 || policyID >= p.nextPolicyID {
		return "", errs.Newf(errs.State, "policy %d has never existed", policyID)
	}
	return p.config.BaseURI + strconv.FormatUint(policyID, 10), nil
}

func (p *Product) Config() Config {
	return p.config
}

func (p *Product) Paused() bool {
	return p.config.Paused
}

// =============================================================
// Governed configuration
// =============================================================

func (p *Product) SetMaxRate(num, denom int64) error {
	if err := p.config.SetMaxRate(num, denom); err != nil {
		return err
	}
	p.outbox.Record(&event.ConfigUpdated{Key: "max_rate", Value: strconv.FormatInt(num, 10) + "/" + strconv.FormatInt(denom, 10)})
	return nil
}

func (p *Product) SetChargeCycle(cycle ChargeCycle) error {
	if err := p.config.SetChargeCycle(cycle); err != nil {
		return err
	}
	p.outbox.Record(&event.ConfigUpdated{Key: "charge_cycle", Value: cycle.String()})
	return nil
}

func (p *Product) SetPaused(paused bool) {
	p.config.SetPaused(paused)
	p.outbox.Record(&event.PauseSet{Paused: paused})
}

func (p *Product) SetCooldownSeconds(seconds int64) error {
	if err := p.config.SetCooldownSeconds(seconds); err != nil {
		return err
	}
	p.outbox.Record(&event.ConfigUpdated{Key: "cooldown_seconds", Value: strconv.FormatInt(seconds, 10)})
	return nil
}

func (p *Product) SetReferralReward(amount int64) error {
	if err := p.config.SetReferralReward(amount); err != nil {
		return err
	}
	p.outbox.Record(&event.ConfigUpdated{Key: "referral_reward", Value: strconv.FormatInt(amount, 10)})
	return nil
}

func (p *Product) SetReferralOn(on bool) {
	p.config.SetReferralOn(on)
	p.outbox.Record(&event.ConfigUpdated{Key: "referral_on", Value: strconv.FormatBool(on)})
}

func (p *Product) SetMaxChargeBatchSize(n int) error {
	if err := p.config.SetMaxChargeBatchSize(n); err != nil {
		return err
	}
	p.outbox.Record(&event.ConfigUpdated{Key: "max_charge_batch_size", Value: strconv.Itoa(n)})
	return nil
}

func (p *Product) SetBaseURI(uri string) {
	p.config.SetBaseURI(uri)
	p.outbox.Record(&event.ConfigUpdated{Key: "base_uri", Value: uri})
}

func (p *Product) SetCollector(addr uuid.UUID) error {
	if err := p.config.SetCollector(addr); err != nil {
		return err
	}
	p.outbox.Record(&event.ConfigUpdated{Key: "collector", Value: addr.String()})
	return nil
}

// =============================================================
// Snapshot / restore
// =============================================================

// Policies returns every policy in ID order for snapshots.
func (p *Product) Policies() []Policy {
	out := make([]Policy, 0, len(p.policiesByID))
	for id := uint64(1); id < p.nextPolicyID; id++ {
		if policy, ok := p.policiesByID[id]; ok {
			out = append(out, *policy)
		}
	}
	return out
}

func (p *Product) PolicyByID(policyID uint64) (Policy, bool) {
	policy, ok := p.policiesByID[policyID]
	if !ok {
		return Policy{}, false
	}
	return *policy, true
}

// RestorePolicy reinstates one policy from a snapshot.
func (p *Product) RestorePolicy(policy Policy) {
	cp := policy
	p.policiesByID[cp.ID] = &cp
	p.policyByOwner[cp.Owner] = cp.ID
	if cp.ID >= p.nextPolicyID {
		p.nextPolicyID = cp.ID + 1
	}
}

func (p *Product) RestoreConfig(config Config) {
	p.config = config
}

// ValidateInvariants checks the policy table. Violations indicate
// corruption, and the engine treats them as fatal.
func (p *Product) ValidateInvariants() error {
	for id, policy := range p.policiesByID {
		if policy.Active && policy.CoverLimit <= 0 {
			return errs.Newf(errs.State, "policy %d is active with cover limit %d", id, policy.CoverLimit)
		}
		if !policy.Active && policy.CoverLimit != 0 {
			return errs.Newf(errs.State, "policy %d is inactive with cover limit %d", id, policy.CoverLimit)
		}
		if policy.PreDeactivateCoverLimit < 0 {
			return errs.Newf(errs.State, "policy %d has negative retained cover limit %d", id, policy.PreDeactivateCoverLimit)
		}
		if mapped, ok := p.policyByOwner[policy.Owner]; !ok || mapped != id {
			return errs.Newf(errs.State, "policy %d owner mapping is inconsistent", id)
		}
	}
	return nil
}
