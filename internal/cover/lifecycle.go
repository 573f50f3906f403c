// internal/cover/lifecycle.go
package cover

import (
	"fmt"

	"CoverLedger/internal/errs"
	"CoverLedger/internal/event"
	"CoverLedger/internal/ledger"

	"github.com/google/uuid"
)

func (p *Product) activePolicyOf(owner uuid.UUID) (*Policy, error) {
	policyID, ok := p.policyByOwner[owner]
	if !ok {
		return nil, errs.Newf(errs.State, "account %s holds no policy", owner)
	}
	policy := p.policiesByID[policyID]
	if !policy.Active {
		return nil, errs.Newf(errs.State, "policy %d is not active", policyID)
	}
	return policy, nil
}

// deactivate zeroes the policy's cover and returns the prior limit.
// retainFloor keeps the withdrawal floor alive at the prior limit;
// settled closures drop the floor entirely.
func (p *Product) deactivate(policy *Policy, retainFloor bool) int64 {
	prior := policy.CoverLimit
	if prior != 0 {
		if err := p.risk.UpdateActiveCoverLimit(p.strategy, p.strategy, -prior); err != nil {
			panic(fmt.Sprintf("FATAL: risk decrement failed on deactivation: %v", err))
		}
	}
	policy.CoverLimit = 0
	policy.Active = false
	if retainFloor {
		policy.PreDeactivateCoverLimit = prior
	} else {
		policy.PreDeactivateCoverLimit = 0
	}
	return prior
}

// chargeFunds collects up to premium from reward points first, then
// ledger balance, routing the balance share to the premium pool.
// Never fails for insufficient funds: it takes what is there.
func (p *Product) chargeFunds(owner uuid.UUID, premium int64) (fromRewards, fromBalance int64) {
	if premium <= 0 {
		return 0, 0
	}
	points := p.ledger.RewardPointsOf(owner)
	balance := p.ledger.BalanceOf(owner)
	fromRewards = premium
	if points < fromRewards {
		fromRewards = points
	}
	fromBalance = premium - fromRewards
	if balance < fromBalance {
		fromBalance = balance
	}
	if fromRewards > 0 {
		if err := p.ledger.SpendRewardPoints(p.strategy, owner, fromRewards); err != nil {
			panic(fmt.Sprintf("FATAL: reward spend failed after balance read: %v", err))
		}
	}
	if fromBalance > 0 {
		if _, _, err := p.ledger.TransferFrom(p.strategy, owner, ledger.PremiumPoolAddress, fromBalance); err != nil {
			panic(fmt.Sprintf("FATAL: premium transfer failed after balance read: %v", err))
		}
	}
	return fromRewards, fromBalance
}

// DeactivatePolicy turns coverage off and starts the withdrawal
// cooldown. The policy record persists and a later purchase
// reactivates it.
func (p *Product) DeactivatePolicy(owner uuid.UUID) error {
	policy, err := p.activePolicyOf(owner)
	if err != nil {
		return err
	}
	prior := p.deactivate(policy, true)
	start := p.clock.Now().Unix()
	if err := p.ledger.SetCooldownStart(p.strategy, owner, start); err != nil {
		panic(fmt.Sprintf("FATAL: cooldown start failed for registered mover: %v", err))
	}
	p.outbox.Record(&event.PolicyDeactivated{
		PolicyID:        policy.ID,
		Owner:           owner,
		PriorCoverLimit: prior,
		CooldownStart:   start,
	})
	return nil
}

// Cancel closes the policy against an externally signed settlement
// claim. It charges min(premium, available funds) and never fails for
// insufficient balance; the settled account keeps no withdrawal floor
// and no cooldown.
func (p *Product) Cancel(owner uuid.UUID, premium, deadline int64, signedClaim string) error {
	if premium < 0 {
		return errs.Newf(errs.Validation, "premium must not be negative, got %d", premium)
	}
	policy, err := p.activePolicyOf(owner)
	if err != nil {
		return err
	}
	if err := p.verifier.VerifyCancel(signedClaim, owner, premium, deadline); err != nil {
		return err
	}

	fromRewards, fromBalance := p.chargeFunds(owner, premium)
	charged := fromRewards + fromBalance
	if charged > 0 {
		p.outbox.Record(&event.PremiumCharged{
			PolicyID:    policy.ID,
			Owner:       owner,
			Premium:     charged,
			FromRewards: fromRewards,
			FromBalance: fromBalance,
			BatchIndex:  -1,
		})
	}
	prior := p.deactivate(policy, false)
	p.exitCooldown(owner)
	p.outbox.Record(&event.PolicyCanceled{
		PolicyID:        policy.ID,
		Owner:           owner,
		PriorCoverLimit: prior,
		Charged:         charged,
	})
	return nil
}

func (p *Product) validateBatch(caller uuid.UUID, accounts []uuid.UUID, premiums []int64) error {
	if p.config.Collector == uuid.Nil || caller != p.config.Collector {
		return errs.New(errs.Authorization, "caller is not the premium collector")
	}
	if len(accounts) != len(premiums) {
		return errs.Newf(errs.Validation, "mismatched array lengths: %d accounts, %d premiums", len(accounts), len(premiums))
	}
	if len(accounts) > p.config.MaxChargeBatchSize {
		return errs.Newf(errs.Validation, "batch size %d exceeds the maximum %d", len(accounts), p.config.MaxChargeBatchSize)
	}
	for i, premium := range premiums {
		if premium < 0 {
			return errs.Newf(errs.Validation, "premium at index %d must not be negative, got %d", i, premium)
		}
	}
	return nil
}

// ChargePremiums runs one collector billing batch. Entries whose
// policy is missing or inactive are skipped, so redelivered batches
// cannot double-charge. Whole-batch deduplication by batch index is
// the engine's job.
func (p *Product) ChargePremiums(caller uuid.UUID, accounts []uuid.UUID, premiums []int64, batchIndex int64) error {
	if err := p.validateBatch(caller, accounts, premiums); err != nil {
		return err
	}
	for i, account := range accounts {
		p.chargeOne(account, premiums[i], batchIndex)
	}
	return nil
}

func (p *Product) chargeOne(owner uuid.UUID, premium, batchIndex int64) {
	policyID, ok := p.policyByOwner[owner]
	if !ok {
		return
	}
	policy := p.policiesByID[policyID]
	if !policy.Active {
		return
	}
	// The collector cannot bill beyond the advertised max rate for one
	// cycle of the current cover limit.
	if limit := p.MinRequiredAccountBalance(policy.CoverLimit); premium > limit {
		premium = limit
	}
	if premium <= 0 {
		return
	}

	points := p.ledger.RewardPointsOf(owner)
	balance := p.ledger.BalanceOf(owner)
	if points+balance >= premium {
		fromRewards, fromBalance := p.chargeFunds(owner, premium)
		p.outbox.Record(&event.PremiumCharged{
			PolicyID:    policy.ID,
			Owner:       owner,
			Premium:     premium,
			FromRewards: fromRewards,
			FromBalance: fromBalance,
			BatchIndex:  batchIndex,
		})
		return
	}

	// The account cannot cover the premium: take everything it has and
	// close out the coverage. No cooldown starts (the account is
	// empty), but the floor stays keyed to the prior limit so later
	// deposits still sit behind a deactivation cooldown.
	fromRewards, fromBalance := p.chargeFunds(owner, premium)
	p.outbox.Record(&event.PremiumPartiallyCharged{
		PolicyID:    policy.ID,
		Owner:       owner,
		Premium:     premium,
		Charged:     fromRewards + fromBalance,
		FromRewards: fromRewards,
		FromBalance: fromBalance,
		BatchIndex:  batchIndex,
	})
	prior := p.deactivate(policy, true)
	p.outbox.Record(&event.PolicyDeactivated{
		PolicyID:        policy.ID,
		Owner:           owner,
		PriorCoverLimit: prior,
		CooldownStart:   0,
	})
}

// CancelPolicies is the collector's bulk close-out for accounts in
// arrears: per entry it charges min(premium, available funds) and
// cancels like a settled Cancel, without a signature. Entries with no
// active policy are skipped.
func (p *Product) CancelPolicies(caller uuid.UUID, accounts []uuid.UUID, premiums []int64) error {
	if err := p.validateBatch(caller, accounts, premiums); err != nil {
		return err
	}
	for i, account := range accounts {
		policyID, ok := p.policyByOwner[account]
		if !ok {
			continue
		}
		policy := p.policiesByID[policyID]
		if !policy.Active {
			continue
		}
		fromRewards, fromBalance := p.chargeFunds(account, premiums[i])
		charged := fromRewards + fromBalance
		if charged > 0 {
			p.outbox.Record(&event.PremiumCharged{
				PolicyID:    policy.ID,
				Owner:       account,
				Premium:     charged,
				FromRewards: fromRewards,
				FromBalance: fromBalance,
				BatchIndex:  -1,
			})
		}
		prior := p.deactivate(policy, false)
		p.exitCooldown(account)
		p.outbox.Record(&event.PolicyCanceled{
			PolicyID:        policy.ID,
			Owner:           account,
			PriorCoverLimit: prior,
			Charged:         charged,
		})
	}
	return nil
}
