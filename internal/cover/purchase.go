// internal/cover/purchase.go
package cover

import (
	"fmt"

	"CoverLedger/internal/errs"
	"CoverLedger/internal/event"

	"github.com/google/uuid"
)

// purchasePlan is the validated outcome of a purchase request. Plans
// separate validation from mutation so the payment paths can validate
// a purchase against the post-deposit balance before minting anything.
type purchasePlan struct {
	coverLimit int64
	delta      int64
	noop       bool
	referrer   uuid.UUID // Nil when no referral bonus applies
}

// planPurchase validates a purchase without touching state.
// projectedBalance is the account balance the purchase will see, which
// for the payment paths includes the credit about to be minted.
func (p *Product) planPurchase(account uuid.UUID, coverLimit int64, referral *uuid.UUID, projectedBalance int64) (purchasePlan, error) {
	plan := purchasePlan{coverLimit: coverLimit}
	if account == uuid.Nil {
		return plan, errs.New(errs.Validation, "account must not be the zero address")
	}
	if coverLimit <= 0 {
		return plan, errs.Newf(errs.Validation, "cover limit must be positive, got %d", coverLimit)
	}
	if p.config.Paused {
		return plan, errs.New(errs.State, "product is paused")
	}

	var current int64
	if policyID, ok := p.policyByOwner[account]; ok {
		if policy := p.policiesByID[policyID]; policy.Active {
			current = policy.CoverLimit
		}
	}
	plan.delta = coverLimit - current
	if plan.delta > 0 {
		headroom := p.risk.MaxCoverPerStrategy(p.strategy) - p.risk.ActiveCoverLimitOf(p.strategy)
		if headroom < 0 {
			headroom = 0
		}
		if plan.delta > headroom {
			return plan, errs.Newf(errs.Capacity, "cover limit increase %d exceeds available capacity %d", plan.delta, headroom)
		}
		if strategy, ok := p.risk.StrategyOf(p.strategy); !ok || !strategy.Active {
			return plan, errs.New(errs.State, "coverage strategy is not active")
		}
	}

	minRequired := p.MinRequiredAccountBalance(coverLimit)
	if projectedBalance < minRequired {
		return plan, errs.Newf(errs.Balance, "account balance %d is below the minimum %d required for cover limit %d",
			projectedBalance, minRequired, coverLimit)
	}

	plan.noop = current == coverLimit
	referrer, err := p.planReferral(account, referral)
	if err != nil {
		return plan, err
	}
	plan.referrer = referrer
	return plan, nil
}

// planReferral resolves a referral code to the referrer address, or
// Nil when the program is off. The off switch suppresses the bonus
// without failing the purchase, including on reuse.
func (p *Product) planReferral(purchaser uuid.UUID, code *uuid.UUID) (uuid.UUID, error) {
	if code == nil || !p.config.ReferralOn || p.config.ReferralReward <= 0 {
		return uuid.Nil, nil
	}
	if *code == purchaser {
		return uuid.Nil, errs.New(errs.Validation, "cannot refer yourself")
	}
	policyID, ok := p.policyByOwner[*code]
	if !ok || !p.policiesByID[policyID].Active {
		return uuid.Nil, errs.New(errs.Validation, "referrer does not hold an active policy")
	}
	if p.ledger.HasUsedReferralCode(purchaser) {
		return uuid.Nil, errs.New(errs.Validation, "cannot use referral code again")
	}
	return *code, nil
}

// applyPurchase mutates state for a validated plan. Failures past this
// point are corruption, not user errors.
func (p *Product) applyPurchase(account uuid.UUID, plan purchasePlan, now int64) {
	if !plan.noop {
		if plan.delta != 0 {
			if err := p.risk.UpdateActiveCoverLimit(p.strategy, p.strategy, plan.delta); err != nil {
				panic(fmt.Sprintf("FATAL: risk update failed after purchase validation: %v", err))
			}
		}
		policyID, exists := p.policyByOwner[account]
		if !exists {
			policyID = p.nextPolicyID
			p.nextPolicyID++
			p.policiesByID[policyID] = &Policy{ID: policyID, Owner: account, CreatedAt: now}
			p.policyByOwner[account] = policyID
		}
		policy := p.policiesByID[policyID]
		previous := policy.CoverLimit
		policy.CoverLimit = plan.coverLimit
		policy.PreDeactivateCoverLimit = plan.coverLimit
		policy.Active = true

		if exists {
			p.outbox.Record(&event.PolicyUpdated{
				PolicyID:      policyID,
				Owner:         account,
				OldCoverLimit: previous,
				NewCoverLimit: plan.coverLimit,
			})
		} else {
			p.outbox.Record(&event.PolicyCreated{
				PolicyID:   policyID,
				Owner:      account,
				CoverLimit: plan.coverLimit,
			})
		}
		p.exitCooldown(account)
	}
	p.applyReferral(account, plan.referrer)
}

func (p *Product) exitCooldown(account uuid.UUID) {
	if p.ledger.CooldownStartOf(account) == 0 {
		return
	}
	if err := p.ledger.ClearCooldown(p.strategy, account); err != nil {
		panic(fmt.Sprintf("FATAL: cooldown clear failed for registered mover: %v", err))
	}
}

func (p *Product) applyReferral(purchaser, referrer uuid.UUID) {
	if referrer == uuid.Nil {
		return
	}
	reward := p.config.ReferralReward
	if err := p.ledger.MarkReferralUsed(p.strategy, purchaser); err != nil {
		panic(fmt.Sprintf("FATAL: referral flag update failed after validation: %v", err))
	}
	if err := p.ledger.AddRewardPoints(p.strategy, purchaser, reward); err != nil {
		panic(fmt.Sprintf("FATAL: redeemer reward grant failed after validation: %v", err))
	}
	if err := p.ledger.AddRewardPoints(p.strategy, referrer, reward); err != nil {
		panic(fmt.Sprintf("FATAL: referrer reward grant failed after validation: %v", err))
	}
	p.outbox.Record(&event.RewardPointsEarned{Earner: purchaser, Amount: reward, Peer: referrer, Redeemed: true})
	p.outbox.Record(&event.RewardPointsEarned{Earner: referrer, Amount: reward, Peer: purchaser})
}

// Purchase creates, reactivates, or resizes the caller's policy.
// Repeating the call with the current cover limit re-validates and
// changes nothing.
func (p *Product) Purchase(account uuid.UUID, coverLimit int64, referral *uuid.UUID) error {
	plan, err := p.planPurchase(account, coverLimit, referral, p.ledger.BalanceOf(account))
	if err != nil {
		return err
	}
	p.applyPurchase(account, plan, p.clock.Now().Unix())
	return nil
}

// Deposit credits an account with quote-denominated funds and ends a
// running cooldown. Allowed while paused so holders can top up and
// avoid deactivation.
func (p *Product) Deposit(funder, recipient uuid.UUID, amount int64) error {
	if funder == uuid.Nil {
		return errs.New(errs.Validation, "funder must not be the zero address")
	}
	if _, _, err := p.ledger.Mint(p.strategy, recipient, amount, false); err != nil {
		return err
	}
	p.exitCooldown(recipient)
	p.outbox.Record(&event.DepositMade{Funder: funder, Recipient: recipient, Amount: amount})
	return nil
}

// Withdraw pays out account balance. The ledger enforces every
// retainer floor, which for covered accounts keeps one billing cycle
// retained until a started cooldown elapses.
func (p *Product) Withdraw(owner uuid.UUID, amount int64) error {
	if _, _, err := p.ledger.Withdraw(p.strategy, owner, amount); err != nil {
		return err
	}
	p.outbox.Record(&event.WithdrawalMade{Owner: owner, Amount: amount})
	return nil
}

// =============================================================
// Payment-path purchases and deposits
// =============================================================

// depositViaPayments custodies the asset and mints the quoted credit.
// Callers must have validated everything downstream of the mint first;
// custody is the point of no return.
func (p *Product) depositViaPayments(funder, recipient uuid.UUID, symbol string, amount, credit int64, nonRefundable bool) error {
	if err := p.vault.Custody(funder, symbol, amount); err != nil {
		return errs.Wrap(errs.State, "vault custody failed", err)
	}
	if _, _, err := p.ledger.Mint(p.strategy, recipient, credit, nonRefundable); err != nil {
		panic(fmt.Sprintf("FATAL: mint failed after custody of %d %s: %v", amount, symbol, err))
	}
	p.exitCooldown(recipient)
	asset, _ := p.payments.Registry().Get(symbol)
	p.outbox.Record(&event.DepositMade{
		Funder:        funder,
		Recipient:     recipient,
		Amount:        credit,
		Asset:         asset.Symbol,
		NonRefundable: nonRefundable,
	})
	return nil
}

func (p *Product) validatePaymentParties(funder, recipient uuid.UUID) error {
	if funder == uuid.Nil {
		return errs.New(errs.Validation, "funder must not be the zero address")
	}
	if recipient == uuid.Nil {
		return errs.New(errs.Validation, "account must not be the zero address")
	}
	return nil
}

// DepositStable converts an accepted stable asset into refundable
// account credit.
func (p *Product) DepositStable(funder, recipient uuid.UUID, symbol string, amount int64) error {
	if err := p.validatePaymentParties(funder, recipient); err != nil {
		return err
	}
	credit, err := p.payments.QuoteStable(symbol, amount)
	if err != nil {
		return err
	}
	return p.depositViaPayments(funder, recipient, symbol, amount, credit, false)
}

// DepositNonStable converts a non-stable asset into non-refundable
// credit at an attested price. The credit cannot be refunded because
// the asset itself cannot be handed back.
func (p *Product) DepositNonStable(funder, recipient uuid.UUID, symbol string, amount, price, priceDeadline int64, priceToken string) error {
	if err := p.validatePaymentParties(funder, recipient); err != nil {
		return err
	}
	credit, err := p.payments.QuoteNonStable(symbol, amount, price, priceDeadline, priceToken)
	if err != nil {
		return err
	}
	return p.depositViaPayments(funder, recipient, symbol, amount, credit, true)
}

// PurchaseWithStable funds the account from a stable asset and then
// purchases in the same step. The purchase is validated against the
// post-deposit balance before any asset changes hands, so a failing
// purchase leaves the funder's asset untouched.
func (p *Product) PurchaseWithStable(funder, account uuid.UUID, coverLimit int64, symbol string, amount int64, referral *uuid.UUID) error {
	if err := p.validatePaymentParties(funder, account); err != nil {
		return err
	}
	credit, err := p.payments.QuoteStable(symbol, amount)
	if err != nil {
		return err
	}
	plan, err := p.planPurchase(account, coverLimit, referral, p.ledger.BalanceOf(account)+credit)
	if err != nil {
		return err
	}
	if err := p.depositViaPayments(funder, account, symbol, amount, credit, false); err != nil {
		return err
	}
	p.applyPurchase(account, plan, p.clock.Now().Unix())
	return nil
}

// PurchaseWithNonStable is PurchaseWithStable for volatile assets: the
// deposit leg requires a signed price attestation and mints
// non-refundable credit.
func (p *Product) PurchaseWithNonStable(funder, account uuid.UUID, coverLimit int64, symbol string, amount, price, priceDeadline int64, priceToken string, referral *uuid.UUID) error {
	if err := p.validatePaymentParties(funder, account); err != nil {
		return err
	}
	credit, err := p.payments.QuoteNonStable(symbol, amount, price, priceDeadline, priceToken)
	if err != nil {
		return err
	}
	plan, err := p.planPurchase(account, coverLimit, referral, p.ledger.BalanceOf(account)+credit)
	if err != nil {
		return err
	}
	if err := p.depositViaPayments(funder, account, symbol, amount, credit, true); err != nil {
		return err
	}
	p.applyPurchase(account, plan, p.clock.Now().Unix())
	return nil
}
