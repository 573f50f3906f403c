package cover_test

import (
	"testing"
	"time"

	"CoverLedger/internal/claims"
	"CoverLedger/internal/errs"
	"CoverLedger/internal/event"
	"CoverLedger/internal/ledger"

	"github.com/google/uuid"
)

// weeklyMax is one cycle at the max rate for a 10000.0 cover limit
// under the harness config: 10_000_000000 * 604800 / 441504000.
const weeklyMax = int64(13_699_785)

func (h *harness) seedPoints(account uuid.UUID, amount int64) {
	h.t.Helper()
	if err := h.ledger.AddRewardPoints(strategyAddr, account, amount); err != nil {
		h.t.Fatalf("seed points: %v", err)
	}
}

func (h *harness) charge(accounts []uuid.UUID, premiums []int64, batchIndex int64) {
	h.t.Helper()
	if err := h.product.ChargePremiums(collectorAddr, accounts, premiums, batchIndex); err != nil {
		h.t.Fatalf("charge batch %d: %v", batchIndex, err)
	}
}

// =============================================================
// ChargePremiums
// =============================================================

func TestChargePremiumsAuthorizationAndValidation(t *testing.T) {
	h := newHarness(t)

	if err := h.product.ChargePremiums(alice, []uuid.UUID{alice}, []int64{1}, 1); !errs.IsAuthorization(err) {
		t.Fatalf("expected AuthorizationError for non-collector, got %v", err)
	}
	if err := h.product.ChargePremiums(collectorAddr, []uuid.UUID{alice, bob}, []int64{1}, 1); !errs.IsValidation(err) {
		t.Fatalf("expected ValidationError for mismatched lengths, got %v", err)
	}
	if err := h.product.ChargePremiums(collectorAddr, []uuid.UUID{alice}, []int64{-1}, 1); !errs.IsValidation(err) {
		t.Fatalf("expected ValidationError for negative premium, got %v", err)
	}

	oversized := make([]uuid.UUID, 101)
	premiums := make([]int64, 101)
	if err := h.product.ChargePremiums(collectorAddr, oversized, premiums, 1); !errs.IsValidation(err) {
		t.Fatalf("expected ValidationError for oversized batch, got %v", err)
	}
}

func TestChargePremiumsFromBalance(t *testing.T) {
	h := newHarness(t)
	h.fund(alice, 1_000_000000)
	h.purchase(alice, 10_000_000000)
	h.drainEvents()

	h.charge([]uuid.UUID{alice}, []int64{weeklyMax}, 1)

	if got := h.ledger.BalanceOf(alice); got != 1_000_000000-weeklyMax {
		t.Fatalf("expected balance %d, got %d", 1_000_000000-weeklyMax, got)
	}
	if got := h.ledger.BalanceOf(ledger.PremiumPoolAddress); got != weeklyMax {
		t.Fatalf("expected premium pool %d, got %d", weeklyMax, got)
	}

	events := h.drainEvents()
	if len(events) != 1 {
		t.Fatalf("expected one PremiumCharged, got %d events", len(events))
	}
	charged, ok := events[0].(*event.PremiumCharged)
	if !ok {
		t.Fatalf("expected PremiumCharged, got %T", events[0])
	}
	if charged.FromBalance != weeklyMax || charged.FromRewards != 0 || charged.BatchIndex != 1 {
		t.Fatalf("unexpected PremiumCharged payload: %+v", charged)
	}
	h.checkInvariants()
}

func TestChargePremiumsConsumesRewardPointsFirst(t *testing.T) {
	h := newHarness(t)
	h.fund(alice, 1_000_000000)
	h.purchase(alice, 10_000_000000)
	h.seedPoints(alice, 5_000_000)
	h.drainEvents()

	h.charge([]uuid.UUID{alice}, []int64{weeklyMax}, 1)

	if got := h.ledger.RewardPointsOf(alice); got != 0 {
		t.Fatalf("expected reward points exhausted, got %d", got)
	}
	wantFromBalance := weeklyMax - 5_000_000
	if got := h.ledger.BalanceOf(alice); got != 1_000_000000-wantFromBalance {
		t.Fatalf("expected balance %d, got %d", 1_000_000000-wantFromBalance, got)
	}
	// Only the balance share reaches the pool; points are not money.
	if got := h.ledger.BalanceOf(ledger.PremiumPoolAddress); got != wantFromBalance {
		t.Fatalf("expected premium pool %d, got %d", wantFromBalance, got)
	}

	events := h.drainEvents()
	charged, ok := events[0].(*event.PremiumCharged)
	if !ok {
		t.Fatalf("expected PremiumCharged, got %T", events[0])
	}
	if charged.FromRewards != 5_000_000 || charged.FromBalance != wantFromBalance {
		t.Fatalf("unexpected split: %+v", charged)
	}
	h.checkInvariants()
}

func TestChargePremiumsCoveredEntirelyByPoints(t *testing.T) {
	h := newHarness(t)
	h.fund(alice, 1_000_000000)
	h.purchase(alice, 10_000_000000)
	h.seedPoints(alice, 50_000000)
	h.drainEvents()

	h.charge([]uuid.UUID{alice}, []int64{weeklyMax}, 1)

	if got := h.ledger.RewardPointsOf(alice); got != 50_000000-weeklyMax {
		t.Fatalf("expected points %d, got %d", 50_000000-weeklyMax, got)
	}
	if got := h.ledger.BalanceOf(alice); got != 1_000_000000 {
		t.Fatalf("expected untouched balance, got %d", got)
	}
	if got := h.ledger.BalanceOf(ledger.PremiumPoolAddress); got != 0 {
		t.Fatalf("expected empty premium pool, got %d", got)
	}
	h.checkInvariants()
}

func TestChargePremiumsCapsAtMaxRate(t *testing.T) {
	h := newHarness(t)
	h.fund(alice, 1_000_000000)
	h.purchase(alice, 10_000_000000)
	h.drainEvents()

	// The collector asks for far more than one cycle at max rate.
	h.charge([]uuid.UUID{alice}, []int64{999_999_999}, 1)

	if got := h.ledger.BalanceOf(ledger.PremiumPoolAddress); got != weeklyMax {
		t.Fatalf("expected charge capped at %d, got pool %d", weeklyMax, got)
	}
	if !h.product.PolicyStatus(1) {
		t.Fatal("expected policy to stay active under a capped charge")
	}
	h.checkInvariants()
}

func TestChargePremiumsSkipsUnknownAndInactive(t *testing.T) {
	h := newHarness(t)
	h.fund(alice, 1_000_000000)
	h.purchase(alice, 10_000_000000)
	if err := h.product.DeactivatePolicy(alice); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	h.drainEvents()

	// Alice is inactive and carol has no policy; both are skipped.
	h.charge([]uuid.UUID{alice, carol}, []int64{weeklyMax, weeklyMax}, 1)

	if got := h.ledger.BalanceOf(alice); got != 1_000_000000 {
		t.Fatalf("expected inactive policy untouched, got balance %d", got)
	}
	if events := h.drainEvents(); len(events) != 0 {
		t.Fatalf("expected no events for skipped entries, got %d", len(events))
	}
}

// TestChargePremiumsExhaustionLoop bills a 10000.0 policy 13.7 per
// week against a 1000.0 balance until the account runs dry. Charges
// succeed until the remaining funds cannot cover a full premium; that
// charge takes everything, deactivates the policy, and releases the
// risk capacity.
func TestChargePremiumsExhaustionLoop(t *testing.T) {
	h := newHarness(t)
	h.fund(alice, 1_000_000000)
	h.purchase(alice, 10_000_000000)
	h.drainEvents()

	fullCharges := int64(1_000_000000) / weeklyMax // 72
	for i := int64(0); i < fullCharges; i++ {
		h.charge([]uuid.UUID{alice}, []int64{13_700_000}, i+1)
		if !h.product.PolicyStatus(1) {
			t.Fatalf("policy deactivated early at charge %d", i+1)
		}
	}

	remainder := 1_000_000000 - fullCharges*weeklyMax
	if got := h.ledger.BalanceOf(alice); got != remainder {
		t.Fatalf("expected remainder %d before the final charge, got %d", remainder, got)
	}
	if remainder >= weeklyMax {
		t.Fatalf("test premise broken: remainder %d still covers a premium", remainder)
	}
	h.drainEvents()
	activeBefore := h.risk.ActiveCoverLimit()

	// The final charge is partial: it empties the account and closes
	// the coverage.
	h.charge([]uuid.UUID{alice}, []int64{13_700_000}, fullCharges+1)

	if got := h.ledger.BalanceOf(alice); got != 0 {
		t.Fatalf("expected empty balance after partial charge, got %d", got)
	}
	if got := h.ledger.RewardPointsOf(alice); got != 0 {
		t.Fatalf("expected zero points after partial charge, got %d", got)
	}
	if h.product.PolicyStatus(1) {
		t.Fatal("expected policy deactivated after partial charge")
	}
	if got := h.risk.ActiveCoverLimit(); got != activeBefore-10_000_000000 {
		t.Fatalf("expected risk released by the pre-charge limit, got %d (was %d)", got, activeBefore)
	}
	// Every charged unit landed in the pool.
	if got := h.ledger.BalanceOf(ledger.PremiumPoolAddress); got != 1_000_000000 {
		t.Fatalf("expected the whole account in the premium pool, got %d", got)
	}

	events := h.drainEvents()
	if len(events) != 3 {
		t.Fatalf("expected partial charge, risk adjustment, deactivation; got %d events", len(events))
	}
	partial, ok := events[0].(*event.PremiumPartiallyCharged)
	if !ok {
		t.Fatalf("expected PremiumPartiallyCharged first, got %T", events[0])
	}
	if partial.Charged != remainder || partial.Premium != weeklyMax {
		t.Fatalf("unexpected partial payload: %+v", partial)
	}
	deactivated, ok := events[2].(*event.PolicyDeactivated)
	if !ok {
		t.Fatalf("expected PolicyDeactivated last, got %T", events[2])
	}
	if deactivated.PriorCoverLimit != 10_000_000000 || deactivated.CooldownStart != 0 {
		t.Fatalf("unexpected deactivation payload: %+v", deactivated)
	}

	// Redelivery of the same accounts is now a no-op.
	h.charge([]uuid.UUID{alice}, []int64{13_700_000}, fullCharges+2)
	if got := h.ledger.BalanceOf(ledger.PremiumPoolAddress); got != 1_000_000000 {
		t.Fatalf("expected pool unchanged on redelivery, got %d", got)
	}
	h.checkInvariants()
}

// =============================================================
// Cancel
// =============================================================

func (h *harness) signCancel(owner uuid.UUID, premium int64, deadline time.Time) string {
	h.t.Helper()
	signed, err := claims.SignCancel(h.signer, "signer-1", owner, premium, deadline)
	if err != nil {
		h.t.Fatalf("sign cancel: %v", err)
	}
	return signed
}

func TestCancelChargesAndSettles(t *testing.T) {
	h := newHarness(t)
	h.fund(alice, 1_000_000000)
	h.purchase(alice, 10_000_000000)
	h.seedPoints(alice, 5_000_000)
	h.drainEvents()

	deadline := h.clock.Now().Add(time.Hour)
	signed := h.signCancel(alice, 20_000_000, deadline)
	if err := h.product.Cancel(alice, 20_000_000, deadline.Unix(), signed); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// Points first, remainder from balance.
	if got := h.ledger.RewardPointsOf(alice); got != 0 {
		t.Fatalf("expected points exhausted, got %d", got)
	}
	if got := h.ledger.BalanceOf(alice); got != 1_000_000000-15_000_000 {
		t.Fatalf("expected balance %d, got %d", 1_000_000000-15_000_000, got)
	}
	if got := h.ledger.BalanceOf(ledger.PremiumPoolAddress); got != 15_000_000 {
		t.Fatalf("expected premium pool 15_000_000, got %d", got)
	}
	if h.product.PolicyStatus(1) {
		t.Fatal("expected policy inactive after cancel")
	}
	if got := h.risk.ActiveCoverLimit(); got != 0 {
		t.Fatalf("expected risk fully released, got %d", got)
	}

	// The settlement drops the withdrawal floor: the rest of the
	// balance leaves immediately, no cooldown.
	if err := h.product.Withdraw(alice, 1_000_000000-15_000_000); err != nil {
		t.Fatalf("withdraw after cancel: %v", err)
	}
	h.checkInvariants()
}

func TestCancelNeverFailsForInsufficientFunds(t *testing.T) {
	h := newHarness(t)
	h.fund(alice, 1_000_000000)
	h.purchase(alice, 10_000_000000)
	// Drain most of the account first.
	if err := h.product.Withdraw(alice, 1_000_000000-weeklyMax); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	h.drainEvents()

	deadline := h.clock.Now().Add(time.Hour)
	premium := int64(500_000000) // far more than remains
	signed := h.signCancel(alice, premium, deadline)
	if err := h.product.Cancel(alice, premium, deadline.Unix(), signed); err != nil {
		t.Fatalf("cancel with oversized premium: %v", err)
	}

	if got := h.ledger.BalanceOf(alice); got != 0 {
		t.Fatalf("expected everything charged, balance %d", got)
	}
	if got := h.ledger.BalanceOf(ledger.PremiumPoolAddress); got != weeklyMax {
		t.Fatalf("expected pool %d, got %d", weeklyMax, got)
	}

	events := h.drainEvents()
	canceled, ok := events[len(events)-1].(*event.PolicyCanceled)
	if !ok {
		t.Fatalf("expected PolicyCanceled last, got %T", events[len(events)-1])
	}
	if canceled.Charged != weeklyMax {
		t.Fatalf("expected charged %d, got %d", weeklyMax, canceled.Charged)
	}
	h.checkInvariants()
}

func TestCancelRejectsBadClaims(t *testing.T) {
	h := newHarness(t)
	h.fund(alice, 1_000_000000)
	h.purchase(alice, 10_000_000000)

	deadline := h.clock.Now().Add(time.Hour)
	signed := h.signCancel(alice, 20_000_000, deadline)

	// Premium differs from the signed amount.
	if err := h.product.Cancel(alice, 30_000_000, deadline.Unix(), signed); !errs.IsSignature(err) {
		t.Fatalf("expected SignatureError for premium mismatch, got %v", err)
	}
	// Expired claim.
	h.clock.Advance(2 * time.Hour)
	if err := h.product.Cancel(alice, 20_000_000, deadline.Unix(), signed); !errs.IsSignature(err) {
		t.Fatalf("expected SignatureError for expired claim, got %v", err)
	}
	// Nothing changed.
	if !h.product.PolicyStatus(1) {
		t.Fatal("expected policy untouched by rejected cancels")
	}
	if got := h.ledger.BalanceOf(alice); got != 1_000_000000 {
		t.Fatalf("expected untouched balance, got %d", got)
	}
}

func TestCancelRequiresActivePolicy(t *testing.T) {
	h := newHarness(t)
	deadline := h.clock.Now().Add(time.Hour)
	signed := h.signCancel(alice, 1, deadline)
	if err := h.product.Cancel(alice, 1, deadline.Unix(), signed); !errs.IsState(err) {
		t.Fatalf("expected StateError without a policy, got %v", err)
	}
}

// =============================================================
// Bulk Cancel
// =============================================================

func TestCancelPoliciesBulk(t *testing.T) {
	h := newHarness(t)
	h.fund(alice, 1_000_000000)
	h.fund(bob, 100_000000)
	h.purchase(alice, 10_000_000000)
	h.purchase(bob, 10_000_000000)
	if err := h.product.DeactivatePolicy(bob); err != nil {
		t.Fatalf("deactivate bob: %v", err)
	}
	h.drainEvents()

	// Bob is already inactive and is skipped; alice is settled for
	// min(premium, funds) and closed.
	err := h.product.CancelPolicies(collectorAddr,
		[]uuid.UUID{alice, bob, carol},
		[]int64{30_000_000, 30_000_000, 30_000_000})
	if err != nil {
		t.Fatalf("bulk cancel: %v", err)
	}

	if h.product.PolicyStatus(1) {
		t.Fatal("expected alice's policy closed")
	}
	if got := h.ledger.BalanceOf(alice); got != 1_000_000000-30_000_000 {
		t.Fatalf("expected alice charged 30_000_000, balance %d", got)
	}
	if got := h.ledger.BalanceOf(bob); got != 100_000000 {
		t.Fatalf("expected bob untouched, balance %d", got)
	}
	if got := h.ledger.BalanceOf(ledger.PremiumPoolAddress); got != 30_000_000 {
		t.Fatalf("expected pool 30_000_000, got %d", got)
	}

	// Alice can drain immediately: settled closures keep no floor.
	if err := h.product.Withdraw(alice, 1_000_000000-30_000_000); err != nil {
		t.Fatalf("withdraw after bulk cancel: %v", err)
	}

	if err := h.product.CancelPolicies(alice, []uuid.UUID{bob}, []int64{1}); !errs.IsAuthorization(err) {
		t.Fatalf("expected AuthorizationError for non-collector, got %v", err)
	}
	h.checkInvariants()
}
