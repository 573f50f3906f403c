package cover_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"
	"time"

	"CoverLedger/internal/claims"
	"CoverLedger/internal/clock"
	"CoverLedger/internal/cover"
	"CoverLedger/internal/errs"
	"CoverLedger/internal/event"
	"CoverLedger/internal/ledger"
	"CoverLedger/internal/payment"
	"CoverLedger/internal/risk"

	"github.com/google/uuid"
)

// =============================================================
// Test Harness
// =============================================================

var (
	strategyAddr  = uuid.MustParse("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
	collectorAddr = uuid.MustParse("cccccccc-cccc-cccc-cccc-cccccccccccc")
	alice         = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	bob           = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	carol         = uuid.MustParse("33333333-3333-3333-3333-333333333333")
)

type fixedCapital struct{ max int64 }

func (f fixedCapital) MaxCover() int64 { return f.max }

type harness struct {
	t       *testing.T
	clock   *clock.Manual
	outbox  *event.Outbox
	ledger  *ledger.Ledger
	risk    *risk.Manager
	product *cover.Product
	signer  ed25519.PrivateKey
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	outbox := event.NewOutbox()
	led := ledger.NewLedger()
	riskMgr := risk.NewManager(fixedCapital{max: 1_000_000_000000}, outbox)

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signers := claims.NewSignerSet()
	if err := signers.Add("signer-1", pub); err != nil {
		t.Fatalf("add signer: %v", err)
	}
	verifier := claims.NewVerifier(signers, clk)

	registry := payment.NewRegistry()
	for _, asset := range []payment.Asset{
		{Symbol: "USDC", Decimals: 6, Stable: true},
		{Symbol: "WETH", Decimals: 18, Stable: false},
	} {
		if err := registry.Add(asset); err != nil {
			t.Fatalf("add asset %s: %v", asset.Symbol, err)
		}
	}
	payments := payment.NewProcessor(registry, verifier)

	cfg := cover.DefaultConfig()
	cfg.MaxRateNum = 1
	cfg.MaxRateDenom = 441504000
	cfg.Cycle = cover.CycleWeekly
	cfg.CooldownSeconds = 604800
	cfg.ReferralReward = 50_000000
	cfg.ReferralOn = true
	cfg.MaxChargeBatchSize = 100
	cfg.BaseURI = "https://cover.test/policies/"
	cfg.Collector = collectorAddr

	product := cover.NewProduct(strategyAddr, cfg, led, riskMgr, verifier, payments, payment.NopVault{}, clk, outbox)
	if err := riskMgr.AddStrategy(strategyAddr, 1); err != nil {
		t.Fatalf("add strategy: %v", err)
	}
	if err := led.Movers().Add(strategyAddr); err != nil {
		t.Fatalf("register mover: %v", err)
	}
	if err := led.Retainers().Add(product); err != nil {
		t.Fatalf("register retainer: %v", err)
	}
	outbox.Discard()
	led.DiscardEntries()

	return &harness{t: t, clock: clk, outbox: outbox, ledger: led, risk: riskMgr, product: product, signer: priv}
}

func (h *harness) fund(account uuid.UUID, amount int64) {
	h.t.Helper()
	if err := h.product.Deposit(account, account, amount); err != nil {
		h.t.Fatalf("fund %s: %v", account, err)
	}
}

func (h *harness) purchase(account uuid.UUID, coverLimit int64) {
	h.t.Helper()
	if err := h.product.Purchase(account, coverLimit, nil); err != nil {
		h.t.Fatalf("purchase for %s: %v", account, err)
	}
}

// drainEvents empties the outbox and returns the recorded payloads.
func (h *harness) drainEvents() []event.Event {
	return h.outbox.Drain()
}

func (h *harness) checkInvariants() {
	h.t.Helper()
	if err := h.ledger.ValidateInvariants(); err != nil {
		h.t.Fatalf("ledger invariants: %v", err)
	}
	if err := h.risk.ValidateInvariants(); err != nil {
		h.t.Fatalf("risk invariants: %v", err)
	}
	if err := h.product.ValidateInvariants(); err != nil {
		h.t.Fatalf("product invariants: %v", err)
	}
}

// =============================================================
// Purchase
// =============================================================

func TestPurchaseCreatesPolicy(t *testing.T) {
	h := newHarness(t)
	h.fund(alice, 1_000_000000)

	if err := h.product.Purchase(alice, 10_000_000000, nil); err != nil {
		t.Fatalf("purchase: %v", err)
	}

	policyID, ok := h.product.PolicyOf(alice)
	if !ok || policyID != 1 {
		t.Fatalf("expected policy 1 for alice, got %d (ok=%v)", policyID, ok)
	}
	if owner, _ := h.product.OwnerOf(1); owner != alice {
		t.Fatalf("expected alice as owner, got %s", owner)
	}
	if got := h.product.CoverLimitOf(1); got != 10_000_000000 {
		t.Fatalf("expected cover limit 10_000_000000, got %d", got)
	}
	if got := h.risk.ActiveCoverLimit(); got != 10_000_000000 {
		t.Fatalf("expected global active cover 10_000_000000, got %d", got)
	}
	if got := h.risk.MinCapitalRequirement(); got != 10_000_000000 {
		t.Fatalf("expected min capital requirement to mirror active cover, got %d", got)
	}

	events := h.drainEvents()
	if len(events) == 0 {
		t.Fatal("expected events from funding and purchase")
	}
	last := events[len(events)-1]
	created, ok := last.(*event.PolicyCreated)
	if !ok {
		t.Fatalf("expected PolicyCreated last, got %T", last)
	}
	if created.PolicyID != 1 || created.CoverLimit != 10_000_000000 {
		t.Fatalf("unexpected PolicyCreated payload: %+v", created)
	}
	h.checkInvariants()
}

func TestPurchaseErrorOrdering(t *testing.T) {
	h := newHarness(t)

	// Zero cover limit validates before anything else.
	if err := h.product.Purchase(alice, 0, nil); !errs.IsValidation(err) {
		t.Fatalf("expected ValidationError for zero cover, got %v", err)
	}

	// Paused beats capacity and balance.
	h.product.SetPaused(true)
	if err := h.product.Purchase(alice, 10_000_000000, nil); !errs.IsState(err) {
		t.Fatalf("expected StateError while paused, got %v", err)
	}
	h.product.SetPaused(false)

	// Capacity beats balance: ask for more than max cover with an
	// unfunded account.
	if err := h.product.Purchase(alice, 2_000_000_000000, nil); !errs.IsCapacity(err) {
		t.Fatalf("expected CapacityError, got %v", err)
	}

	// Under-funded account.
	if err := h.product.Purchase(alice, 10_000_000000, nil); !errs.IsBalance(err) {
		t.Fatalf("expected BalanceError for unfunded account, got %v", err)
	}
}

func TestPurchaseIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.fund(alice, 1_000_000000)
	h.purchase(alice, 10_000_000000)

	balanceBefore := h.ledger.BalanceOf(alice)
	activeBefore := h.risk.ActiveCoverLimit()
	h.drainEvents()

	if err := h.product.Purchase(alice, 10_000_000000, nil); err != nil {
		t.Fatalf("repeat purchase: %v", err)
	}

	if got := h.ledger.BalanceOf(alice); got != balanceBefore {
		t.Fatalf("balance changed on no-op purchase: %d -> %d", balanceBefore, got)
	}
	if got := h.risk.ActiveCoverLimit(); got != activeBefore {
		t.Fatalf("active cover changed on no-op purchase: %d -> %d", activeBefore, got)
	}
	if events := h.drainEvents(); len(events) != 0 {
		t.Fatalf("expected no events from no-op purchase, got %d", len(events))
	}
	h.checkInvariants()
}

func TestPurchaseUpdatesCoverLimitInPlace(t *testing.T) {
	h := newHarness(t)
	h.fund(alice, 1_000_000000)
	h.purchase(alice, 10_000_000000)
	h.drainEvents()

	if err := h.product.Purchase(alice, 4_000_000000, nil); err != nil {
		t.Fatalf("resize purchase: %v", err)
	}

	if policyID, _ := h.product.PolicyOf(alice); policyID != 1 {
		t.Fatalf("expected the same policy ID after resize, got %d", policyID)
	}
	if got := h.product.CoverLimitOf(1); got != 4_000_000000 {
		t.Fatalf("expected cover limit 4_000_000000, got %d", got)
	}
	if got := h.risk.ActiveCoverLimit(); got != 4_000_000000 {
		t.Fatalf("expected active cover 4_000_000000, got %d", got)
	}

	events := h.drainEvents()
	if len(events) != 2 {
		t.Fatalf("expected risk adjustment + PolicyUpdated, got %d events", len(events))
	}
	updated, ok := events[len(events)-1].(*event.PolicyUpdated)
	if !ok {
		t.Fatalf("expected PolicyUpdated, got %T", events[len(events)-1])
	}
	if updated.OldCoverLimit != 10_000_000000 || updated.NewCoverLimit != 4_000_000000 {
		t.Fatalf("unexpected PolicyUpdated payload: %+v", updated)
	}
	h.checkInvariants()
}

func TestPurchaseClearsCooldown(t *testing.T) {
	h := newHarness(t)
	h.fund(alice, 1_000_000000)
	h.purchase(alice, 10_000_000000)
	if err := h.product.DeactivatePolicy(alice); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if h.ledger.CooldownStartOf(alice) == 0 {
		t.Fatal("expected cooldown to start on deactivation")
	}

	h.purchase(alice, 10_000_000000)
	if h.ledger.CooldownStartOf(alice) != 0 {
		t.Fatal("expected reactivation to clear the cooldown")
	}
	if !h.product.PolicyStatus(1) {
		t.Fatal("expected policy 1 active after reactivation")
	}
	h.checkInvariants()
}

// =============================================================
// Deposit / Withdraw / Cooldown
// =============================================================

func TestWithdrawKeepsRetainerFloorWhileActive(t *testing.T) {
	h := newHarness(t)
	h.fund(alice, 1_000_000000)
	h.purchase(alice, 10_000_000000)

	floor := h.product.MinRequiredAccountBalance(10_000_000000)
	if floor != 13_699_785 {
		t.Fatalf("expected weekly floor 13_699_785, got %d", floor)
	}

	// Withdrawing down to exactly the floor succeeds.
	if err := h.product.Withdraw(alice, 1_000_000000-floor); err != nil {
		t.Fatalf("withdraw to floor: %v", err)
	}
	if got := h.ledger.BalanceOf(alice); got != floor {
		t.Fatalf("expected balance %d, got %d", floor, got)
	}

	// One more unit breaks the floor.
	if err := h.product.Withdraw(alice, 1); !errs.IsBalance(err) {
		t.Fatalf("expected BalanceError below floor, got %v", err)
	}
	h.checkInvariants()
}

func TestDepositWithdrawRoundTripAfterCooldown(t *testing.T) {
	h := newHarness(t)
	h.fund(alice, 1_000_000000)
	h.purchase(alice, 10_000_000000)
	if err := h.product.DeactivatePolicy(alice); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	// Mid-cooldown the pre-deactivation floor still applies.
	floor := h.product.MinRequiredAccountBalance(10_000_000000)
	if err := h.product.Withdraw(alice, 1_000_000000); !errs.IsBalance(err) {
		t.Fatalf("expected BalanceError mid-cooldown, got %v", err)
	}
	if err := h.product.Withdraw(alice, 1_000_000000-floor); err != nil {
		t.Fatalf("partial withdraw mid-cooldown: %v", err)
	}

	// After the cooldown elapses the rest is withdrawable.
	h.clock.Advance(604800 * time.Second)
	if err := h.product.Withdraw(alice, floor); err != nil {
		t.Fatalf("withdraw after cooldown: %v", err)
	}
	if got := h.ledger.BalanceOf(alice); got != 0 {
		t.Fatalf("expected empty account after round trip, got %d", got)
	}
	h.checkInvariants()
}

func TestDepositClearsCooldown(t *testing.T) {
	h := newHarness(t)
	h.fund(alice, 1_000_000000)
	h.purchase(alice, 10_000_000000)
	if err := h.product.DeactivatePolicy(alice); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	h.clock.Advance(604800 * time.Second)

	// Depositing after the cooldown elapsed resets it, so the floor
	// applies again until the owner waits out a fresh deactivation.
	h.fund(alice, 1_000000)
	if h.ledger.CooldownStartOf(alice) != 0 {
		t.Fatal("expected deposit to clear the cooldown timestamp")
	}
	if err := h.product.Withdraw(alice, 1_000_000000+1_000000); !errs.IsBalance(err) {
		t.Fatalf("expected BalanceError after cooldown reset, got %v", err)
	}
	h.checkInvariants()
}

func TestWithdrawWholeBalanceWithoutPolicy(t *testing.T) {
	h := newHarness(t)
	h.fund(bob, 500_000000)
	if err := h.product.Withdraw(bob, 500_000000); err != nil {
		t.Fatalf("withdraw without policy: %v", err)
	}
	if got := h.ledger.BalanceOf(bob); got != 0 {
		t.Fatalf("expected empty account, got %d", got)
	}
}

// =============================================================
// Referral Program
// =============================================================

func TestReferralGrantsBothPartiesOnce(t *testing.T) {
	h := newHarness(t)
	h.fund(alice, 1_000_000000)
	h.fund(bob, 1_000_000000)
	h.purchase(alice, 10_000_000000)

	if err := h.product.Purchase(bob, 10_000_000000, &alice); err != nil {
		t.Fatalf("purchase with referral: %v", err)
	}
	if got := h.ledger.RewardPointsOf(bob); got != 50_000000 {
		t.Fatalf("expected redeemer bonus 50_000000, got %d", got)
	}
	if got := h.ledger.RewardPointsOf(alice); got != 50_000000 {
		t.Fatalf("expected referrer bonus 50_000000, got %d", got)
	}

	// Second redemption by the same account fails.
	err := h.product.Purchase(bob, 11_000_000000, &alice)
	if !errs.IsValidation(err) {
		t.Fatalf("expected ValidationError on reuse, got %v", err)
	}
	if !strings.Contains(err.Error(), "cannot use referral code again") {
		t.Fatalf("expected reuse message, got %q", err.Error())
	}
	h.checkInvariants()
}

func TestReferralRejectsSelfAndInactiveReferrer(t *testing.T) {
	h := newHarness(t)
	h.fund(alice, 1_000_000000)
	h.fund(bob, 1_000_000000)

	if err := h.product.Purchase(alice, 10_000_000000, &alice); !errs.IsValidation(err) {
		t.Fatalf("expected ValidationError for self-referral, got %v", err)
	}
	// Carol holds no policy at all.
	if err := h.product.Purchase(alice, 10_000_000000, &carol); !errs.IsValidation(err) {
		t.Fatalf("expected ValidationError for unknown referrer, got %v", err)
	}
	// Bob's policy exists but is deactivated.
	h.purchase(bob, 10_000_000000)
	if err := h.product.DeactivatePolicy(bob); err != nil {
		t.Fatalf("deactivate bob: %v", err)
	}
	if err := h.product.Purchase(alice, 10_000_000000, &bob); !errs.IsValidation(err) {
		t.Fatalf("expected ValidationError for inactive referrer, got %v", err)
	}
}

func TestReferralSwitchSuppressesWithoutFailing(t *testing.T) {
	h := newHarness(t)
	h.fund(alice, 1_000_000000)
	h.fund(bob, 1_000_000000)
	h.purchase(alice, 10_000_000000)
	h.product.SetReferralOn(false)

	// A self-referral would normally fail; with the program off the
	// code is ignored entirely.
	if err := h.product.Purchase(bob, 10_000_000000, &bob); err != nil {
		t.Fatalf("expected referral to be suppressed, got %v", err)
	}
	if got := h.ledger.RewardPointsOf(bob); got != 0 {
		t.Fatalf("expected no bonus with referral off, got %d", got)
	}
	if h.ledger.HasUsedReferralCode(bob) {
		t.Fatal("expected redeemer flag untouched with referral off")
	}
}

// =============================================================
// Metadata & Config
// =============================================================

func TestTokenURI(t *testing.T) {
	h := newHarness(t)
	h.fund(alice, 1_000_000000)
	h.purchase(alice, 10_000_000000)

	uri, err := h.product.TokenURI(1)
	if err != nil {
		t.Fatalf("token uri: %v", err)
	}
	if uri != "https://cover.test/policies/1" {
		t.Fatalf("unexpected token uri %q", uri)
	}

	// Deactivated policies still resolve; never-issued IDs do not.
	if err := h.product.DeactivatePolicy(alice); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := h.product.TokenURI(1); err != nil {
		t.Fatalf("expected deactivated policy to resolve, got %v", err)
	}
	if _, err := h.product.TokenURI(2); !errs.IsState(err) {
		t.Fatalf("expected StateError for never-issued ID, got %v", err)
	}
	if _, err := h.product.TokenURI(0); !errs.IsState(err) {
		t.Fatalf("expected StateError for ID 0, got %v", err)
	}
}

func TestChargeCycleSeconds(t *testing.T) {
	cases := []struct {
		cycle   cover.ChargeCycle
		seconds int64
	}{
		{cover.CycleHourly, 3600},
		{cover.CycleDaily, 86400},
		{cover.CycleWeekly, 604800},
		{cover.CycleMonthly, 2629746},
		{cover.CycleAnnually, 31556952},
	}
	for _, tc := range cases {
		if got := tc.cycle.Seconds(); got != tc.seconds {
			t.Fatalf("%s: expected %d seconds, got %d", tc.cycle, tc.seconds, got)
		}
	}

	h := newHarness(t)
	if err := h.product.SetChargeCycle(cover.CycleMonthly); err != nil {
		t.Fatalf("set monthly: %v", err)
	}
	if got := h.product.Config().Cycle.Seconds(); got != 2629746 {
		t.Fatalf("expected 2629746 after SetChargeCycle(MONTHLY), got %d", got)
	}
	if err := h.product.SetChargeCycle(cover.ChargeCycle(9)); !errs.IsValidation(err) {
		t.Fatalf("expected ValidationError for out-of-range cycle, got %v", err)
	}
}

func TestMinRequiredScalesWithCycle(t *testing.T) {
	h := newHarness(t)
	weekly := h.product.MinRequiredAccountBalance(10_000_000000)
	if err := h.product.SetChargeCycle(cover.CycleDaily); err != nil {
		t.Fatalf("set daily: %v", err)
	}
	daily := h.product.MinRequiredAccountBalance(10_000_000000)
	if daily >= weekly {
		t.Fatalf("expected daily floor %d below weekly floor %d", daily, weekly)
	}
}
