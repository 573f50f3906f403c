// internal/engine/engine_test.go
package engine_test

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"testing"
	"time"

	"CoverLedger/internal/claims"
	"CoverLedger/internal/clock"
	"CoverLedger/internal/cover"
	"CoverLedger/internal/engine"
	"CoverLedger/internal/errs"
	"CoverLedger/internal/event"
	"CoverLedger/internal/gov"
	"CoverLedger/internal/ledger"
	"CoverLedger/internal/payment"
	"CoverLedger/internal/risk"

	"github.com/google/uuid"
)

// --- Test helpers ---

var (
	govAddr      = uuid.MustParse("99999999-9999-9999-9999-999999999999")
	strategyAddr = uuid.MustParse("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
	collector    = uuid.MustParse("cccccccc-cccc-cccc-cccc-cccccccccccc")
	treasury     = uuid.MustParse("dddddddd-dddd-dddd-dddd-dddddddddddd")
	alice        = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	bob          = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

type fixedCapital struct{ max int64 }

func (f fixedCapital) MaxCover() int64 { return f.max }

type harness struct {
	t       *testing.T
	clock   *clock.Manual
	engine  *engine.Engine
	ledger  *ledger.Ledger
	pool    *ledger.PremiumPool
	persist chan engine.Output
	proj    chan engine.Output
}

func baseConfig() cover.Config {
	return cover.Config{
		MaxRateNum:         1,
		MaxRateDenom:       441504000,
		Cycle:              cover.CycleWeekly,
		CooldownSeconds:    604800,
		ReferralReward:     50_000000,
		ReferralOn:         true,
		MaxChargeBatchSize: 100,
		BaseURI:            "https://cover.test/policies/",
		Collector:          collector,
	}
}

// newTestEngine wires a full engine with buffered channels and no DB
// dedup tier. The product retainer registration is boot wiring; all
// other setup must go through governed operations so it lands in the
// event log.
func newTestEngine(t *testing.T) *harness {
	t.Helper()

	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	outbox := event.NewOutbox()
	led := ledger.NewLedger()
	pool := ledger.NewPremiumPool(led)
	riskMgr := risk.NewManager(fixedCapital{max: 1_000_000_000000}, outbox)
	signers := claims.NewSignerSet()
	verifier := claims.NewVerifier(signers, clk)
	assets := payment.NewRegistry()
	payments := payment.NewProcessor(assets, verifier)
	product := cover.NewProduct(strategyAddr, baseConfig(), led, riskMgr, verifier, payments, payment.NopVault{}, clk, outbox)
	authority := gov.NewAuthority(govAddr)

	if err := led.Retainers().Add(product); err != nil {
		t.Fatalf("retainer registration failed: %v", err)
	}

	persist := make(chan engine.Output, 1024)
	proj := make(chan engine.Output, 1024)
	eng := engine.NewEngine(led, pool, riskMgr, product, authority, signers, assets, outbox, clk,
		engine.NewDedup(128, nil), persist, proj, nil)

	return &harness{t: t, clock: clk, engine: eng, ledger: led, pool: pool, persist: persist, proj: proj}
}

// bootstrap runs the standard governed setup: the product strategy is
// registered as mover and capital strategy.
func (h *harness) bootstrap() {
	h.t.Helper()
	if err := h.engine.AddMover(govAddr, strategyAddr); err != nil {
		h.t.Fatalf("AddMover failed: %v", err)
	}
	if err := h.engine.AddStrategy(govAddr, strategyAddr, 1); err != nil {
		h.t.Fatalf("AddStrategy failed: %v", err)
	}
}

// newHarness is newTestEngine + bootstrap with setup outputs drained.
func newHarness(t *testing.T) *harness {
	h := newTestEngine(t)
	h.bootstrap()
	drainOutputs(h.persist)
	drainOutputs(h.proj)
	return h
}

func (h *harness) fund(account uuid.UUID, amount int64) {
	h.t.Helper()
	if err := h.engine.Deposit(account, account, amount); err != nil {
		h.t.Fatalf("Deposit failed: %v", err)
	}
}

func (h *harness) purchase(account uuid.UUID, coverLimit int64) {
	h.t.Helper()
	if err := h.engine.Purchase(account, coverLimit, nil); err != nil {
		h.t.Fatalf("Purchase failed: %v", err)
	}
}

func drainOutputs(ch chan engine.Output) []engine.Output {
	var outputs []engine.Output
	for {
		select {
		case o := <-ch:
			outputs = append(outputs, o)
		default:
			return outputs
		}
	}
}

func genesisHash() [32]byte {
	return sha256.Sum256([]byte(engine.GenesisHashSeed))
}

// ============================================================================
// Test: Envelope emission
// ============================================================================

func TestPurchase_EmitsChainedEnvelopes(t *testing.T) {
	h := newHarness(t)
	h.fund(alice, 1_000_000000)
	drainOutputs(h.persist)

	h.purchase(alice, 10_000_000000)

	outputs := drainOutputs(h.persist)
	if len(outputs) != 2 {
		t.Fatalf("expected 2 outputs (CoverLimitAdjusted, PolicyCreated), got %d", len(outputs))
	}

	first, second := outputs[0].Envelope, outputs[1].Envelope
	if first.EventType != event.EventTypeCoverLimitAdjusted {
		t.Errorf("expected CoverLimitAdjusted first, got %s", first.EventType)
	}
	if second.EventType != event.EventTypePolicyCreated {
		t.Errorf("expected PolicyCreated second, got %s", second.EventType)
	}

	if second.Sequence != first.Sequence+1 {
		t.Errorf("sequences not consecutive: %d then %d", first.Sequence, second.Sequence)
	}
	if first.StateHash != second.PrevHash {
		t.Error("second envelope does not chain to the first")
	}
	if first.EventID == "" || second.EventID == "" {
		t.Error("envelopes missing event IDs")
	}
	if first.EventID == second.EventID {
		t.Error("event IDs must be unique")
	}
	if !first.Timestamp.Equal(h.clock.Now()) {
		t.Errorf("envelope timestamp %v does not match the ambient clock", first.Timestamp)
	}
	if first.CommandRef != "" {
		t.Errorf("direct call must not carry a command ref, got %q", first.CommandRef)
	}

	// Ledger entries ride only on the first output of an operation.
	if len(outputs[0].Entries) == 0 {
		t.Error("expected the purchase entries on the first output")
	}
	if len(outputs[1].Entries) != 0 {
		t.Errorf("expected no entries on the second output, got %d", len(outputs[1].Entries))
	}
}

func TestRejectedOperation_EmitsNothing(t *testing.T) {
	h := newHarness(t)
	before := h.engine.GetSequence()

	err := h.engine.Purchase(alice, 10_000_000000, nil)
	if !errs.IsBalance(err) {
		t.Fatalf("expected balance error for unfunded purchase, got %v", err)
	}

	if outputs := drainOutputs(h.persist); len(outputs) != 0 {
		t.Fatalf("rejected operation emitted %d outputs", len(outputs))
	}
	if h.engine.GetSequence() != before {
		t.Error("rejected operation advanced the sequence")
	}
}

func TestNoopOperation_EmitsNothing(t *testing.T) {
	h := newHarness(t)
	h.fund(alice, 1_000_000000)
	h.purchase(alice, 10_000_000000)
	drainOutputs(h.persist)
	before := h.engine.GetSequence()

	// Repeat purchase at the current limit re-validates and changes
	// nothing.
	h.purchase(alice, 10_000_000000)

	if outputs := drainOutputs(h.persist); len(outputs) != 0 {
		t.Fatalf("no-op purchase emitted %d outputs", len(outputs))
	}
	if h.engine.GetSequence() != before {
		t.Error("no-op purchase advanced the sequence")
	}
}

func TestStateHashChain_Deterministic(t *testing.T) {
	run := func() ([]engine.Output, [32]byte) {
		h := newHarness(t)
		h.fund(alice, 1_000_000000)
		h.purchase(alice, 10_000_000000)
		if err := h.engine.ChargePremiums(collector, []uuid.UUID{alice}, []int64{1_000_000}, 1); err != nil {
			t.Fatalf("ChargePremiums failed: %v", err)
		}
		return drainOutputs(h.persist), h.engine.GetStateHash()
	}

	outputsA, hashA := run()
	outputsB, hashB := run()

	if hashA != hashB {
		t.Fatal("identical operation sequences produced different state hashes")
	}
	if len(outputsA) != len(outputsB) {
		t.Fatalf("output counts differ: %d vs %d", len(outputsA), len(outputsB))
	}
	for i := range outputsA {
		if outputsA[i].Envelope.StateHash != outputsB[i].Envelope.StateHash {
			t.Errorf("envelope %d state hashes differ", i)
		}
		if outputsA[i].Envelope.EventID == outputsB[i].Envelope.EventID {
			t.Errorf("envelope %d reused an event ID across runs", i)
		}
	}
}

func TestFirstEnvelope_AnchorsToGenesis(t *testing.T) {
	h := newTestEngine(t)
	if err := h.engine.AddMover(govAddr, strategyAddr); err != nil {
		t.Fatalf("AddMover failed: %v", err)
	}

	outputs := drainOutputs(h.persist)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outputs))
	}
	env := outputs[0].Envelope
	if env.Sequence != 0 {
		t.Errorf("expected sequence 0, got %d", env.Sequence)
	}
	if env.PrevHash != genesisHash() {
		t.Error("first envelope does not anchor to the genesis hash")
	}
	if env.StateHash == env.PrevHash {
		t.Error("state hash did not advance past genesis")
	}
}

// ============================================================================
// Test: Collector batch idempotency
// ============================================================================

func TestChargePremiums_BatchIndexIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.fund(alice, 1_000_000000)
	h.purchase(alice, 10_000_000000)
	drainOutputs(h.persist)

	if err := h.engine.ChargePremiums(collector, []uuid.UUID{alice}, []int64{2_000_000}, 7); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	outputs := drainOutputs(h.persist)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output for the charge, got %d", len(outputs))
	}
	if got := outputs[0].Envelope.CommandRef; got != "charge_premiums:7" {
		t.Errorf("expected command ref %q, got %q", "charge_premiums:7", got)
	}
	poolAfterFirst := h.engine.PoolBalance()

	// Redelivery of the same batch index is acknowledged as a no-op.
	if err := h.engine.ChargePremiums(collector, []uuid.UUID{alice}, []int64{2_000_000}, 7); err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if outputs := drainOutputs(h.persist); len(outputs) != 0 {
		t.Fatalf("redelivery emitted %d outputs", len(outputs))
	}
	if h.engine.PoolBalance() != poolAfterFirst {
		t.Error("redelivery charged the account again")
	}

	// A new batch index charges again.
	if err := h.engine.ChargePremiums(collector, []uuid.UUID{alice}, []int64{2_000_000}, 8); err != nil {
		t.Fatalf("next batch failed: %v", err)
	}
	if h.engine.PoolBalance() != 2*poolAfterFirst {
		t.Errorf("expected pool %d after second batch, got %d", 2*poolAfterFirst, h.engine.PoolBalance())
	}
}

func TestChargePremiums_FailedBatchIsNotMarkedProcessed(t *testing.T) {
	h := newHarness(t)
	h.fund(alice, 1_000_000000)
	h.purchase(alice, 10_000_000000)
	drainOutputs(h.persist)

	err := h.engine.ChargePremiums(alice, []uuid.UUID{alice}, []int64{2_000_000}, 9)
	if !errs.IsAuthorization(err) {
		t.Fatalf("expected authorization error for non-collector, got %v", err)
	}

	// The same batch index must still be chargeable by the collector.
	if err := h.engine.ChargePremiums(collector, []uuid.UUID{alice}, []int64{2_000_000}, 9); err != nil {
		t.Fatalf("retry after failure was deduplicated: %v", err)
	}
	if h.engine.PoolBalance() != 2_000_000 {
		t.Errorf("expected pool 2_000_000, got %d", h.engine.PoolBalance())
	}
}

func TestCancelPolicies_CommandIDIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.fund(alice, 1_000_000000)
	h.purchase(alice, 10_000_000000)
	drainOutputs(h.persist)

	if err := h.engine.CancelPolicies(collector, []uuid.UUID{alice}, []int64{5_000_000}, "cmd-1"); err != nil {
		t.Fatalf("CancelPolicies failed: %v", err)
	}
	if outputs := drainOutputs(h.persist); len(outputs) == 0 {
		t.Fatal("expected outputs for the cancellation")
	}

	if err := h.engine.CancelPolicies(collector, []uuid.UUID{alice}, []int64{5_000_000}, "cmd-1"); err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if outputs := drainOutputs(h.persist); len(outputs) != 0 {
		t.Fatalf("redelivered cancellation emitted %d outputs", len(outputs))
	}
}

// ============================================================================
// Test: Governance
// ============================================================================

func TestGovernance_TwoStepHandover(t *testing.T) {
	h := newHarness(t)
	newGov := uuid.MustParse("88888888-8888-8888-8888-888888888888")

	if err := h.engine.SetPendingGovernance(alice, newGov); !errs.IsAuthorization(err) {
		t.Fatalf("expected authorization error from non-governance caller, got %v", err)
	}

	if err := h.engine.SetPendingGovernance(govAddr, newGov); err != nil {
		t.Fatalf("SetPendingGovernance failed: %v", err)
	}
	outputs := drainOutputs(h.persist)
	if len(outputs) != 1 || outputs[0].Envelope.EventType != event.EventTypeGovernancePending {
		t.Fatalf("expected one GovernancePending envelope, got %d outputs", len(outputs))
	}

	if err := h.engine.AcceptGovernance(alice); err == nil {
		t.Fatal("expected error when a bystander accepts the handover")
	}

	if err := h.engine.AcceptGovernance(newGov); err != nil {
		t.Fatalf("AcceptGovernance failed: %v", err)
	}
	outputs = drainOutputs(h.persist)
	if len(outputs) != 1 || outputs[0].Envelope.EventType != event.EventTypeGovernanceAccepted {
		t.Fatalf("expected one GovernanceAccepted envelope, got %d outputs", len(outputs))
	}

	// Old governance has lost its powers; the new one has them.
	if err := h.engine.SetPaused(govAddr, true); !errs.IsAuthorization(err) {
		t.Fatalf("expected old governance to be rejected, got %v", err)
	}
	if err := h.engine.SetPaused(newGov, true); err != nil {
		t.Fatalf("new governance rejected: %v", err)
	}
	if !h.engine.Paused() {
		t.Error("product not paused after governance change")
	}
}

func TestGovernance_ConfigSettersEmitEvents(t *testing.T) {
	h := newHarness(t)

	if err := h.engine.SetCooldownSeconds(alice, 3600); !errs.IsAuthorization(err) {
		t.Fatalf("expected authorization error, got %v", err)
	}

	if err := h.engine.SetCooldownSeconds(govAddr, 3600); err != nil {
		t.Fatalf("SetCooldownSeconds failed: %v", err)
	}
	outputs := drainOutputs(h.persist)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outputs))
	}
	updated, ok := outputs[0].Envelope.Payload.(*event.ConfigUpdated)
	if !ok {
		t.Fatalf("expected ConfigUpdated payload, got %T", outputs[0].Envelope.Payload)
	}
	if updated.Key != "cooldown_seconds" || updated.Value != "3600" {
		t.Errorf("unexpected payload %+v", updated)
	}
	if h.engine.ProductConfig().CooldownSeconds != 3600 {
		t.Error("config value not applied")
	}
}

func TestSweepPremiums_MovesPoolToTreasury(t *testing.T) {
	h := newHarness(t)
	h.fund(alice, 1_000_000000)
	h.purchase(alice, 10_000_000000)
	if err := h.engine.ChargePremiums(collector, []uuid.UUID{alice}, []int64{9_000_000}, 1); err != nil {
		t.Fatalf("ChargePremiums failed: %v", err)
	}
	drainOutputs(h.persist)

	if err := h.engine.SweepPremiums(alice, treasury, 4_000_000); !errs.IsAuthorization(err) {
		t.Fatalf("expected authorization error, got %v", err)
	}

	if err := h.engine.SweepPremiums(govAddr, treasury, 4_000_000); err != nil {
		t.Fatalf("SweepPremiums failed: %v", err)
	}
	if h.engine.PoolBalance() != 5_000_000 {
		t.Errorf("expected pool 5_000_000 after sweep, got %d", h.engine.PoolBalance())
	}
	if h.engine.BalanceOf(treasury) != 4_000_000 {
		t.Errorf("expected treasury 4_000_000, got %d", h.engine.BalanceOf(treasury))
	}

	outputs := drainOutputs(h.persist)
	if len(outputs) != 1 || outputs[0].Envelope.EventType != event.EventTypePremiumsSwept {
		t.Fatalf("expected one PremiumsSwept envelope, got %d outputs", len(outputs))
	}
}

func TestGovernance_RemoveMover(t *testing.T) {
	h := newTestEngine(t)
	h.bootstrap()
	setup := drainOutputs(h.persist)

	if err := h.engine.RemoveMover(alice, strategyAddr); !errs.IsAuthorization(err) {
		t.Fatalf("expected authorization error from non-governance caller, got %v", err)
	}

	if err := h.engine.RemoveMover(govAddr, strategyAddr); err != nil {
		t.Fatalf("RemoveMover failed: %v", err)
	}
	removal := drainOutputs(h.persist)
	if len(removal) != 1 {
		t.Fatalf("expected 1 output, got %d", len(removal))
	}
	updated, ok := removal[0].Envelope.Payload.(*event.ConfigUpdated)
	if !ok {
		t.Fatalf("expected ConfigUpdated payload, got %T", removal[0].Envelope.Payload)
	}
	if updated.Key != "mover_removed" || updated.Value != strategyAddr.String() {
		t.Errorf("unexpected payload %+v", updated)
	}

	// The product lost its mover seat, so deposits can no longer mint.
	if err := h.engine.Deposit(alice, alice, 1_000000); !errs.IsAuthorization(err) {
		t.Fatalf("expected authorization error after mover removal, got %v", err)
	}
	if err := h.engine.RemoveMover(govAddr, strategyAddr); !errs.IsState(err) {
		t.Fatalf("expected state error for unknown mover, got %v", err)
	}

	// Replay rebuilds the removal from the log.
	replica := newTestEngine(t)
	for _, out := range append(setup, removal...) {
		if err := replica.engine.ReplayOutput(out.Envelope, out.Entries); err != nil {
			t.Fatalf("replay failed at sequence %d: %v", out.Envelope.Sequence, err)
		}
	}
	if err := replica.engine.Deposit(alice, alice, 1_000000); !errs.IsAuthorization(err) {
		t.Fatalf("expected replayed engine to reject deposits, got %v", err)
	}
}

func TestGovernance_RemoveRetainer(t *testing.T) {
	h := newHarness(t)
	h.fund(alice, 1_000_000000)
	h.purchase(alice, 10_000_000000)
	drainOutputs(h.persist)

	// Active coverage holds a floor against the full balance.
	if err := h.engine.Withdraw(alice, 1_000_000000); !errs.IsBalance(err) {
		t.Fatalf("expected balance error while retained, got %v", err)
	}

	if err := h.engine.RemoveRetainer(alice, strategyAddr); !errs.IsAuthorization(err) {
		t.Fatalf("expected authorization error from non-governance caller, got %v", err)
	}
	if err := h.engine.RemoveRetainer(govAddr, strategyAddr); err != nil {
		t.Fatalf("RemoveRetainer failed: %v", err)
	}
	outputs := drainOutputs(h.persist)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outputs))
	}
	updated, ok := outputs[0].Envelope.Payload.(*event.ConfigUpdated)
	if !ok {
		t.Fatalf("expected ConfigUpdated payload, got %T", outputs[0].Envelope.Payload)
	}
	if updated.Key != "retainer_removed" || updated.Value != strategyAddr.String() {
		t.Errorf("unexpected payload %+v", updated)
	}
	if err := h.engine.RemoveRetainer(govAddr, strategyAddr); !errs.IsState(err) {
		t.Fatalf("expected state error for unknown retainer, got %v", err)
	}

	// The floor is gone even though the policy is still active.
	if h.engine.MinBalanceRequired(alice) != 0 {
		t.Errorf("expected zero floor after retainer removal, got %d", h.engine.MinBalanceRequired(alice))
	}
	if err := h.engine.Withdraw(alice, 1_000_000000); err != nil {
		t.Fatalf("Withdraw after retainer removal failed: %v", err)
	}
	drainOutputs(h.persist)

	// A snapshot taken after the removal restores without the retainer,
	// even though boot wiring re-registers the product.
	snap := h.engine.CreateSnapshotState()
	restored := newTestEngine(t)
	if err := restored.engine.RestoreFromSnapshot(snap); err != nil {
		t.Fatalf("RestoreFromSnapshot failed: %v", err)
	}
	if restored.engine.MinBalanceRequired(alice) != 0 {
		t.Errorf("expected zero floor after restore, got %d", restored.engine.MinBalanceRequired(alice))
	}
}

// ============================================================================
// Test: Snapshot and replay recovery
// ============================================================================

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	h := newHarness(t)
	h.fund(alice, 1_000_000000)
	h.purchase(alice, 10_000_000000)
	if err := h.engine.DeactivatePolicy(alice); err != nil {
		t.Fatalf("DeactivatePolicy failed: %v", err)
	}
	drainOutputs(h.persist)

	snap := h.engine.CreateSnapshotState()

	restored := newTestEngine(t)
	if err := restored.engine.RestoreFromSnapshot(snap); err != nil {
		t.Fatalf("RestoreFromSnapshot failed: %v", err)
	}
	if err := restored.engine.ValidateState(); err != nil {
		t.Fatalf("restored state fails invariants: %v", err)
	}

	if restored.engine.GetSequence() != h.engine.GetSequence() {
		t.Errorf("sequence %d does not match original %d",
			restored.engine.GetSequence(), h.engine.GetSequence())
	}
	if restored.engine.GetStateHash() != h.engine.GetStateHash() {
		t.Error("restored chain tip does not match original")
	}
	if restored.engine.BalanceOf(alice) != h.engine.BalanceOf(alice) {
		t.Error("restored balance does not match original")
	}
	policy, ok := restored.engine.PolicyOf(alice)
	if !ok {
		t.Fatal("restored engine lost the policy")
	}
	if policy.Active || policy.PreDeactivateCoverLimit != 10_000_000000 {
		t.Errorf("restored policy state wrong: %+v", policy)
	}
	if restored.ledger.CooldownStartOf(alice) != h.ledger.CooldownStartOf(alice) {
		t.Error("restored cooldown does not match original")
	}

	// Both instances must seal the identical next envelope.
	if err := h.engine.Deposit(bob, bob, 5_000000); err != nil {
		t.Fatalf("Deposit on original failed: %v", err)
	}
	if err := restored.engine.Deposit(bob, bob, 5_000000); err != nil {
		t.Fatalf("Deposit on restored failed: %v", err)
	}
	if h.engine.GetStateHash() != restored.engine.GetStateHash() {
		t.Error("divergent state hashes after the same post-restore operation")
	}
}

func TestReplay_RebuildsState(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	signerB64 := base64.StdEncoding.EncodeToString(pub)

	h := newTestEngine(t)
	h.bootstrap()
	h.fund(alice, 1_000_000000)
	h.purchase(alice, 10_000_000000)
	// Balance-paid charge while alice has no reward points.
	if err := h.engine.ChargePremiums(collector, []uuid.UUID{alice}, []int64{3_000_000}, 3); err != nil {
		t.Fatalf("ChargePremiums failed: %v", err)
	}
	h.fund(bob, 500_000000)
	if err := h.engine.Purchase(bob, 1_000_000000, &alice); err != nil {
		t.Fatalf("referral purchase failed: %v", err)
	}
	// Points-paid charge against bob's referral reward.
	if err := h.engine.ChargePremiums(collector, []uuid.UUID{bob}, []int64{1_000_000}, 4); err != nil {
		t.Fatalf("ChargePremiums failed: %v", err)
	}
	if err := h.engine.DeactivatePolicy(bob); err != nil {
		t.Fatalf("DeactivatePolicy failed: %v", err)
	}
	if err := h.engine.SetCooldownSeconds(govAddr, 3600); err != nil {
		t.Fatalf("SetCooldownSeconds failed: %v", err)
	}
	if err := h.engine.AddSigner(govAddr, "signer-1", signerB64); err != nil {
		t.Fatalf("AddSigner failed: %v", err)
	}
	if err := h.engine.AddAsset(govAddr, payment.Asset{Symbol: "USDC", Decimals: 6, Stable: true}); err != nil {
		t.Fatalf("AddAsset failed: %v", err)
	}
	if err := h.engine.SweepPremiums(govAddr, treasury, 1_500_000); err != nil {
		t.Fatalf("SweepPremiums failed: %v", err)
	}
	outputs := drainOutputs(h.persist)

	replica := newTestEngine(t)
	for i, out := range outputs {
		if err := replica.engine.ReplayOutput(out.Envelope, out.Entries); err != nil {
			t.Fatalf("replay of envelope %d (%s) failed: %v", i, out.Envelope.EventType, err)
		}
	}
	if err := replica.engine.ValidateState(); err != nil {
		t.Fatalf("replayed state fails invariants: %v", err)
	}

	if replica.engine.GetSequence() != h.engine.GetSequence() {
		t.Errorf("replayed sequence %d does not match %d",
			replica.engine.GetSequence(), h.engine.GetSequence())
	}
	if replica.engine.GetStateHash() != h.engine.GetStateHash() {
		t.Error("replayed chain tip does not match original")
	}
	for _, account := range []uuid.UUID{alice, bob, treasury} {
		if replica.engine.BalanceOf(account) != h.engine.BalanceOf(account) {
			t.Errorf("account %s balance diverged: %d vs %d",
				account, replica.engine.BalanceOf(account), h.engine.BalanceOf(account))
		}
		if replica.engine.RewardPointsOf(account) != h.engine.RewardPointsOf(account) {
			t.Errorf("account %s reward points diverged", account)
		}
	}
	if replica.engine.PoolBalance() != h.engine.PoolBalance() {
		t.Errorf("pool diverged: %d vs %d", replica.engine.PoolBalance(), h.engine.PoolBalance())
	}
	if replica.ledger.CooldownStartOf(bob) != h.ledger.CooldownStartOf(bob) {
		t.Error("cooldown diverged")
	}
	if !replica.ledger.HasUsedReferralCode(bob) {
		t.Error("referral redemption flag lost in replay")
	}
	if replica.engine.ProductConfig() != h.engine.ProductConfig() {
		t.Errorf("config diverged: %+v vs %+v", replica.engine.ProductConfig(), h.engine.ProductConfig())
	}
	bobPolicy, ok := replica.engine.PolicyOf(bob)
	if !ok || bobPolicy.Active || bobPolicy.PreDeactivateCoverLimit != 1_000_000000 {
		t.Errorf("bob's policy diverged: %+v", bobPolicy)
	}
	assets := replica.engine.AcceptedAssets()
	if len(assets) != 1 || assets[0].Symbol != "USDC" {
		t.Errorf("asset registry diverged: %+v", assets)
	}
	signerIDs := replica.engine.Signers()
	if len(signerIDs) != 1 || signerIDs[0] != "signer-1" {
		t.Errorf("signer set diverged: %+v", signerIDs)
	}

	// The replica's dedup is re-armed: redelivering the charged batch
	// is a no-op.
	if err := replica.engine.ChargePremiums(collector, []uuid.UUID{alice}, []int64{3_000_000}, 3); err != nil {
		t.Fatalf("redelivery after replay failed: %v", err)
	}
	if replayed := drainOutputs(replica.persist); len(replayed) != 0 {
		t.Fatalf("redelivery after replay emitted %d outputs", len(replayed))
	}
}

func TestReplay_DetectsChainBreak(t *testing.T) {
	h := newHarness(t)
	h.fund(alice, 1_000_000000)
	outputs := drainOutputs(h.persist)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outputs))
	}

	tampered := *outputs[0].Envelope
	tampered.PrevHash[0] ^= 0xff

	replica := newTestEngine(t)
	replica.bootstrap()
	drainOutputs(replica.persist)

	// Sequence must line up for the chain check to be reached.
	tampered.Sequence = replica.engine.GetSequence()
	if err := replica.engine.ReplayOutput(&tampered, outputs[0].Entries); !errs.IsState(err) {
		t.Fatalf("expected chain break to be rejected, got %v", err)
	}
}

// ============================================================================
// Test: Channel behavior
// ============================================================================

func TestProjectionChannel_DropsOnFull(t *testing.T) {
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	outbox := event.NewOutbox()
	led := ledger.NewLedger()
	pool := ledger.NewPremiumPool(led)
	riskMgr := risk.NewManager(fixedCapital{max: 1_000_000_000000}, outbox)
	signers := claims.NewSignerSet()
	verifier := claims.NewVerifier(signers, clk)
	assets := payment.NewRegistry()
	payments := payment.NewProcessor(assets, verifier)
	product := cover.NewProduct(strategyAddr, baseConfig(), led, riskMgr, verifier, payments, payment.NopVault{}, clk, outbox)
	if err := led.Retainers().Add(product); err != nil {
		t.Fatalf("retainer registration failed: %v", err)
	}

	persist := make(chan engine.Output, 1024)
	proj := make(chan engine.Output, 1) // deliberately tiny
	eng := engine.NewEngine(led, pool, riskMgr, product, gov.NewAuthority(govAddr), signers, assets,
		outbox, clk, engine.NewDedup(128, nil), persist, proj, nil)

	if err := eng.AddMover(govAddr, strategyAddr); err != nil {
		t.Fatalf("AddMover failed: %v", err)
	}
	if err := eng.AddStrategy(govAddr, strategyAddr, 1); err != nil {
		t.Fatalf("AddStrategy failed: %v", err)
	}

	// The projection channel held one output and dropped the rest; the
	// engine must not have blocked, and persistence saw everything.
	if got := len(drainOutputs(persist)); got != 2 {
		t.Fatalf("expected 2 persisted outputs, got %d", got)
	}
	if got := len(drainOutputs(proj)); got != 1 {
		t.Fatalf("expected 1 projected output after drops, got %d", got)
	}
}
