// internal/engine/replay.go
package engine

import (
	"fmt"
	"strconv"
	"strings"

	"CoverLedger/internal/cover"
	"CoverLedger/internal/errs"
	"CoverLedger/internal/event"
	"CoverLedger/internal/ledger"
	"CoverLedger/internal/payment"

	"github.com/google/uuid"
)

// ReplayOutput reapplies one persisted envelope and its ledger entries
// to in-memory state without re-running command validation. Recovery
// walks the log in sequence order after a snapshot restore; sequence
// and chain continuity are verified envelope by envelope.
func (e *Engine) ReplayOutput(env *event.EventEnvelope, entries []ledger.Entry) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if env.Sequence != e.sequence {
		return errs.Newf(errs.State, "replay: envelope %d arrived at sequence %d", env.Sequence, e.sequence)
	}
	if env.PrevHash != e.hasher.PrevHash() {
		return errs.Newf(errs.State, "replay: envelope %d breaks the hash chain", env.Sequence)
	}

	for _, entry := range entries {
		e.ledger.ReplayEntry(entry)
	}
	if err := e.applyEvent(env); err != nil {
		return err
	}

	// Replays that go through the live mutators re-record their events;
	// the log already holds them.
	e.outbox.Discard()
	if leaked := e.ledger.DrainEntries(); len(leaked) != 0 {
		panic(fmt.Sprintf("FATAL: replay of %s generated %d new ledger entries", env.EventType, len(leaked)))
	}

	e.sequence = env.Sequence + 1
	e.hasher.SetPrevHash(env.StateHash)

	if e.metrics != nil {
		e.metrics.ReplayEventsTotal.Inc()
	}
	return nil
}

func (e *Engine) applyEvent(env *event.EventEnvelope) error {
	switch ev := env.Payload.(type) {
	case *event.PolicyCreated:
		e.product.RestorePolicy(cover.Policy{
			ID:                      ev.PolicyID,
			Owner:                   ev.Owner,
			CoverLimit:              ev.CoverLimit,
			Active:                  true,
			PreDeactivateCoverLimit: ev.CoverLimit,
			CreatedAt:               env.Timestamp.Unix(),
		})
		e.replayClearCooldown(ev.Owner)

	case *event.PolicyUpdated:
		policy, ok := e.product.PolicyByID(ev.PolicyID)
		if !ok {
			return errs.Newf(errs.State, "replay: update of unknown policy %d", ev.PolicyID)
		}
		policy.CoverLimit = ev.NewCoverLimit
		policy.PreDeactivateCoverLimit = ev.NewCoverLimit
		policy.Active = true
		e.product.RestorePolicy(policy)
		e.replayClearCooldown(ev.Owner)

	case *event.PolicyDeactivated:
		policy, ok := e.product.PolicyByID(ev.PolicyID)
		if !ok {
			return errs.Newf(errs.State, "replay: deactivation of unknown policy %d", ev.PolicyID)
		}
		policy.CoverLimit = 0
		policy.Active = false
		policy.PreDeactivateCoverLimit = ev.PriorCoverLimit
		e.product.RestorePolicy(policy)
		if ev.CooldownStart != 0 {
			e.replaySetCooldown(ev.Owner, ev.CooldownStart)
		}

	case *event.PolicyCanceled:
		policy, ok := e.product.PolicyByID(ev.PolicyID)
		if !ok {
			return errs.Newf(errs.State, "replay: cancellation of unknown policy %d", ev.PolicyID)
		}
		policy.CoverLimit = 0
		policy.Active = false
		policy.PreDeactivateCoverLimit = 0
		e.product.RestorePolicy(policy)
		e.replayClearCooldown(ev.Owner)

	case *event.PremiumCharged:
		e.replayBatchMark(ev.BatchIndex)

	case *event.PremiumPartiallyCharged:
		e.replayBatchMark(ev.BatchIndex)

	case *event.RewardPointsEarned:
		if ev.Redeemed {
			e.replayMarkReferral(ev.Earner)
		}

	case *event.DepositMade:
		e.replayClearCooldown(ev.Recipient)

	case *event.WithdrawalMade:
		// Balance effects are fully described by the entries.

	case *event.PremiumsSwept:
		// Balance effects are fully described by the entries.

	case *event.StrategyAdded:
		return e.risk.AddStrategy(ev.Strategy, ev.Weight)

	case *event.StrategyStatusSet:
		return e.risk.SetStrategyStatuses([]uuid.UUID{ev.Strategy}, []bool{ev.Active})

	case *event.WeightAllocationSet:
		return e.risk.SetWeightAllocation([]uuid.UUID{ev.Strategy}, []uint32{ev.Weight})

	case *event.CoverLimitAdjusted:
		if err := e.risk.UpdateActiveCoverLimit(ev.Strategy, ev.Strategy, ev.Delta); err != nil {
			return err
		}
		if got := e.risk.ActiveCoverLimitOf(ev.Strategy); got != ev.StrategyActive {
			return errs.Newf(errs.State, "replay: strategy %s cover limit %d does not match recorded %d",
				ev.Strategy, got, ev.StrategyActive)
		}
		if got := e.risk.ActiveCoverLimit(); got != ev.GlobalActive {
			return errs.Newf(errs.State, "replay: global cover limit %d does not match recorded %d",
				got, ev.GlobalActive)
		}

	case *event.GovernancePending:
		e.gov.Restore(ev.Current, ev.Pending)

	case *event.GovernanceAccepted:
		e.gov.Restore(ev.Current, uuid.Nil)

	case *event.ConfigUpdated:
		return e.replayConfig(ev.Key, ev.Value)

	case *event.PauseSet:
		e.product.SetPaused(ev.Paused)

	default:
		return errs.Newf(errs.State, "replay: unhandled event type %s", env.EventType)
	}
	return nil
}

// replayConfig reapplies a governance parameter change from its
// key/value encoding. Values go back through the live setters so the
// same validation and normalization runs on both paths.
func (e *Engine) replayConfig(key, value string) error {
	switch key {
	case "max_rate":
		parts := strings.SplitN(value, "/", 2)
		if len(parts) != 2 {
			return errs.Newf(errs.State, "replay: malformed max_rate %q", value)
		}
		num, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return errs.Wrap(errs.State, "replay: malformed max_rate numerator", err)
		}
		denom, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return errs.Wrap(errs.State, "replay: malformed max_rate denominator", err)
		}
		return e.product.SetMaxRate(num, denom)

	case "charge_cycle":
		cycle, err := cover.ParseChargeCycle(value)
		if err != nil {
			return err
		}
		return e.product.SetChargeCycle(cycle)

	case "cooldown_seconds":
		seconds, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return errs.Wrap(errs.State, "replay: malformed cooldown_seconds", err)
		}
		return e.product.SetCooldownSeconds(seconds)

	case "referral_reward":
		amount, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return errs.Wrap(errs.State, "replay: malformed referral_reward", err)
		}
		return e.product.SetReferralReward(amount)

	case "referral_on":
		on, err := strconv.ParseBool(value)
		if err != nil {
			return errs.Wrap(errs.State, "replay: malformed referral_on", err)
		}
		e.product.SetReferralOn(on)
		return nil

	case "max_charge_batch_size":
		n, err := strconv.Atoi(value)
		if err != nil {
			return errs.Wrap(errs.State, "replay: malformed max_charge_batch_size", err)
		}
		return e.product.SetMaxChargeBatchSize(n)

	case "base_uri":
		e.product.SetBaseURI(value)
		return nil

	case "collector":
		collector, err := uuid.Parse(value)
		if err != nil {
			return errs.Wrap(errs.State, "replay: malformed collector", err)
		}
		return e.product.SetCollector(collector)

	case "mover_status":
		addr, active, err := parseStatusValue(value)
		if err != nil {
			return err
		}
		if active {
			return e.ledger.Movers().Add(addr)
		}
		return e.ledger.Movers().SetStatuses([]uuid.UUID{addr}, []bool{false})

	case "mover_removed":
		addr, err := uuid.Parse(value)
		if err != nil {
			return errs.Wrap(errs.State, "replay: malformed mover_removed address", err)
		}
		return e.ledger.Movers().Remove(addr)

	case "retainer_status":
		addr, active, err := parseStatusValue(value)
		if err != nil {
			return err
		}
		return e.ledger.Retainers().SetStatuses([]uuid.UUID{addr}, []bool{active})

	case "retainer_removed":
		addr, err := uuid.Parse(value)
		if err != nil {
			return errs.Wrap(errs.State, "replay: malformed retainer_removed address", err)
		}
		return e.ledger.Retainers().Remove(addr)

	case "signer_added":
		// Base64 never contains ':', so the last separator splits key
		// ID from key material even for IDs that contain ':'.
		idx := strings.LastIndex(value, ":")
		if idx <= 0 {
			return errs.Newf(errs.State, "replay: malformed signer_added %q", value)
		}
		return e.signers.AddBase64(value[:idx], value[idx+1:])

	case "signer_removed":
		return e.signers.Remove(value)

	case "asset_added":
		asset, err := parseAssetValue(value)
		if err != nil {
			return err
		}
		return e.assets.Add(asset)

	case "asset_removed":
		return e.assets.Remove(value)

	default:
		return errs.Newf(errs.State, "replay: unknown config key %q", key)
	}
}

func parseStatusValue(value string) (uuid.UUID, bool, error) {
	parts := strings.SplitN(value, "=", 2)
	if len(parts) != 2 {
		return uuid.Nil, false, errs.Newf(errs.State, "replay: malformed status %q", value)
	}
	addr, err := uuid.Parse(parts[0])
	if err != nil {
		return uuid.Nil, false, errs.Wrap(errs.State, "replay: malformed status address", err)
	}
	active, err := strconv.ParseBool(parts[1])
	if err != nil {
		return uuid.Nil, false, errs.Wrap(errs.State, "replay: malformed status flag", err)
	}
	return addr, active, nil
}

func parseAssetValue(value string) (payment.Asset, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return payment.Asset{}, errs.Newf(errs.State, "replay: malformed asset %q", value)
	}
	decimals, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return payment.Asset{}, errs.Wrap(errs.State, "replay: malformed asset decimals", err)
	}
	stable, err := strconv.ParseBool(parts[2])
	if err != nil {
		return payment.Asset{}, errs.Wrap(errs.State, "replay: malformed asset flag", err)
	}
	return payment.Asset{Symbol: parts[0], Decimals: uint8(decimals), Stable: stable}, nil
}

func (e *Engine) replayBatchMark(batchIndex int64) {
	if batchIndex >= 0 {
		e.dedup.MarkProcessed(CommandChargePremiums, strconv.FormatInt(batchIndex, 10))
	}
}

func (e *Engine) replaySetCooldown(addr uuid.UUID, start int64) {
	acc, _ := e.ledger.AccountOf(addr)
	acc.CooldownStart = start
	e.ledger.RestoreAccount(acc)
}

func (e *Engine) replayClearCooldown(addr uuid.UUID) {
	acc, ok := e.ledger.AccountOf(addr)
	if !ok || acc.CooldownStart == 0 {
		return
	}
	acc.CooldownStart = 0
	e.ledger.RestoreAccount(acc)
}

func (e *Engine) replayMarkReferral(addr uuid.UUID) {
	acc, _ := e.ledger.AccountOf(addr)
	acc.UsedReferralCode = true
	e.ledger.RestoreAccount(acc)
}
