// internal/projection/worker.go
package projection

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"CoverLedger/internal/engine"
	"CoverLedger/internal/event"
	"CoverLedger/internal/ledger"
	"CoverLedger/internal/observability"

	"github.com/google/uuid"
)

// Worker updates the read-side tables from sealed outputs. The engine
// feeds it through a lossy channel: a dropped output leaves a
// projection stale until the next touch or a rebuild, never wrong
// about the ledger itself.
type Worker struct {
	db      *sql.DB
	input   <-chan engine.Output
	history *PremiumHistory
	metrics *observability.Metrics
	lastSeq int64
}

func NewWorker(db *sql.DB, input <-chan engine.Output, historySize int, metrics *observability.Metrics) *Worker {
	return &Worker{
		db:      db,
		input:   input,
		history: NewPremiumHistory(historySize),
		metrics: metrics,
		lastSeq: -1,
	}
}

// History exposes the in-memory premium history for the read API.
func (w *Worker) History() *PremiumHistory {
	return w.history
}

// Watermark returns the last applied sequence, -1 before any output.
func (w *Worker) Watermark() int64 {
	return w.lastSeq
}

// Run applies outputs until ctx is cancelled or the channel closes.
// Failures are logged and skipped: projections are eventually
// consistent and rebuildable from the event log.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-w.input:
			if !ok {
				return nil
			}
			if err := w.Apply(ctx, out); err != nil {
				log.Printf("WARN: projection update failed at seq=%d: %v", out.Envelope.Sequence, err)
			}
		}
	}
}

// Apply projects one output in a single transaction: entry deltas onto
// accounts, event effects onto policies and premium history, then the
// watermark.
func (w *Worker) Apply(ctx context.Context, out engine.Output) error {
	start := time.Now()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	sequence := out.Envelope.Sequence
	for _, entry := range out.Entries {
		if err := w.applyEntry(ctx, tx, entry, sequence); err != nil {
			return fmt.Errorf("account projection: %w", err)
		}
	}
	if err := w.applyEvent(ctx, tx, out.Envelope); err != nil {
		return fmt.Errorf("event projection: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cover_read.watermarks (projection, sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (projection) DO UPDATE SET sequence = $1, updated_at = NOW()
	`, sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	w.lastSeq = sequence
	if w.metrics != nil {
		w.metrics.ProjectionUpdateDur.WithLabelValues("main").Observe(time.Since(start).Seconds())
	}
	return nil
}

// applyEntry folds one audit entry into the accounts projection.
func (w *Worker) applyEntry(ctx context.Context, tx *sql.Tx, entry ledger.Entry, sequence int64) error {
	switch entry.Kind {
	case ledger.EntryKindMint:
		return w.addAccountDelta(ctx, tx, entry.To, entry.Amount, entry.NonRefundableShare, 0, sequence)
	case ledger.EntryKindBurn, ledger.EntryKindWithdraw:
		return w.addAccountDelta(ctx, tx, entry.From, -entry.Amount, -entry.NonRefundableShare, 0, sequence)
	case ledger.EntryKindTransfer:
		if err := w.addAccountDelta(ctx, tx, entry.From, -entry.Amount, -entry.NonRefundableShare, 0, sequence); err != nil {
			return err
		}
		return w.addAccountDelta(ctx, tx, entry.To, entry.Amount, entry.NonRefundableShare, 0, sequence)
	case ledger.EntryKindRewardAccrue:
		return w.addAccountDelta(ctx, tx, entry.To, 0, 0, entry.Amount, sequence)
	case ledger.EntryKindRewardSpend:
		return w.addAccountDelta(ctx, tx, entry.From, 0, 0, -entry.Amount, sequence)
	default:
		return fmt.Errorf("unhandled entry kind %s", entry.Kind)
	}
}

func (w *Worker) addAccountDelta(ctx context.Context, tx *sql.Tx, addr uuid.UUID, dBalance, dNonRefundable, dRewardPoints, sequence int64) error {
	if addr == uuid.Nil {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO cover_read.accounts (address, balance, non_refundable, reward_points, updated_sequence)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (address) DO UPDATE SET
			balance          = cover_read.accounts.balance + $2,
			non_refundable   = cover_read.accounts.non_refundable + $3,
			reward_points    = cover_read.accounts.reward_points + $4,
			updated_sequence = $5
	`, addr, dBalance, dNonRefundable, dRewardPoints, sequence)
	return err
}

func (w *Worker) applyEvent(ctx context.Context, tx *sql.Tx, env *event.EventEnvelope) error {
	sequence := env.Sequence

	switch ev := env.Payload.(type) {
	case *event.PolicyCreated:
		return w.upsertPolicy(ctx, tx, ev.PolicyID, ev.Owner, ev.CoverLimit, ev.CoverLimit, true, env.Timestamp.Unix(), sequence)

	case *event.PolicyUpdated:
		return w.upsertPolicy(ctx, tx, ev.PolicyID, ev.Owner, ev.NewCoverLimit, ev.NewCoverLimit, true, 0, sequence)

	case *event.PolicyDeactivated:
		if err := w.upsertPolicy(ctx, tx, ev.PolicyID, ev.Owner, 0, ev.PriorCoverLimit, false, 0, sequence); err != nil {
			return err
		}
		if ev.CooldownStart != 0 {
			return w.setCooldown(ctx, tx, ev.Owner, ev.CooldownStart, sequence)
		}
		return nil

	case *event.PolicyCanceled:
		if err := w.upsertPolicy(ctx, tx, ev.PolicyID, ev.Owner, 0, 0, false, 0, sequence); err != nil {
			return err
		}
		return w.setCooldown(ctx, tx, ev.Owner, 0, sequence)

	case *event.PremiumCharged:
		record := PremiumRecord{
			Sequence:    sequence,
			PolicyID:    ev.PolicyID,
			Owner:       ev.Owner,
			Premium:     ev.Premium,
			Charged:     ev.Premium,
			FromRewards: ev.FromRewards,
			FromBalance: ev.FromBalance,
			BatchIndex:  ev.BatchIndex,
			Outcome:     outcomeCharged,
			Timestamp:   env.Timestamp.Unix(),
		}
		if ev.BatchIndex < 0 {
			record.Outcome = outcomeSettled
		}
		return w.insertPremiumRecord(ctx, tx, env.EventID, record)

	case *event.PremiumPartiallyCharged:
		return w.insertPremiumRecord(ctx, tx, env.EventID, PremiumRecord{
			Sequence:    sequence,
			PolicyID:    ev.PolicyID,
			Owner:       ev.Owner,
			Premium:     ev.Premium,
			Charged:     ev.Charged,
			FromRewards: ev.FromRewards,
			FromBalance: ev.FromBalance,
			BatchIndex:  ev.BatchIndex,
			Outcome:     outcomePartial,
			Timestamp:   env.Timestamp.Unix(),
		})

	case *event.DepositMade:
		return w.setCooldown(ctx, tx, ev.Recipient, 0, sequence)

	case *event.RewardPointsEarned:
		if !ev.Redeemed {
			return nil
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cover_read.accounts (address, used_referral, updated_sequence)
			VALUES ($1, TRUE, $2)
			ON CONFLICT (address) DO UPDATE SET used_referral = TRUE, updated_sequence = $2
		`, ev.Earner, sequence)
		return err

	default:
		// Withdrawals ride entirely on entries; config, risk, pause,
		// governance, and sweep events have no read-side table.
		return nil
	}
}

func (w *Worker) upsertPolicy(ctx context.Context, tx *sql.Tx, policyID uint64, owner uuid.UUID, coverLimit, preDeactivate int64, active bool, createdAt, sequence int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO cover_read.policies
			(policy_id, owner, cover_limit, pre_deactivate_cover_limit, active, created_at, updated_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (policy_id) DO UPDATE SET
			cover_limit                = $3,
			pre_deactivate_cover_limit = $4,
			active                     = $5,
			created_at                 = CASE WHEN $6 > 0 THEN $6 ELSE cover_read.policies.created_at END,
			updated_sequence           = $7
	`, int64(policyID), owner, coverLimit, preDeactivate, active, createdAt, sequence)
	return err
}

func (w *Worker) setCooldown(ctx context.Context, tx *sql.Tx, owner uuid.UUID, start, sequence int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO cover_read.accounts (address, cooldown_start, updated_sequence)
		VALUES ($1, $2, $3)
		ON CONFLICT (address) DO UPDATE SET cooldown_start = $2, updated_sequence = $3
	`, owner, start, sequence)
	return err
}

func (w *Worker) insertPremiumRecord(ctx context.Context, tx *sql.Tx, eventID string, record PremiumRecord) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cover_read.premium_history
			(event_id, sequence, policy_id, owner, premium, charged, from_rewards, from_balance, batch_index, outcome, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, record.Sequence, int64(record.PolicyID), record.Owner, record.Premium, record.Charged,
		record.FromRewards, record.FromBalance, record.BatchIndex, record.Outcome,
		time.Unix(record.Timestamp, 0).UTC()); err != nil {
		return err
	}
	w.history.Add(record)
	return nil
}

// Rebuild truncates the read-side tables and replays the whole event
// log through the same apply path.
func (w *Worker) Rebuild(ctx context.Context, loader OutputLoader) error {
	statements := []string{
		`TRUNCATE cover_read.accounts`,
		`TRUNCATE cover_read.policies`,
		`TRUNCATE cover_read.premium_history`,
		`DELETE FROM cover_read.watermarks WHERE projection = 'main'`,
	}
	for _, stmt := range statements {
		if _, err := w.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}
	w.history.Reset()
	w.lastSeq = -1

	const pageSize = 1000
	from := int64(0)
	for {
		outputs, err := loader.LoadOutputsFrom(ctx, from, pageSize)
		if err != nil {
			return fmt.Errorf("load outputs from %d: %w", from, err)
		}
		if len(outputs) == 0 {
			log.Printf("INFO: projection rebuild complete (through seq=%d)", w.lastSeq)
			return nil
		}
		for _, out := range outputs {
			if err := w.Apply(ctx, out); err != nil {
				return fmt.Errorf("rebuild apply seq=%d: %w", out.Envelope.Sequence, err)
			}
		}
		from = outputs[len(outputs)-1].Envelope.Sequence + 1
	}
}

// OutputLoader pages sealed outputs out of the event log.
type OutputLoader interface {
	LoadOutputsFrom(ctx context.Context, fromSequence int64, limit int) ([]engine.Output, error)
}
