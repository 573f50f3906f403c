// internal/persistence/snapshot.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"CoverLedger/internal/engine"
	"CoverLedger/internal/event"
	"CoverLedger/internal/ledger"

	"github.com/google/uuid"
)

// SnapshotStore persists full-state snapshots and reads the event log
// back for replay. Recovery loads the latest verified snapshot, then
// replays outputs from snapshot sequence + 1.
type SnapshotStore struct {
	db *sql.DB
}

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Save writes a snapshot, unverified. The caller verifies it (restore
// into a scratch engine, check invariants) before MarkVerified makes it
// eligible for recovery.
func (s *SnapshotStore) Save(ctx context.Context, snap *engine.SnapshotState) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cover_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6, verified = FALSE
	`, uuid.New(), snap.Sequence, string(data), snap.StateHash[:], 1, len(data), snap.TakenAt)
	return err
}

// MarkVerified flags the snapshot at sequence as safe to recover from.
func (s *SnapshotStore) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE cover_log.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// LoadLatest returns the most recent verified snapshot, or nil for a
// cold start.
func (s *SnapshotStore) LoadLatest(ctx context.Context) (*engine.SnapshotState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT data FROM cover_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap engine.SnapshotState
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// LatestSequence returns the highest sequence in the event log, or -1
// when the log is empty.
func (s *SnapshotStore) LatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM cover_log.events
	`).Scan(&seq)
	if err != nil {
		return -1, err
	}
	if !seq.Valid {
		return -1, nil
	}
	return seq.Int64, nil
}

// LoadOutputsFrom pages through the event log from fromSequence,
// rebuilding each output with its audit entries in order.
func (s *SnapshotStore) LoadOutputsFrom(ctx context.Context, fromSequence int64, limit int) ([]engine.Output, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, event_id, event_type, account, command_ref, payload, state_hash, prev_hash, ts
		FROM cover_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outputs []engine.Output
	for rows.Next() {
		var (
			r  EventRow
			ts time.Time
		)
		if err := rows.Scan(
			&r.Sequence, &r.EventID, &r.EventType, &r.Account,
			&r.CommandRef, &r.Payload, &r.StateHash, &r.PrevHash, &ts,
		); err != nil {
			return nil, err
		}
		r.Timestamp = ts

		env, err := rowToEnvelope(r)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, engine.Output{Envelope: env})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(outputs) == 0 {
		return nil, nil
	}

	if err := s.attachEntries(ctx, outputs); err != nil {
		return nil, err
	}
	return outputs, nil
}

// attachEntries loads the audit entries for a page of outputs in one
// query and distributes them by sequence.
func (s *SnapshotStore) attachEntries(ctx context.Context, outputs []engine.Output) error {
	first := outputs[0].Envelope.Sequence
	last := outputs[len(outputs)-1].Envelope.Sequence

	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_id, sequence, kind, from_account, to_account, amount, non_refundable_share
		FROM cover_log.entries
		WHERE sequence BETWEEN $1 AND $2
		ORDER BY sequence ASC, entry_index ASC
	`, first, last)
	if err != nil {
		return err
	}
	defer rows.Close()

	bySequence := make(map[int64]*engine.Output, len(outputs))
	for i := range outputs {
		bySequence[outputs[i].Envelope.Sequence] = &outputs[i]
	}

	for rows.Next() {
		var (
			entryID  uuid.UUID
			sequence int64
			kind     string
			from, to *uuid.UUID
			amount   int64
			nrShare  int64
		)
		if err := rows.Scan(&entryID, &sequence, &kind, &from, &to, &amount, &nrShare); err != nil {
			return err
		}
		out, ok := bySequence[sequence]
		if !ok {
			return fmt.Errorf("entry %s references sequence %d outside the loaded page", entryID, sequence)
		}
		out.Entries = append(out.Entries, ledger.Entry{
			EntryID:            entryID,
			Kind:               entryKindFromString(kind),
			From:               derefUUID(from),
			To:                 derefUUID(to),
			Amount:             amount,
			NonRefundableShare: nrShare,
		})
	}
	return rows.Err()
}

// RecentCommandRefs returns the most recently sealed command references
// for warming the in-memory dedup tier after a restart.
func (s *SnapshotStore) RecentCommandRefs(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT command_ref
		FROM cover_log.events
		WHERE command_ref <> ''
		GROUP BY command_ref
		ORDER BY MAX(sequence) DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func rowToEnvelope(r EventRow) (*event.EventEnvelope, error) {
	eventType := event.TypeFromString(r.EventType)
	payload, ok := event.NewPayload(eventType)
	if !ok {
		return nil, fmt.Errorf("sequence %d: unknown event type %q", r.Sequence, r.EventType)
	}
	if err := json.Unmarshal(r.Payload, payload); err != nil {
		return nil, fmt.Errorf("sequence %d: decode %s payload: %w", r.Sequence, r.EventType, err)
	}

	stateHash, err := toHash(r.StateHash)
	if err != nil {
		return nil, fmt.Errorf("sequence %d: state hash: %w", r.Sequence, err)
	}
	prevHash, err := toHash(r.PrevHash)
	if err != nil {
		return nil, fmt.Errorf("sequence %d: prev hash: %w", r.Sequence, err)
	}

	return &event.EventEnvelope{
		Sequence:   r.Sequence,
		EventID:    r.EventID,
		EventType:  eventType,
		Account:    r.Account,
		Timestamp:  r.Timestamp,
		CommandRef: r.CommandRef,
		Payload:    payload,
		StateHash:  stateHash,
		PrevHash:   prevHash,
	}, nil
}

func toHash(b []byte) ([32]byte, error) {
	var h [32]byte
	if len(b) != len(h) {
		return h, fmt.Errorf("expected %d hash bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

func derefUUID(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}

func entryKindFromString(s string) ledger.EntryKind {
	switch s {
	case "mint":
		return ledger.EntryKindMint
	case "burn":
		return ledger.EntryKindBurn
	case "transfer":
		return ledger.EntryKindTransfer
	case "withdraw":
		return ledger.EntryKindWithdraw
	case "reward_accrue":
		return ledger.EntryKindRewardAccrue
	case "reward_spend":
		return ledger.EntryKindRewardSpend
	default:
		return ledger.EntryKindUnknown
	}
}
