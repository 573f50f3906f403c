// internal/persistence/writer.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"CoverLedger/internal/engine"

	"github.com/google/uuid"
)

// execer covers *sql.DB and *sql.Tx so batch writes can run inside the
// worker's transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// LogWriter writes sealed outputs to Postgres using multi-row INSERT.
// Multi-row INSERT is the portable choice; switch to pgx CopyFrom if
// write volume ever demands it.
type LogWriter struct {
	db *sql.DB
}

// EventRow is a row in cover_log.events.
type EventRow struct {
	Sequence   int64
	EventID    string
	EventType  string
	Account    *uuid.UUID // NULL for global events
	CommandRef string
	Payload    []byte // JSON-encoded event payload
	StateHash  []byte
	PrevHash   []byte
	Timestamp  time.Time
}

// EntryRow is a row in cover_log.entries. From/to are NULL where the
// counterparty is the outside world (mint, burn, withdraw legs).
type EntryRow struct {
	EntryID            uuid.UUID
	Sequence           int64
	EntryIndex         int32
	Kind               string
	FromAccount        *uuid.UUID
	ToAccount          *uuid.UUID
	Amount             int64
	NonRefundableShare int64
	Timestamp          time.Time
}

func NewLogWriter(db *sql.DB) *LogWriter {
	return &LogWriter{db: db}
}

// ToRows flattens one engine output into its event row and entry rows.
// The entries share the envelope's sequence; entry_index preserves
// their order within the operation.
func ToRows(out engine.Output) (EventRow, []EntryRow) {
	env := out.Envelope
	row := EventRow{
		Sequence:   env.Sequence,
		EventID:    env.EventID,
		EventType:  env.EventType.String(),
		Account:    env.Account,
		CommandRef: env.CommandRef,
		Payload:    marshalPayload(env.Payload),
		StateHash:  env.StateHash[:],
		PrevHash:   env.PrevHash[:],
		Timestamp:  env.Timestamp,
	}

	entryRows := make([]EntryRow, 0, len(out.Entries))
	for i, entry := range out.Entries {
		entryRows = append(entryRows, EntryRow{
			EntryID:            entry.EntryID,
			Sequence:           env.Sequence,
			EntryIndex:         int32(i),
			Kind:               entry.Kind.String(),
			FromAccount:        nullableUUID(entry.From),
			ToAccount:          nullableUUID(entry.To),
			Amount:             entry.Amount,
			NonRefundableShare: entry.NonRefundableShare,
			Timestamp:          env.Timestamp,
		})
	}
	return row, entryRows
}

func nullableUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

// marshalPayload serializes an event payload for storage. Payloads are
// plain data structs, so a marshal failure indicates a programming
// error; it is logged and stored as an empty object rather than
// stalling the write path.
func marshalPayload(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("WARN: failed to marshal payload: %v", err)
		return []byte("{}")
	}
	return data
}

// WriteEventBatch appends event rows. Conflicts on sequence are
// silently skipped so a retried batch cannot double-write.
func (w *LogWriter) WriteEventBatch(ctx context.Context, ex execer, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO cover_log.events
		(sequence, event_id, event_type, account, command_ref, payload, state_hash, prev_hash, ts)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*9)

	for i, e := range events {
		base := i * 9
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9,
		))
		// Payload goes over as text: pq encodes []byte as bytea, which
		// the jsonb column rejects.
		args = append(args,
			e.Sequence, e.EventID, e.EventType, e.Account,
			e.CommandRef, string(e.Payload), e.StateHash, e.PrevHash, e.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// WriteEntryBatch appends audit entry rows, keyed by entry ID.
func (w *LogWriter) WriteEntryBatch(ctx context.Context, ex execer, entries []EntryRow) error {
	if len(entries) == 0 {
		return nil
	}

	query := `INSERT INTO cover_log.entries
		(entry_id, sequence, entry_index, kind, from_account, to_account, amount, non_refundable_share, ts)
		VALUES `

	values := make([]string, 0, len(entries))
	args := make([]interface{}, 0, len(entries)*9)

	for i, e := range entries {
		base := i * 9
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9,
		))
		args = append(args,
			e.EntryID, e.Sequence, e.EntryIndex, e.Kind,
			e.FromAccount, e.ToAccount, e.Amount, e.NonRefundableShare, e.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (entry_id) DO NOTHING"

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}
