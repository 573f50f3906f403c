// internal/persistence/idempotency_db.go
package persistence

import (
	"context"
	"database/sql"
	"time"
)

// PostgresDedup answers the engine's second-tier duplicate checks from
// the event log itself: a command was processed iff an envelope carries
// its reference. No separate bookkeeping table can drift from the log.
type PostgresDedup struct {
	db *sql.DB
}

func NewPostgresDedup(db *sql.DB) *PostgresDedup {
	return &PostgresDedup{db: db}
}

// IsDuplicate reports whether any persisted envelope carries the
// command's reference. The lookup is bounded so a slow database delays
// the execution slot by at most the timeout.
func (d *PostgresDedup) IsDuplicate(commandType, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	var one int
	err := d.db.QueryRowContext(ctx, `
		SELECT 1 FROM cover_log.events WHERE command_ref = $1 LIMIT 1
	`, commandType+":"+key).Scan(&one)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
