package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/gatekeeper/pkg/checkpoint"
	"github.com/Mindburn-Labs/gatekeeper/pkg/phase"

	_ "github.com/lib/pq"
)

// PostgresSchema creates the table PostgresStateStore expects.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS checkpoint_state (
	record_id TEXT NOT NULL,
	phase TEXT NOT NULL,
	obligation_id TEXT NOT NULL,
	completed BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (record_id, phase, obligation_id)
)`

// PostgresStateStore is the shared remote store of checkpoint completion.
type PostgresStateStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenPostgres connects with the lib/pq driver.
func OpenPostgres(dsn string) (*PostgresStateStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return NewPostgresStateStore(db), nil
}

func NewPostgresStateStore(db *sql.DB) *PostgresStateStore {
	return &PostgresStateStore{db: db, now: time.Now}
}

// Migrate creates the table if it does not exist.
func (s *PostgresStateStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("failed to migrate checkpoint_state: %w", err)
	}
	return nil
}

func (s *PostgresStateStore) Close() error { return s.db.Close() }

func (s *PostgresStateStore) Load(ctx context.Context, recordID string, p phase.Phase) (checkpoint.PriorState, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT obligation_id, completed FROM checkpoint_state WHERE record_id = $1 AND phase = $2",
		recordID, string(p))
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanState(rows)
}

func (s *PostgresStateStore) Save(ctx context.Context, recordID string, p phase.Phase, cps []checkpoint.Checkpoint) error {
	query := `
		INSERT INTO checkpoint_state (record_id, phase, obligation_id, completed, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (record_id, phase, obligation_id) DO UPDATE SET
			completed = EXCLUDED.completed,
			updated_at = EXCLUDED.updated_at
	`
	stamp := s.now().UTC()
	return inTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, r := range rowsFor(recordID, p, cps) {
			if _, err := tx.ExecContext(ctx, query, r.RecordID, string(r.Phase), r.ObligationID, r.Completed, stamp); err != nil {
				return fmt.Errorf("failed to persist checkpoint %s: %w", r.ObligationID, err)
			}
		}
		return nil
	})
}
