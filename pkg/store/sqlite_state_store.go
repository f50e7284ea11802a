package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/gatekeeper/pkg/checkpoint"
	"github.com/Mindburn-Labs/gatekeeper/pkg/phase"

	_ "modernc.org/sqlite"
)

// SQLiteStateStore is the local cache of checkpoint completion.
type SQLiteStateStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) a SQLite database file and migrates it.
// Use ":memory:" for a throwaway store.
func OpenSQLite(path string) (*SQLiteStateStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	return NewSQLiteStateStore(db)
}

func NewSQLiteStateStore(db *sql.DB) (*SQLiteStateStore, error) {
	s := &SQLiteStateStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate checkpoint_state: %w", err)
	}
	return s, nil
}

func (s *SQLiteStateStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS checkpoint_state (
        record_id TEXT NOT NULL,
        phase TEXT NOT NULL,
        obligation_id TEXT NOT NULL,
        completed INTEGER NOT NULL DEFAULT 0,
        updated_at DATETIME,
        PRIMARY KEY (record_id, phase, obligation_id)
    );`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteStateStore) Close() error { return s.db.Close() }

func (s *SQLiteStateStore) Load(ctx context.Context, recordID string, p phase.Phase) (checkpoint.PriorState, error) {
	query := `
        SELECT obligation_id, completed
        FROM checkpoint_state
        WHERE record_id = ? AND phase = ?
    `
	rows, err := s.db.QueryContext(ctx, query, recordID, string(p))
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanState(rows)
}

func (s *SQLiteStateStore) Save(ctx context.Context, recordID string, p phase.Phase, cps []checkpoint.Checkpoint) error {
	query := `INSERT INTO checkpoint_state (record_id, phase, obligation_id, completed, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT (record_id, phase, obligation_id) DO UPDATE SET
            completed = excluded.completed,
            updated_at = excluded.updated_at`
	stamp := s.now().UTC().Format(time.RFC3339Nano)
	return inTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, r := range rowsFor(recordID, p, cps) {
			if _, err := tx.ExecContext(ctx, query, r.RecordID, string(r.Phase), r.ObligationID, r.Completed, stamp); err != nil {
				return fmt.Errorf("failed to save checkpoint %s: %w", r.ObligationID, err)
			}
		}
		return nil
	})
}

func scanState(rows *sql.Rows) (checkpoint.PriorState, error) {
	state := checkpoint.PriorState{}
	for rows.Next() {
		var (
			id        string
			completed bool
		)
		if err := rows.Scan(&id, &completed); err != nil {
			return nil, err
		}
		state[id] = completed
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(state) == 0 {
		return nil, ErrNotFound
	}
	return state, nil
}

func inTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
