package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	// register sqlite driver
	_ "modernc.org/sqlite"

	"github.com/rizztempo/rizztempo/internal/ledger"
)

// Store implements ledger.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite journal at the given path.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS session_journal (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid TEXT NOT NULL UNIQUE,
	user_id TEXT NOT NULL,
	scenario TEXT NOT NULL DEFAULT '',
	elapsed_seconds REAL NOT NULL,
	estimated_tokens REAL NOT NULL,
	outcome TEXT NOT NULL CHECK(outcome IN ('skipped','debited','debit_failed','record_failed')),
	tags TEXT NOT NULL DEFAULT '',
	memo TEXT,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_session_journal_user_created ON session_journal(user_id, created_at DESC);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases underlying database resources.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Record inserts a new journal entry.
func (s *Store) Record(ctx context.Context, entry ledger.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	created := entry.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	id := entry.UUID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO session_journal(uuid, user_id, scenario, elapsed_seconds, estimated_tokens, outcome, tags, memo, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		entry.UserID,
		entry.Scenario,
		entry.ElapsedSeconds,
		entry.EstimatedTokens,
		string(entry.Outcome),
		strings.Join(entry.Tags, ","),
		entry.Memo,
		created,
	)
	return err
}

// Summary returns aggregated outcomes for the given user.
func (s *Store) Summary(ctx context.Context, userID string) (ledger.Summary, error) {
	if userID == "" {
		return ledger.Summary{}, errors.New("user id required")
	}
	row := s.db.QueryRowContext(ctx, `
SELECT
	COUNT(*),
	COALESCE(SUM(CASE WHEN outcome IN ('debited','record_failed') THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN outcome IN ('debit_failed','record_failed') THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN outcome IN ('debited','record_failed') THEN elapsed_seconds ELSE 0 END), 0),
	COALESCE(SUM(estimated_tokens), 0),
	COALESCE(SUM(CASE WHEN outcome = 'debit_failed' THEN elapsed_seconds ELSE 0 END), 0)
FROM session_journal
WHERE user_id = ?`, userID)

	var sum ledger.Summary
	if err := row.Scan(&sum.Sessions, &sum.Debited, &sum.Failed, &sum.DebitedSeconds, &sum.EstimatedTokens, &sum.UnbilledSeconds); err != nil {
		return ledger.Summary{}, err
	}
	return sum, nil
}

// ListRecent returns the latest entries for a user.
func (s *Store) ListRecent(ctx context.Context, userID string, limit int) ([]ledger.Entry, error) {
	if userID == "" {
		return nil, errors.New("user id required")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, uuid, user_id, scenario, elapsed_seconds, estimated_tokens, outcome, tags, memo, created_at
FROM session_journal
WHERE user_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		var e ledger.Entry
		var outcome, tags string
		var memo sql.NullString
		if err := rows.Scan(&e.ID, &e.UUID, &e.UserID, &e.Scenario, &e.ElapsedSeconds, &e.EstimatedTokens, &outcome, &tags, &memo, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Outcome = ledger.Outcome(outcome)
		e.Memo = memo.String
		if tags != "" {
			e.Tags = strings.Split(tags, ",")
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
