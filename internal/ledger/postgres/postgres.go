package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/rizztempo/rizztempo/internal/ledger"
)

// Store implements ledger.Store backed by PostgreSQL, for journals shared
// between several installs.
type Store struct {
	db *sqlx.DB
}

// Options tunes the connection pool; zero values keep the driver defaults.
type Options struct {
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// New connects to dsn and applies the schema.
func New(dsn string, opts Options) (*Store, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	if opts.MaxOpen > 0 {
		db.SetMaxOpenConns(opts.MaxOpen)
	}
	if opts.MaxIdle > 0 {
		db.SetMaxIdleConns(opts.MaxIdle)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	if opts.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
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
	id BIGSERIAL PRIMARY KEY,
	uuid UUID NOT NULL DEFAULT gen_random_uuid(),
	user_id TEXT NOT NULL,
	scenario TEXT NOT NULL DEFAULT '',
	elapsed_seconds DOUBLE PRECISION NOT NULL,
	estimated_tokens DOUBLE PRECISION NOT NULL,
	outcome TEXT NOT NULL CHECK(outcome IN ('skipped','debited','debit_failed','record_failed')),
	tags TEXT[] NOT NULL DEFAULT '{}',
	memo TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_session_journal_user_created ON session_journal(user_id, created_at DESC);
CREATE UNIQUE INDEX IF NOT EXISTS idx_session_journal_uuid ON session_journal(uuid);
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

// Record inserts a new journal entry. An empty UUID lets the database pick one.
func (s *Store) Record(ctx context.Context, entry ledger.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	created := entry.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	var id any
	if entry.UUID != "" {
		id = entry.UUID
	}
	tags := entry.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO session_journal(uuid, user_id, scenario, elapsed_seconds, estimated_tokens, outcome, tags, memo, created_at)
VALUES(COALESCE($1::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8, $9)`,
		id,
		entry.UserID,
		entry.Scenario,
		entry.ElapsedSeconds,
		entry.EstimatedTokens,
		string(entry.Outcome),
		pq.Array(tags),
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
	var sum ledger.Summary
	err := s.db.GetContext(ctx, &sum, `
SELECT
	COUNT(*) AS sessions,
	COUNT(*) FILTER (WHERE outcome IN ('debited','record_failed')) AS debited,
	COUNT(*) FILTER (WHERE outcome IN ('debit_failed','record_failed')) AS failed,
	COALESCE(SUM(elapsed_seconds) FILTER (WHERE outcome IN ('debited','record_failed')), 0) AS debited_seconds,
	COALESCE(SUM(estimated_tokens), 0) AS estimated_tokens,
	COALESCE(SUM(elapsed_seconds) FILTER (WHERE outcome = 'debit_failed'), 0) AS unbilled_seconds
FROM session_journal
WHERE user_id = $1`, userID)
	if err != nil {
		return ledger.Summary{}, err
	}
	return sum, nil
}

type row struct {
	ledger.Entry
	Tags pq.StringArray `db:"tags"`
}

// ListRecent returns the latest entries for a user.
func (s *Store) ListRecent(ctx context.Context, userID string, limit int) ([]ledger.Entry, error) {
	if userID == "" {
		return nil, errors.New("user id required")
	}
	if limit <= 0 {
		limit = 50
	}
	var rows []row
	err := s.db.SelectContext(ctx, &rows, `
SELECT id, uuid::text AS uuid, user_id, scenario, elapsed_seconds, estimated_tokens, outcome, tags, memo, created_at
FROM session_journal
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	entries := make([]ledger.Entry, 0, len(rows))
	for _, r := range rows {
		e := r.Entry
		e.Tags = []string(r.Tags)
		entries = append(entries, e)
	}
	return entries, nil
}
