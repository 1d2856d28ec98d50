// Package ledger is the local journal of practice-session outcomes. It is
// advisory: balances are always read from the backend, never derived here.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Outcome is how a timed session ended.
type Outcome string

const (
	// OutcomeSkipped is a zero-duration end; nothing was sent to the backend.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeDebited means the debit and the session record both succeeded.
	OutcomeDebited Outcome = "debited"
	// OutcomeDebitFailed means the backend refused or never answered the debit.
	OutcomeDebitFailed Outcome = "debit_failed"
	// OutcomeRecordFailed means tokens were debited but the session row was not stored.
	OutcomeRecordFailed Outcome = "record_failed"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSkipped, OutcomeDebited, OutcomeDebitFailed, OutcomeRecordFailed:
		return true
	}
	return false
}

// Entry represents a single session outcome written to the journal.
type Entry struct {
	ID              int64     `json:"id" db:"id"`
	UUID            string    `json:"uuid" db:"uuid"`
	UserID          string    `json:"user_id" db:"user_id"`
	Scenario        string    `json:"scenario" db:"scenario"`
	ElapsedSeconds  float64   `json:"elapsed_seconds" db:"elapsed_seconds"`
	EstimatedTokens float64   `json:"estimated_tokens" db:"estimated_tokens"`
	Outcome         Outcome   `json:"outcome" db:"outcome"`
	Tags            []string  `json:"tags,omitempty" db:"-"`
	Memo            string    `json:"memo" db:"memo"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Validate checks the fields every store requires.
func (e Entry) Validate() error {
	if e.UserID == "" {
		return errors.New("ledger record requires user id")
	}
	if !e.Outcome.Valid() {
		return fmt.Errorf("invalid outcome %q", e.Outcome)
	}
	if e.ElapsedSeconds < 0 {
		return errors.New("elapsed seconds must not be negative")
	}
	return nil
}

// Summary aggregates journaled sessions for a user.
type Summary struct {
	Sessions        int64   `json:"sessions" db:"sessions"`
	Debited         int64   `json:"debited" db:"debited"`
	Failed          int64   `json:"failed" db:"failed"`
	DebitedSeconds  float64 `json:"debited_seconds" db:"debited_seconds"`
	EstimatedTokens float64 `json:"estimated_tokens" db:"estimated_tokens"`
	// UnbilledSeconds is practice time the backend never debited.
	UnbilledSeconds float64 `json:"unbilled_seconds" db:"unbilled_seconds"`
}

// Store defines persistence behaviour for the journal.
type Store interface {
	Record(ctx context.Context, entry Entry) error
	Summary(ctx context.Context, userID string) (Summary, error)
	ListRecent(ctx context.Context, userID string, limit int) ([]Entry, error)
	Close() error
}
