package state

import (
	"context"
	"errors"
	"strings"

	"github.com/rizztempo/rizztempo/internal/model"
	"github.com/rizztempo/rizztempo/internal/remote"
)

// Sessions caches the user's practice sessions.
type Sessions struct {
	deps  Deps
	table remote.Table[model.PracticeSession]
	cell  *cell[[]model.PracticeSession]
}

func newSessions(deps Deps) *Sessions {
	return &Sessions{deps: deps, table: remote.NewTable[model.PracticeSession](deps.Client, model.TablePracticeSessions), cell: newCell[[]model.PracticeSession]()}
}

// Value returns a copy of the cached sessions.
func (s *Sessions) Value() []model.PracticeSession {
	cur := s.cell.get()
	out := make([]model.PracticeSession, len(cur))
	copy(out, cur)
	return out
}

func (s *Sessions) Loading() bool { return s.cell.isLoading() }

func (s *Sessions) Err() error { return s.cell.lastErr() }

// Refetch reloads the user's sessions.
func (s *Sessions) Refetch(ctx context.Context) error {
	uid, err := s.deps.userID()
	if err != nil {
		s.cell.clear()
		return err
	}
	rows, err := s.table.Select(ctx, remote.Filter{"user_id": uid})
	s.cell.finish(rows, err)
	return err
}

// Add stores a completed session for the signed-in user and appends it to
// the cache.
func (s *Sessions) Add(ctx context.Context, scenarioType string, durationSeconds int) (model.PracticeSession, error) {
	uid, err := s.deps.userID()
	if err != nil {
		return model.PracticeSession{}, err
	}
	rows, err := s.table.Insert(ctx, model.PracticeSession{
		UserID:          uid,
		ScenarioType:    scenarioType,
		DurationSeconds: durationSeconds,
	})
	if err != nil {
		return model.PracticeSession{}, err
	}
	if len(rows) == 0 {
		return model.PracticeSession{}, errors.New("insert returned no session")
	}
	s.cell.update(func(cur []model.PracticeSession) []model.PracticeSession {
		return append(cur, rows...)
	})
	return rows[0], nil
}

// AttachFeedback records the user's confidence score and notes on a session.
func (s *Sessions) AttachFeedback(ctx context.Context, sessionID string, fb model.SessionFeedback) (model.PracticeSession, error) {
	uid, err := s.deps.userID()
	if err != nil {
		return model.PracticeSession{}, err
	}
	if strings.TrimSpace(sessionID) == "" {
		return model.PracticeSession{}, errors.New("session id required")
	}
	rows, err := s.table.Update(ctx, fb, remote.Filter{"id": sessionID, "user_id": uid})
	if err != nil {
		return model.PracticeSession{}, err
	}
	if len(rows) == 0 {
		return model.PracticeSession{}, &remote.Error{Message: "session not found", Status: 404}
	}
	updated := rows[0]
	s.cell.update(func(cur []model.PracticeSession) []model.PracticeSession {
		out := make([]model.PracticeSession, len(cur))
		copy(out, cur)
		for i := range out {
			if out[i].ID == updated.ID {
				out[i] = updated
			}
		}
		return out
	})
	return updated, nil
}
