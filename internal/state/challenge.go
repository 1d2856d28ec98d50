package state

import (
	"context"

	"github.com/rizztempo/rizztempo/internal/model"
	"github.com/rizztempo/rizztempo/internal/remote"
)

// ChallengeStatus is today's challenge as seen by the signed-in user.
type ChallengeStatus struct {
	Date      string                `json:"date"`
	Challenge *model.DailyChallenge `json:"challenge,omitempty"`
	Completed bool                  `json:"completed"`
	Streak    model.Streak          `json:"streak"`
}

// Challenge caches today's daily challenge, completion and streak.
type Challenge struct {
	deps        Deps
	challenges  remote.Table[model.DailyChallenge]
	completions remote.Table[model.ChallengeCompletion]
	streaks     remote.Table[model.Streak]
	cell        *cell[ChallengeStatus]
}

func newChallenge(deps Deps) *Challenge {
	return &Challenge{
		deps:        deps,
		challenges:  remote.NewTable[model.DailyChallenge](deps.Client, model.TableDailyChallenges),
		completions: remote.NewTable[model.ChallengeCompletion](deps.Client, model.TableChallengeCompletions),
		streaks:     remote.NewTable[model.Streak](deps.Client, model.TableUserStreaks),
		cell:        newCell[ChallengeStatus](),
	}
}

func (c *Challenge) Value() ChallengeStatus { return c.cell.get() }

func (c *Challenge) Loading() bool { return c.cell.isLoading() }

func (c *Challenge) Err() error { return c.cell.lastErr() }

// Today is the current UTC calendar date.
func (c *Challenge) Today() string { return c.deps.Now().UTC().Format("2006-01-02") }

// Refetch loads today's active challenge, its completion and the streak.
func (c *Challenge) Refetch(ctx context.Context) error {
	uid, err := c.deps.userID()
	if err != nil {
		c.cell.clear()
		return err
	}
	status := ChallengeStatus{Date: c.Today()}
	status.Challenge, err = c.challenges.First(ctx, remote.Filter{"challenge_date": status.Date, "is_active": true})
	if err != nil {
		c.cell.finish(status, err)
		return err
	}
	if status.Challenge != nil {
		done, err := c.completions.First(ctx, remote.Filter{"user_id": uid, "challenge_id": status.Challenge.ID})
		if err != nil {
			c.cell.finish(status, err)
			return err
		}
		status.Completed = done != nil && done.Completed
	}
	streak, err := c.streaks.First(ctx, remote.Filter{"user_id": uid})
	if err != nil {
		c.cell.finish(status, err)
		return err
	}
	if streak != nil {
		status.Streak = *streak
	}
	c.cell.finish(status, nil)
	return nil
}

// CanStart returns today's challenge when it may be started.
func (c *Challenge) CanStart() (*model.DailyChallenge, error) {
	status := c.cell.get()
	if status.Challenge == nil {
		return nil, ErrNoChallenge
	}
	if status.Completed {
		return nil, ErrChallengeCompleted
	}
	ch := *status.Challenge
	return &ch, nil
}
