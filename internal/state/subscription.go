package state

import (
	"context"

	"github.com/rizztempo/rizztempo/internal/backend"
	"github.com/rizztempo/rizztempo/internal/model"
	"github.com/rizztempo/rizztempo/internal/remote"
)

// Subscription caches the user's active subscription, nil when none.
type Subscription struct {
	deps  Deps
	table remote.Table[model.Subscription]
	cell  *cell[*model.Subscription]
}

func newSubscription(deps Deps) *Subscription {
	return &Subscription{deps: deps, table: remote.NewTable[model.Subscription](deps.Client, model.TableSubscriptions), cell: newCell[*model.Subscription]()}
}

func (s *Subscription) Value() *model.Subscription { return s.cell.get() }

func (s *Subscription) Loading() bool { return s.cell.isLoading() }

func (s *Subscription) Err() error { return s.cell.lastErr() }

func (s *Subscription) Refetch(ctx context.Context) error {
	uid, err := s.deps.userID()
	if err != nil {
		s.cell.clear()
		return err
	}
	row, err := s.table.First(ctx, remote.Filter{"user_id": uid, "status": model.SubscriptionActive})
	s.cell.finish(row, err)
	return err
}

// Activate attaches planType through the backend procedure.
func (s *Subscription) Activate(ctx context.Context, planType, stripeSubscriptionID, stripeCustomerID string) (backend.Result, error) {
	uid, err := s.deps.userID()
	if err != nil {
		return backend.Result{}, err
	}
	res, err := s.deps.Procedures.ActivateSubscription(ctx, uid, planType, stripeSubscriptionID, stripeCustomerID)
	if err != nil {
		return res, err
	}
	if err := s.Refetch(ctx); err != nil {
		s.deps.Logger.Printf("refresh subscription: %v", err)
	}
	return res, nil
}

// Cancel marks the cached active subscription as cancelled.
func (s *Subscription) Cancel(ctx context.Context) error {
	uid, err := s.deps.userID()
	if err != nil {
		return err
	}
	cur := s.cell.get()
	if cur == nil {
		return ErrNoSubscription
	}
	if _, err := s.table.Update(ctx, model.SubscriptionStatusPatch{Status: model.SubscriptionCancelled}, remote.Filter{"user_id": uid, "id": cur.ID}); err != nil {
		return err
	}
	return s.Refetch(ctx)
}
