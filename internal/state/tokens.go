package state

import (
	"context"

	"github.com/rizztempo/rizztempo/internal/backend"
	"github.com/rizztempo/rizztempo/internal/hooks"
	"github.com/rizztempo/rizztempo/internal/model"
	"github.com/rizztempo/rizztempo/internal/remote"
)

// Tokens caches the user's balance. The backend procedures are the only
// writers; the cache may lag until the next Refetch.
type Tokens struct {
	deps Deps
	cell *cell[model.TokenBalance]
}

func newTokens(deps Deps) *Tokens {
	return &Tokens{deps: deps, cell: newCell[model.TokenBalance]()}
}

func (t *Tokens) Value() model.TokenBalance { return t.cell.get() }

func (t *Tokens) Loading() bool { return t.cell.isLoading() }

func (t *Tokens) Err() error { return t.cell.lastErr() }

// Refetch reloads the balance. A user without a balance row keeps the
// previous value.
func (t *Tokens) Refetch(ctx context.Context) error {
	uid, err := t.deps.userID()
	if err != nil {
		t.cell.clear()
		return err
	}
	var rows []model.TokenBalance
	err = t.deps.Client.Select(ctx, model.TableUserTokens, "permanent_tokens,resettable_tokens", remote.Filter{"user_id": uid}, &rows)
	if err != nil {
		t.cell.finish(model.TokenBalance{}, err)
		return err
	}
	if len(rows) == 0 {
		t.cell.finish(t.cell.get(), nil)
		return nil
	}
	bal := rows[0]
	bal.UserID = uid
	t.cell.finish(bal, nil)
	t.deps.emit(ctx, hooks.EventBalanceRefreshed, uid, map[string]any{
		"permanent":  bal.Permanent,
		"resettable": bal.Resettable,
		"total":      bal.Total(),
	})
	return nil
}

// Consume asks the backend to debit seconds of practice and refreshes the
// balance when it succeeds.
func (t *Tokens) Consume(ctx context.Context, seconds float64) (backend.Result, error) {
	uid, err := t.deps.userID()
	if err != nil {
		return backend.Result{}, err
	}
	res, err := t.deps.Procedures.ConsumeTokens(ctx, uid, seconds)
	if err != nil {
		return res, err
	}
	t.refreshAfterWrite(ctx)
	return res, nil
}

// Purchase credits amount tokens for paymentID.
func (t *Tokens) Purchase(ctx context.Context, amount int, paymentID string) (backend.Result, error) {
	uid, err := t.deps.userID()
	if err != nil {
		return backend.Result{}, err
	}
	res, err := t.deps.Procedures.PurchaseTokens(ctx, uid, amount, paymentID)
	if err != nil {
		return res, err
	}
	t.refreshAfterWrite(ctx)
	return res, nil
}

func (t *Tokens) refreshAfterWrite(ctx context.Context) {
	if err := t.Refetch(ctx); err != nil {
		t.deps.Logger.Printf("refresh balance: %v", err)
	}
}
