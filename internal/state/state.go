// Package state holds the per-entity data-access hooks: each keeps a local
// cached copy of one remote entity, refreshed on demand, plus the writes the
// product performs on it. Caches are advisory; the backend is authoritative.
package state

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/rizztempo/rizztempo/internal/auth"
	"github.com/rizztempo/rizztempo/internal/backend"
	"github.com/rizztempo/rizztempo/internal/hooks"
	"github.com/rizztempo/rizztempo/internal/remote"
)

// Guard failures. They never reach the backend.
var (
	ErrNoUser             = errors.New("no signed-in user")
	ErrNoSubscription     = errors.New("no active subscription")
	ErrNoChallenge        = errors.New("no challenge available today")
	ErrChallengeCompleted = errors.New("today's challenge is already completed")
)

// IsGuard reports whether err is a local precondition failure.
func IsGuard(err error) bool {
	return errors.Is(err, ErrNoUser) || errors.Is(err, ErrNoSubscription) ||
		errors.Is(err, ErrNoChallenge) || errors.Is(err, ErrChallengeCompleted)
}

// UserSource yields the signed-in user id, "" when signed out.
type UserSource interface {
	UserID() string
}

// Deps wires the hooks to their collaborators.
type Deps struct {
	Client     *remote.Client
	Procedures *backend.Procedures
	Users      UserSource
	Events     *hooks.Dispatcher
	Logger     *log.Logger
	// Now defaults to time.Now; the challenge hook uses its UTC date.
	Now func() time.Time
}

func (d Deps) userID() (string, error) {
	if d.Users == nil {
		return "", ErrNoUser
	}
	id := d.Users.UserID()
	if id == "" {
		return "", ErrNoUser
	}
	return id, nil
}

func (d Deps) emit(ctx context.Context, typ hooks.EventType, userID string, metadata map[string]any) {
	if err := d.Events.Emit(ctx, hooks.NewEvent(typ, userID, metadata)); err != nil {
		d.Logger.Printf("event %s: %v", typ, err)
	}
}

// State bundles every hook over one client and one user source.
type State struct {
	Profile      *Profile
	Sessions     *Sessions
	Scenarios    *Scenarios
	Tokens       *Tokens
	Subscription *Subscription
	Challenge    *Challenge

	logger *log.Logger
}

// New builds all hooks. Nothing is fetched until Refetch is called.
func New(deps Deps) *State {
	if deps.Logger == nil {
		deps.Logger = log.New(io.Discard, "", 0)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Procedures == nil && deps.Client != nil {
		deps.Procedures = backend.New(deps.Client)
	}
	return &State{
		Profile:      newProfile(deps),
		Sessions:     newSessions(deps),
		Scenarios:    newScenarios(deps),
		Tokens:       newTokens(deps),
		Subscription: newSubscription(deps),
		Challenge:    newChallenge(deps),
		logger:       deps.Logger,
	}
}

// RefetchAll refreshes every hook concurrently and joins their errors.
func (s *State) RefetchAll(ctx context.Context) error {
	fns := []func(context.Context) error{
		s.Profile.Refetch,
		s.Sessions.Refetch,
		s.Scenarios.Refetch,
		s.Tokens.Refetch,
		s.Subscription.Refetch,
		s.Challenge.Refetch,
	}
	errs := make([]error, len(fns))
	var wg sync.WaitGroup
	for i, fn := range fns {
		wg.Add(1)
		go func(i int, fn func(context.Context) error) {
			defer wg.Done()
			errs[i] = fn(ctx)
		}(i, fn)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Reset drops every user-scoped cache.
func (s *State) Reset() {
	s.Profile.cell.clear()
	s.Sessions.cell.clear()
	s.Tokens.cell.clear()
	s.Subscription.cell.clear()
	s.Challenge.cell.clear()
}

// HandleAuthChange matches auth.Listener: sign-in loads the user's data and
// sign-out drops it.
func (s *State) HandleAuthChange(ctx context.Context, evt hooks.EventType, session *auth.Session) {
	switch evt {
	case hooks.EventSignedIn:
		if err := s.RefetchAll(ctx); err != nil {
			s.logger.Printf("refetch after sign-in: %v", err)
		}
	case hooks.EventSignedOut:
		s.Reset()
	}
}

// cell is a mutex-guarded cached value with a loading flag.
type cell[T any] struct {
	mu      sync.RWMutex
	value   T
	loading bool
	err     error
}

func newCell[T any]() *cell[T] { return &cell[T]{loading: true} }

func (c *cell[T]) get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

func (c *cell[T]) isLoading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

func (c *cell[T]) lastErr() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// finish ends a fetch. A failed fetch keeps the previous value.
func (c *cell[T]) finish(v T, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false
	c.err = err
	if err == nil {
		c.value = v
	}
}

func (c *cell[T]) update(fn func(T) T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = fn(c.value)
}

func (c *cell[T]) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	c.value = zero
	c.loading = false
	c.err = nil
}
