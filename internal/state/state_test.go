package state

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rizztempo/rizztempo/internal/hooks"
	"github.com/rizztempo/rizztempo/internal/logging"
	"github.com/rizztempo/rizztempo/internal/model"
	"github.com/rizztempo/rizztempo/internal/remote"
)

// fakeBackend answers by "METHOD /path" and records every request.
type fakeBackend struct {
	mu     sync.Mutex
	routes map[string]func(*http.Request, string) (int, string)
	seen   []string
}

func (f *fakeBackend) Do(req *http.Request) (*http.Response, error) {
	body := ""
	if req.Body != nil {
		data, _ := io.ReadAll(req.Body)
		body = string(data)
	}
	key := req.Method + " " + req.URL.Path
	f.mu.Lock()
	f.seen = append(f.seen, key+"?"+req.URL.RawQuery)
	route := f.routes[key]
	f.mu.Unlock()
	status, payload := 404, `{"message":"no route"}`
	if route != nil {
		status, payload = route(req, body)
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(payload)), Header: make(http.Header)}, nil
}

func (f *fakeBackend) handle(key string, fn func(*http.Request, string) (int, string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.routes == nil {
		f.routes = map[string]func(*http.Request, string) (int, string){}
	}
	f.routes[key] = fn
}

func reply(status int, body string) func(*http.Request, string) (int, string) {
	return func(*http.Request, string) (int, string) { return status, body }
}

type staticUser string

func (s staticUser) UserID() string { return string(s) }

func newState(t *testing.T, fb *fakeBackend, user string) *State {
	t.Helper()
	client, err := remote.NewClient("https://project.example.co", "anon", fb)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	client.SetLogger(logging.Discard())
	return New(Deps{
		Client: client,
		Users:  staticUser(user),
		Logger: logging.Discard(),
		Now:    func() time.Time { return time.Date(2025, 3, 9, 23, 30, 0, 0, time.FixedZone("X", -5*3600)) },
	})
}

func TestNoUserIsGuardFailure(t *testing.T) {
	fb := &fakeBackend{}
	s := newState(t, fb, "")
	ctx := context.Background()
	if err := s.Tokens.Refetch(ctx); !errors.Is(err, ErrNoUser) {
		t.Fatalf("expected ErrNoUser, got %v", err)
	}
	if s.Tokens.Loading() {
		t.Fatalf("loading should end without a user")
	}
	if _, err := s.Tokens.Consume(ctx, 10); !errors.Is(err, ErrNoUser) {
		t.Fatalf("expected ErrNoUser, got %v", err)
	}
	if _, err := s.Sessions.Add(ctx, "Coffee", 10); !IsGuard(err) {
		t.Fatalf("expected guard failure, got %v", err)
	}
	if len(fb.seen) != 0 {
		t.Fatalf("guard failures must not reach the backend: %v", fb.seen)
	}
}

func TestTokensConsumeRefreshesBalance(t *testing.T) {
	fb := &fakeBackend{}
	balance := `[{"permanent_tokens":6,"resettable_tokens":0}]`
	fb.handle("GET /rest/v1/user_tokens", func(*http.Request, string) (int, string) { return 200, balance })
	fb.handle("POST /rest/v1/rpc/consume_tokens", func(_ *http.Request, body string) (int, string) {
		if !strings.Contains(body, `"p_seconds":72`) {
			t.Errorf("unexpected consume body %s", body)
		}
		balance = `[{"permanent_tokens":4,"resettable_tokens":0}]`
		return 200, `{"success":true}`
	})
	s := newState(t, fb, "u-1")
	d := &hooks.Dispatcher{}
	s.Tokens.deps.Events = d
	var refreshed int
	d.Register(func(_ context.Context, evt hooks.Event) error {
		if evt.Type == hooks.EventBalanceRefreshed {
			refreshed++
		}
		return nil
	})

	ctx := context.Background()
	if err := s.Tokens.Refetch(ctx); err != nil {
		t.Fatalf("Refetch: %v", err)
	}
	if got := s.Tokens.Value().Total(); got != 6 {
		t.Fatalf("expected 6 tokens, got %v", got)
	}
	if _, err := s.Tokens.Consume(ctx, 72); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if got := s.Tokens.Value().Total(); got != 4 {
		t.Fatalf("expected refreshed balance 4, got %v", got)
	}
	if refreshed != 2 {
		t.Fatalf("expected two refresh events, got %d", refreshed)
	}
}

func TestFailedRefetchKeepsPreviousValue(t *testing.T) {
	fb := &fakeBackend{}
	fb.handle("GET /rest/v1/user_tokens", reply(200, `[{"permanent_tokens":3,"resettable_tokens":2}]`))
	s := newState(t, fb, "u-1")
	ctx := context.Background()
	if err := s.Tokens.Refetch(ctx); err != nil {
		t.Fatalf("Refetch: %v", err)
	}
	fb.handle("GET /rest/v1/user_tokens", reply(500, `{"message":"boom"}`))
	err := s.Tokens.Refetch(ctx)
	if !remote.IsRemote(err) {
		t.Fatalf("expected remote error, got %v", err)
	}
	if s.Tokens.Value().Total() != 5 || s.Tokens.Err() == nil {
		t.Fatalf("cache should survive a failed refetch")
	}
}

func TestSessionsAddAndFeedback(t *testing.T) {
	fb := &fakeBackend{}
	fb.handle("POST /rest/v1/practice_sessions", func(_ *http.Request, body string) (int, string) {
		if !strings.Contains(body, `"user_id":"u-1"`) || !strings.Contains(body, `"duration_seconds":125`) {
			t.Errorf("unexpected insert %s", body)
		}
		return 201, `[{"id":"s-1","user_id":"u-1","scenario_type":"Coffee Shop","duration_seconds":125}]`
	})
	fb.handle("PATCH /rest/v1/practice_sessions", func(req *http.Request, body string) (int, string) {
		q := req.URL.Query()
		if q.Get("id") != "eq.s-1" || q.Get("user_id") != "eq.u-1" {
			t.Errorf("unexpected filter %s", req.URL.RawQuery)
		}
		return 200, `[{"id":"s-1","user_id":"u-1","scenario_type":"Coffee Shop","duration_seconds":125,"confidence_score":8,"feedback":"ok"}]`
	})
	s := newState(t, fb, "u-1")
	ctx := context.Background()

	rec, err := s.Sessions.Add(ctx, "Coffee Shop", 125)
	if err != nil || rec.ID != "s-1" {
		t.Fatalf("Add: %+v %v", rec, err)
	}
	if len(s.Sessions.Value()) != 1 {
		t.Fatalf("session not cached")
	}
	if _, err := s.Sessions.AttachFeedback(ctx, "s-1", model.SessionFeedback{ConfidenceScore: 0}); err == nil {
		t.Fatalf("out-of-range score must be rejected")
	}
	updated, err := s.Sessions.AttachFeedback(ctx, "s-1", model.SessionFeedback{ConfidenceScore: 8, Feedback: "ok"})
	if err != nil {
		t.Fatalf("AttachFeedback: %v", err)
	}
	if updated.ConfidenceScore == nil || *s.Sessions.Value()[0].ConfidenceScore != 8 {
		t.Fatalf("feedback not cached: %+v", s.Sessions.Value())
	}
}

func TestSubscriptionCancelRequiresActive(t *testing.T) {
	fb := &fakeBackend{}
	fb.handle("GET /rest/v1/subscriptions", reply(200, `[]`))
	s := newState(t, fb, "u-1")
	ctx := context.Background()
	if err := s.Subscription.Refetch(ctx); err != nil {
		t.Fatalf("Refetch: %v", err)
	}
	if err := s.Subscription.Cancel(ctx); !errors.Is(err, ErrNoSubscription) {
		t.Fatalf("expected ErrNoSubscription, got %v", err)
	}

	active := `[{"id":"sub-1","user_id":"u-1","plan_type":"monthly","status":"active"}]`
	fb.handle("GET /rest/v1/subscriptions", func(*http.Request, string) (int, string) { return 200, active })
	fb.handle("PATCH /rest/v1/subscriptions", func(req *http.Request, body string) (int, string) {
		if req.URL.Query().Get("id") != "eq.sub-1" || !strings.Contains(body, "cancelled") {
			t.Errorf("unexpected cancel %s %s", req.URL.RawQuery, body)
		}
		active = `[]`
		return 200, `[{"id":"sub-1","status":"cancelled"}]`
	})
	if err := s.Subscription.Refetch(ctx); err != nil || s.Subscription.Value() == nil {
		t.Fatalf("expected active subscription: %v", err)
	}
	if err := s.Subscription.Cancel(ctx); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if s.Subscription.Value() != nil {
		t.Fatalf("cancelled subscription should no longer be cached")
	}
}

func TestChallengeUsesUTCDateAndGuardsCompletion(t *testing.T) {
	fb := &fakeBackend{}
	fb.handle("GET /rest/v1/daily_challenges", func(req *http.Request, _ string) (int, string) {
		q := req.URL.Query()
		if q.Get("challenge_date") != "eq.2025-03-10" || q.Get("is_active") != "is.true" {
			t.Errorf("unexpected challenge filter %s", req.URL.RawQuery)
		}
		return 200, `[{"id":"c-1","challenge_date":"2025-03-10","title":"Compliment","is_active":true}]`
	})
	fb.handle("GET /rest/v1/user_challenge_completions", reply(200, `[{"user_id":"u-1","challenge_id":"c-1","completed":true}]`))
	fb.handle("GET /rest/v1/user_streaks", reply(200, `[{"user_id":"u-1","current_streak":4,"longest_streak":9}]`))
	s := newState(t, fb, "u-1")
	if err := s.Challenge.Refetch(context.Background()); err != nil {
		t.Fatalf("Refetch: %v", err)
	}
	status := s.Challenge.Value()
	if status.Streak.CurrentStreak != 4 || !status.Completed {
		t.Fatalf("unexpected status %+v", status)
	}
	if _, err := s.Challenge.CanStart(); !errors.Is(err, ErrChallengeCompleted) {
		t.Fatalf("expected ErrChallengeCompleted, got %v", err)
	}
}

func TestSignOutResetsCaches(t *testing.T) {
	fb := &fakeBackend{}
	fb.handle("GET /rest/v1/profiles", reply(200, `[{"id":"u-1","onboarding_completed":true}]`))
	s := newState(t, fb, "u-1")
	if err := s.Profile.Refetch(context.Background()); err != nil {
		t.Fatalf("Refetch: %v", err)
	}
	if s.Profile.Value() == nil {
		t.Fatalf("profile not cached")
	}
	s.HandleAuthChange(context.Background(), hooks.EventSignedOut, nil)
	if s.Profile.Value() != nil {
		t.Fatalf("profile should be cleared on sign-out")
	}
}
