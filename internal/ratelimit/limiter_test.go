package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(perMinute float64, burst int) (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New(Config{PerMinute: perMinute, Burst: burst, Now: clock.Now}), clock
}

func TestBurstThenRefill(t *testing.T) {
	l, clock := newTestLimiter(6, 3) // one token every 10s

	for i := 0; i < 3; i++ {
		if ok, _ := l.Allow("1.2.3.4"); !ok {
			t.Fatalf("request %d should be allowed within the burst", i)
		}
	}
	ok, wait := l.Allow("1.2.3.4")
	if ok {
		t.Fatalf("request past the burst should be denied")
	}
	if wait != 10*time.Second {
		t.Fatalf("expected 10s wait, got %v", wait)
	}

	clock.advance(10 * time.Second)
	if ok, _ := l.Allow("1.2.3.4"); !ok {
		t.Fatalf("a refilled token should be usable")
	}
	if ok, _ := l.Allow("1.2.3.4"); ok {
		t.Fatalf("only one token should have refilled")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, 1)
	if ok, _ := l.Allow("a"); !ok {
		t.Fatalf("first request for a should pass")
	}
	if ok, _ := l.Allow("b"); !ok {
		t.Fatalf("b must not share a's bucket")
	}
	l.Reset("a")
	if ok, _ := l.Allow("a"); !ok {
		t.Fatalf("reset key should start with a full bucket")
	}
}

func TestSweepDropsRefilledBuckets(t *testing.T) {
	l, clock := newTestLimiter(60, 1)
	for i := 0; i < sweepEvery-1; i++ {
		l.Allow(string(rune('a' + i%26)))
	}
	clock.advance(time.Minute)
	l.Allow("z")
	if n := l.tracked(); n != 1 {
		t.Fatalf("expected only the fresh bucket after a sweep, got %d", n)
	}
}

func TestMiddlewareAnswers429(t *testing.T) {
	l, _ := newTestLimiter(1, 1)
	h := Middleware(l, nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/signin", nil)
	req.RemoteAddr = "10.0.0.7:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("first request should pass, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request should be limited, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("unexpected Retry-After %q", rec.Header().Get("Retry-After"))
	}
}

func TestNilLimiterPassesThrough(t *testing.T) {
	called := false
	h := Middleware(nil, nil, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Fatalf("nil limiter must not block")
	}
}
