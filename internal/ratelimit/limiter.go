// Package ratelimit throttles repeated requests per client key. The daemon
// uses it to slow down password guessing on the auth routes.
package ratelimit

import (
	"sync"
	"time"
)

// Config holds the limit applied to every key.
type Config struct {
	// PerMinute is the sustained rate.
	PerMinute float64
	// Burst is how many requests a fresh key may send at once.
	Burst int
	// Now defaults to time.Now.
	Now func() time.Time
}

// Limiter keeps one token bucket per key.
type Limiter struct {
	rate  float64
	burst float64
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*tokenBucket
	calls   int
}

// sweepEvery is how many Allow calls pass between sweeps of full buckets.
const sweepEvery = 256

// New builds a limiter; non-positive values fall back to 10/min with a burst of 5.
func New(cfg Config) *Limiter {
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Limiter{
		rate:    cfg.PerMinute / 60,
		burst:   float64(cfg.Burst),
		now:     cfg.Now,
		buckets: make(map[string]*tokenBucket),
	}
}

// Allow consumes one request for key. When denied it returns how long the
// caller should wait.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.calls++
	if l.calls%sweepEvery == 0 {
		l.sweepLocked(now)
	}
	b, ok := l.buckets[key]
	if !ok {
		b = newTokenBucket(l.burst, l.rate, now)
		l.buckets[key] = b
	}
	if b.take(now) {
		return true, 0
	}
	return false, b.wait()
}

// Reset forgets key, e.g. after a successful sign-in.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// Burst is the configured burst size.
func (l *Limiter) Burst() int { return int(l.burst) }

// tracked reports how many keys hold state.
func (l *Limiter) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// sweepLocked drops buckets that have refilled; they behave like new keys.
func (l *Limiter) sweepLocked(now time.Time) {
	for key, b := range l.buckets {
		if b.full(now) {
			delete(l.buckets, key)
		}
	}
}
