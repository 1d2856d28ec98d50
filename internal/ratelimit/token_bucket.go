package ratelimit

import (
	"time"
)

// tokenBucket refills at a constant rate and allows bursts up to capacity.
// It is not safe for concurrent use; Limiter serialises access.
type tokenBucket struct {
	capacity   float64
	refillRate float64 // tokens per second
	tokens     float64
	lastRefill time.Time
}

func newTokenBucket(capacity, refillRate float64, now time.Time) *tokenBucket {
	return &tokenBucket{capacity: capacity, refillRate: refillRate, tokens: capacity, lastRefill: now}
}

func (tb *tokenBucket) refill(now time.Time) {
	if elapsed := now.Sub(tb.lastRefill).Seconds(); elapsed > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+elapsed*tb.refillRate)
		tb.lastRefill = now
	}
}

// take consumes one token when available.
func (tb *tokenBucket) take(now time.Time) bool {
	tb.refill(now)
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// wait is the time until one token is available.
func (tb *tokenBucket) wait() time.Duration {
	if tb.tokens >= 1 {
		return 0
	}
	return time.Duration((1 - tb.tokens) / tb.refillRate * float64(time.Second))
}

func (tb *tokenBucket) full(now time.Time) bool {
	tb.refill(now)
	return tb.tokens >= tb.capacity
}
