package util

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket refilled at a fixed rate. Waiters sleep
// until the next token is due rather than polling.
type RateLimiter struct {
	mu     sync.Mutex
	rate   float64 // tokens per second; 0 disables limiting
	burst  float64
	tokens float64
	last   time.Time
}

// NewRateLimiter allows perMinute operations per minute, one at a time.
// A non-positive perMinute disables limiting.
func NewRateLimiter(perMinute int) *RateLimiter {
	return NewBurstRateLimiter(perMinute, 1)
}

// NewBurstRateLimiter allows perMinute operations per minute with up to
// burst of them back to back. The bucket starts full.
func NewBurstRateLimiter(perMinute, burst int) *RateLimiter {
	b := float64(max(burst, 1))
	return &RateLimiter{
		rate:   max(float64(perMinute), 0) / 60.0,
		burst:  b,
		tokens: b,
		last:   time.Now(),
	}
}

// reserve takes a token if one is available and otherwise returns how long
// until the next one is.
func (rl *RateLimiter) reserve(now time.Time) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.tokens = min(rl.burst, rl.tokens+now.Sub(rl.last).Seconds()*rl.rate)
	rl.last = now
	if rl.tokens >= 1 {
		rl.tokens--
		return 0
	}
	return time.Duration((1 - rl.tokens) / rl.rate * float64(time.Second))
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl.rate <= 0 {
		return ctx.Err()
	}
	for {
		d := rl.reserve(time.Now())
		if d <= 0 {
			return nil
		}
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
