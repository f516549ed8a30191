// rate_limiter.go - Rate limiting to stay under the Gemini requests-per-minute quota

package ratelimit

import (
	"context"
	"sync"
	"time"
)

// pollInterval is how often a blocked Wait re-checks the bucket.
const pollInterval = 100 * time.Millisecond

// RateLimiter implements a simple token bucket rate limiter
type RateLimiter struct {
	tokens         int
	maxTokens      int
	refillRate     time.Duration
	lastRefillTime time.Time
	mu             sync.Mutex
	now            func() time.Time
}

// NewRateLimiter creates a new rate limiter
// maxTokens: burst size
// refillRate: time between token refills
func NewRateLimiter(maxTokens int, refillRate time.Duration) *RateLimiter {
	if maxTokens < 1 {
		maxTokens = 1
	}
	return &RateLimiter{
		tokens:         maxTokens,
		maxTokens:      maxTokens,
		refillRate:     refillRate,
		lastRefillTime: time.Now(),
		now:            time.Now,
	}
}

// PerMinute builds a limiter allowing rpm requests per minute, with a burst
// of 80% of the quota to leave headroom for latency.
func PerMinute(rpm int) *RateLimiter {
	if rpm < 1 {
		rpm = 1
	}
	burst := rpm * 4 / 5
	return NewRateLimiter(burst, time.Minute/time.Duration(rpm))
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		if rl.TryAcquire() {
			return nil
		}

		timer := time.NewTimer(pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TryAcquire takes a token if one is available.
func (rl *RateLimiter) TryAcquire() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	if rl.tokens <= 0 {
		return false
	}
	rl.tokens--
	return true
}

// Available reports the tokens currently in the bucket.
func (rl *RateLimiter) Available() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	return rl.tokens
}

// refill must be called with mu held.
func (rl *RateLimiter) refill() {
	if rl.refillRate <= 0 {
		rl.tokens = rl.maxTokens
		return
	}

	now := rl.now()
	tokensToAdd := int(now.Sub(rl.lastRefillTime) / rl.refillRate)
	if tokensToAdd <= 0 {
		return
	}

	rl.tokens += tokensToAdd
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}
	rl.lastRefillTime = rl.lastRefillTime.Add(time.Duration(tokensToAdd) * rl.refillRate)
}

var (
	globalMu          sync.Mutex
	globalRateLimiter = PerMinute(15)
)

// Configure replaces the process-wide Gemini limiter.
func Configure(rpm int) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalRateLimiter = PerMinute(rpm)
}

// WaitForRateLimit waits on the process-wide Gemini limiter.
func WaitForRateLimit(ctx context.Context) error {
	globalMu.Lock()
	rl := globalRateLimiter
	globalMu.Unlock()
	return rl.Wait(ctx)
}
