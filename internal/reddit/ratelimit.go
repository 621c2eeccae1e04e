package reddit

import (
	"sync"
	"time"
)

// RateLimiter tells the caller how long to sleep before issuing the next
// outbound request, atomically reserving a slot for that request
type RateLimiter interface {
	Reserve() time.Duration
}

// NopLimiter never makes callers wait
type NopLimiter struct{}

// Reserve implements RateLimiter
func (NopLimiter) Reserve() time.Duration { return 0 }

// TokenBucket allows bursts up to the per-minute capacity while enforcing the
// long-run average rate. The bucket may go negative: a queue of concurrent
// callers each reserves a deeper deficit and therefore a longer wait, so no
// two callers share the same zero-wait slot.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   int
	tokens     int
	perToken   time.Duration
	lastRefill time.Time
	now        func() time.Time
}

// NewTokenBucket creates a bucket sized for the given requests-per-minute
// budget, starting full
func NewTokenBucket(requestsPerMinute int) *TokenBucket {
	return &TokenBucket{
		capacity:   requestsPerMinute,
		tokens:     requestsPerMinute,
		perToken:   time.Minute / time.Duration(requestsPerMinute),
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// Reserve implements RateLimiter. The whole check-and-decrement is serialized;
// the refill clock advances by whole-token increments only, so it never drifts
// ahead of real elapsed time.
func (b *TokenBucket) Reserve() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	earned := int(now.Sub(b.lastRefill) / b.perToken)
	b.tokens += earned
	b.lastRefill = b.lastRefill.Add(time.Duration(earned) * b.perToken)
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}

	b.tokens--
	if b.tokens >= 0 {
		return 0
	}
	return time.Duration(-b.tokens) * b.perToken
}

// Tokens returns the current token count, for monitoring
func (b *TokenBucket) Tokens() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens
}
