package adapters

import (
	"context"
	"sync"
	"time"

	ports "github.com/ZanzyTHEbar/sydney-stream/sydney/harness/ports"

	"golang.org/x/time/rate"
)

// TokenBucket limits calls per key with a burst of capacity tokens and one
// token regained every refillRate.
type TokenBucket struct {
	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	capacity   int
	refillRate time.Duration
}

// NewTokenBucket creates a new token bucket rate limiter.
func NewTokenBucket(capacity int, refillRate time.Duration) *TokenBucket {
	return &TokenBucket{
		limiters:   make(map[string]*rate.Limiter),
		capacity:   max(capacity, 1),
		refillRate: refillRate,
	}
}

func (tb *TokenBucket) limiter(key string) *rate.Limiter {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	l, ok := tb.limiters[key]
	if !ok {
		every := rate.Inf
		if tb.refillRate > 0 {
			every = rate.Every(tb.refillRate)
		}
		l = rate.NewLimiter(every, tb.capacity)
		tb.limiters[key] = l
	}
	return l
}

// Acquire takes a token for key without waiting. Tokens are spent once the
// guarded call starts, so release is a no-op.
func (tb *TokenBucket) Acquire(ctx context.Context, key string) (release func(), err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !tb.limiter(key).Allow() {
		return nil, ErrRateLimitExceeded
	}
	return func() {}, nil
}

// ErrRateLimitExceeded is returned when the rate limit is exceeded.
var ErrRateLimitExceeded = &RateLimitError{Message: "rate limit exceeded"}

type RateLimitError struct {
	Message string
}

func (e *RateLimitError) Error() string {
	return e.Message
}

// Ensure TokenBucket implements the RateLimiter interface.
var _ ports.RateLimiter = (*TokenBucket)(nil)
