package harnessports

import "context"

// RateLimiter throttles calls per key, such as conversation creation.
type RateLimiter interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
