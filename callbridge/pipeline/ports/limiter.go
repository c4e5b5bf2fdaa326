package pipelineports

import "context"

// RateLimiter coordinates throughput per key (user id at the HTTP boundary).
type RateLimiter interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
