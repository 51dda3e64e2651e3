package ratelimit

import "context"

// Throttle bounds outbound send throughput per source. Implementations
// may be distributed (Redis) or in-process.
type Throttle interface {
	Allow(ctx context.Context, key string) (bool, error)
	Wait(ctx context.Context, key string) error
}
