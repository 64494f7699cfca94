package ratelimit

import "context"

// RateLimiter paces portal dispatches per merchant account, so concurrent
// jobs logged in as the same merchant share one budget.
type RateLimiter interface {
	Allow(ctx context.Context, account string) (bool, error)
	Wait(ctx context.Context, account string) error
}
