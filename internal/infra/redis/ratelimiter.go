package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/nikverify/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	dispatchWindow     = time.Minute
	dispatchKeyPrefix  = "nikverify:dispatch"
	minWaitBeforeRetry = 100 * time.Millisecond
)

var allowScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var _ ratelimit.RateLimiter = (*DispatchLimiter)(nil)

// DispatchLimiter caps identifier submissions per merchant account in fixed
// one-minute windows shared by every process using the same Redis.
type DispatchLimiter struct {
	client      *goredis.Client
	limitPerMin int64
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
	script      *goredis.Script
}

func NewDispatchLimiter(client *goredis.Client, limitPerMin int) (*DispatchLimiter, error) {
	return newDispatchLimiter(
		client,
		int64(limitPerMin),
		time.Now,
		sleepWithContext,
	)
}

func newDispatchLimiter(
	client *goredis.Client,
	limitPerMin int64,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*DispatchLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limitPerMin <= 0 {
		return nil, fmt.Errorf("dispatch limit must be positive, got %d", limitPerMin)
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &DispatchLimiter{
		client:      client,
		limitPerMin: limitPerMin,
		now:         nowFn,
		sleep:       sleepFn,
		script:      allowScript,
	}, nil
}

func (l *DispatchLimiter) Allow(ctx context.Context, account string) (bool, error) {
	if l == nil || l.client == nil || l.script == nil {
		return false, fmt.Errorf("dispatch limiter is not initialized")
	}

	normalizedAccount := strings.ToLower(strings.TrimSpace(account))
	if normalizedAccount == "" {
		return false, fmt.Errorf("account is required")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	window := l.now().UTC().Truncate(dispatchWindow).Unix()
	key := fmt.Sprintf("%s:%s:%d", dispatchKeyPrefix, normalizedAccount, window)
	result, err := l.script.Run(ctx, l.client, []string{key}, l.limitPerMin, int(dispatchWindow.Seconds())).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate dispatch limit: %w", err)
	}

	return result == 1, nil
}

// Wait blocks until the account has budget in the current window, sleeping
// to the next window boundary between attempts.
func (l *DispatchLimiter) Wait(ctx context.Context, account string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		allowed, err := l.Allow(ctx, account)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		if err := l.sleep(ctx, l.untilNextWindow()); err != nil {
			return err
		}
	}
}

func (l *DispatchLimiter) untilNextWindow() time.Duration {
	now := l.now().UTC()
	wait := now.Truncate(dispatchWindow).Add(dispatchWindow).Sub(now)
	if wait < minWaitBeforeRetry {
		wait = minWaitBeforeRetry
	}
	return wait
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
