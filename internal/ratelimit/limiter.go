// Package ratelimit throttles mail-sending operations per account or email with a Redis
// fixed-window counter.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"storefront/backend/internal/platform/autherr"
)

const keyPrefix = "rl:"

// Limiter allows at most limit hits per key per window.
type Limiter struct {
	rdb    redis.UniversalClient
	limit  int
	window time.Duration
}

// New returns a Limiter. A limit <= 0 disables throttling.
func New(rdb redis.UniversalClient, limit int, window time.Duration) *Limiter {
	return &Limiter{rdb: rdb, limit: limit, window: window}
}

// Allow counts one hit for scope/subject and returns autherr.ErrRateLimited once the window's
// budget is spent. Redis failures are returned wrapped so callers can decide to fail open.
func (l *Limiter) Allow(ctx context.Context, scope, subject string) error {
	if l.limit <= 0 {
		return nil
	}
	key := keyPrefix + scope + ":" + subject
	// The window key is created with its TTL before the increment, in one MULTI, so a
	// counter can never outlive its window.
	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, key, 0, l.window)
		incr = pipe.Incr(ctx, key)
		ttl = pipe.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("ratelimit: count: %w", err)
	}
	if ttl.Val() < 0 {
		// A counter without expiry would throttle the subject forever.
		if err := l.rdb.Expire(ctx, key, l.window).Err(); err != nil {
			return fmt.Errorf("ratelimit: expire: %w", err)
		}
	}
	count := incr.Val()
	if count > int64(l.limit) {
		return autherr.ErrRateLimited
	}
	return nil
}
