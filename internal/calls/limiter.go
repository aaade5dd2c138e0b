package calls

import (
	"context"
	"time"

	"ai-call-gateway/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// Limiter caps in-flight call initiations per owner.
//
// Slots are released explicitly when the provider rejects a call; accepted
// calls tear down on the provider's schedule, so their slots are reclaimed by
// TTL expiry instead of an explicit release. The cap is therefore a throttle
// on initiation bursts, not an exact live-call counter.
type Limiter interface {
	Acquire(ctx context.Context, ownerID string) (bool, error)
	Release(ctx context.Context, ownerID string) error
}

// RedisLimiter implements Limiter on the shared Redis concurrency-cap scripts.
type RedisLimiter struct {
	rdb   *redis.Client
	limit int
	ttl   time.Duration
}

func NewRedisLimiter(rdb *redis.Client, limit int, ttl time.Duration) *RedisLimiter {
	if limit <= 0 {
		limit = 5
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisLimiter{rdb: rdb, limit: limit, ttl: ttl}
}

var _ Limiter = (*RedisLimiter)(nil)

func capKey(ownerID string) string { return "calls:initiating:" + ownerID }

func (l *RedisLimiter) Acquire(ctx context.Context, ownerID string) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, l.rdb, capKey(ownerID), l.limit, l.ttl)
}

func (l *RedisLimiter) Release(ctx context.Context, ownerID string) error {
	return utils.ReleaseConcurrencyCap(ctx, l.rdb, capKey(ownerID))
}
