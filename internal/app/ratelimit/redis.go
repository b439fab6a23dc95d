package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window counter in Redis, shared across API
// instances. Expiry of the window key is Redis's job; there is nothing to
// sweep.
type RedisLimiter struct {
	rdb         *redis.Client
	prefix      string
	maxAttempts int
	window      time.Duration
}

func NewRedisLimiter(rdb *redis.Client, prefix string, maxAttempts int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, prefix: prefix, maxAttempts: maxAttempts, window: window}
}

func (l *RedisLimiter) key(key string) string {
	return "ratelimit:" + l.prefix + ":" + key
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	count, err := l.rdb.Get(ctx, l.key(key)).Int()
	if err != nil {
		if err == redis.Nil {
			return true, nil
		}
		return false, err
	}
	return count < l.maxAttempts, nil
}

func (l *RedisLimiter) Record(ctx context.Context, key string) error {
	k := l.key(key)
	count, err := l.rdb.Incr(ctx, k).Result()
	if err != nil {
		return err
	}
	if count == 1 {
		// First attempt in this window starts the clock.
		return l.rdb.Expire(ctx, k, l.window).Err()
	}
	return nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.rdb.Del(ctx, l.key(key)).Err()
}
