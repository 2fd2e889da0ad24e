package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiterAdapter is a Redis implementation of the RateLimiterRepository
// port using a fixed-window counter per key.
type RateLimiterAdapter struct {
	rdb *redis.Client
}

// NewRateLimiterAdapter creates and tests a new connection to Redis and
// returns the adapter.
func NewRateLimiterAdapter(addr string) (*RateLimiterAdapter, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RateLimiterAdapter{rdb: rdb}, nil
}

// IsAllowed atomically increments the window counter for the key. The first
// request in a window sets the expiry; the count is then compared against
// the limit.
func (a *RateLimiterAdapter) IsAllowed(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := a.rdb.Incr(ctx, "ratelimit:"+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis INCR failed: %w", err)
	}

	if count == 1 {
		if err := a.rdb.Expire(ctx, "ratelimit:"+key, window).Err(); err != nil {
			return false, fmt.Errorf("redis EXPIRE failed: %w", err)
		}
	}

	return count <= int64(limit), nil
}

// Close gracefully closes the Redis connection.
func (a *RateLimiterAdapter) Close() error {
	return a.rdb.Close()
}
