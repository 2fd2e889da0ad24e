package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// IdempotencyAdapter implements the IdempotencyStore port on Redis. SET NX
// with a TTL is the compare-and-set: concurrent submissions for the same key
// resolve to exactly one winner, and the claim expires with the dedup window.
type IdempotencyAdapter struct {
	rdb *redis.Client
}

// NewIdempotencyAdapter creates and tests a new connection to Redis.
func NewIdempotencyAdapter(addr string) (*IdempotencyAdapter, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &IdempotencyAdapter{rdb: rdb}, nil
}

func (a *IdempotencyAdapter) PutIfAbsent(ctx context.Context, key string, attemptID uuid.UUID, ttl time.Duration) (bool, error) {
	ok, err := a.rdb.SetNX(ctx, "idem:"+key, attemptID.String(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis SETNX failed: %w", err)
	}
	return ok, nil
}

func (a *IdempotencyAdapter) Release(ctx context.Context, key string) error {
	if err := a.rdb.Del(ctx, "idem:"+key).Err(); err != nil {
		return fmt.Errorf("redis DEL failed: %w", err)
	}
	return nil
}

// Close gracefully closes the Redis connection.
func (a *IdempotencyAdapter) Close() error {
	return a.rdb.Close()
}
