package throttle

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces throttle keys in Redis.
const DefaultRedisPrefix = "beacon:throttle:"

// RedisBackend shares throttle state between instances through Redis.
// Each key is written with SET NX PX so that expiry is handled by Redis.
type RedisBackend struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisBackend creates a Redis backend. An empty prefix uses DefaultRedisPrefix.
func NewRedisBackend(client redis.UniversalClient, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisBackend{client: client, prefix: prefix}
}

// Name implements Backend.
func (r *RedisBackend) Name() string { return "redis" }

// Acquire implements Backend.
func (r *RedisBackend) Acquire(ctx context.Context, key string, window time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.prefix+key, time.Now().UTC().Format(time.RFC3339Nano), window).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set throttle key: %w", err)
	}
	return ok, nil
}

// Ping checks connectivity.
func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
