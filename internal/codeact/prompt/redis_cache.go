package prompt

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores a resolved prompt fragment (the tool catalog render and the
// workspace listing rarely change within a task) keyed by a caller-supplied
// hash, so repeated iterations of the same task skip re-rendering them.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
}

// RedisCache is a Cache backed by a single-node Redis instance.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache builds a RedisCache. Returns nil if addr is empty (caching
// disabled; Builder falls back to re-rendering every call).
func NewRedisCache(addr, password string, db int) *RedisCache {
	if addr == "" {
		return nil
	}
	return &RedisCache{client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	if c == nil {
		return "", false
	}
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if c == nil {
		return
	}
	_ = c.client.Set(ctx, key, value, ttl).Err()
}
