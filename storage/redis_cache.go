package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores entries as plain Redis strings under
// <prefix>:<name>:<sha256(key)>, without expiry. It lets several machines
// share one response cache.
type RedisCache struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisCache returns a cache scoped to one provider name.
func NewRedisCache(rdb redis.UniversalClient, prefix, name string) *RedisCache {
	prefix = strings.Trim(prefix, ":")
	if prefix == "" {
		prefix = "house-finder:cache"
	}
	return &RedisCache{rdb: rdb, prefix: prefix + ":" + strings.ReplaceAll(name, "/", ":")}
}

func (c *RedisCache) redisKey(key string) string {
	return c.prefix + ":" + Digest(key)
}

func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, c.redisKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("cache: redis exists: %w", err)
	}
	return n > 0, nil
}

func (c *RedisCache) Read(ctx context.Context, key string) ([]byte, error) {
	body, err := c.rdb.Get(ctx, c.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache: redis get: %w", err)
	}
	return body, nil
}

func (c *RedisCache) Write(ctx context.Context, key string, body []byte) error {
	if err := c.rdb.Set(ctx, c.redisKey(key), body, 0).Err(); err != nil {
		return fmt.Errorf("cache: redis set: %w", err)
	}
	return nil
}
