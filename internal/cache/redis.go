package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultPrefix = "capex:"

// RedisCache stores JSON-encoded values under a shared key prefix so every
// API replica and the worker see the same entries.
type RedisCache[T any] struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ Cache[int] = (*RedisCache[int])(nil)

func NewRedisCache[T any](client redis.UniversalClient, prefix string, ttl time.Duration) *RedisCache[T] {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisCache[T]{client: client, prefix: prefix, ttl: ttl}
}

// NewRedisClient parses a redis:// URL or a bare host:port address.
func NewRedisClient(addr string) (*redis.Client, error) {
	if addr == "" {
		return nil, errors.New("missing redis address")
	}
	opts, err := redis.ParseURL(addr)
	if err != nil {
		opts = &redis.Options{Addr: addr}
	}
	return redis.NewClient(opts), nil
}

func (c *RedisCache[T]) key(k string) string {
	return c.prefix + k
}

func (c *RedisCache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	b, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return zero, false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return v, true, nil
}

func (c *RedisCache[T]) Set(ctx context.Context, key string, data T) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, c.key(key), b, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache[T]) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (c *RedisCache[T]) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
