// internal/adapters/redis_adapter/cache.go
package redis_a

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ammerola/stockflow/internal/core/ports"
)

// CacheKeyPrefix namespaces keys by use
type CacheKeyPrefix string

const (
	PrefixIdempotency CacheKeyPrefix = "idem"
	PrefixReport      CacheKeyPrefix = "report"
	PrefixExport      CacheKeyPrefix = "export"
)

// BuildKey joins prefix and parts with colons
func BuildKey(prefix CacheKeyPrefix, parts ...string) string {
	return strings.Join(append([]string{string(prefix)}, parts...), ":")
}

// Cache stores JSON encoded values in redis
type Cache struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

var _ ports.CacheRepository = (*Cache)(nil)

// NewCache creates a cache whose Set uses ttl
func NewCache(client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *Cache {
	return &Cache{
		client: client,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "cache")),
	}
}

// Set stores value with the default TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}) error {
	return c.SetWithTTL(ctx, key, value, c.ttl)
}

func (c *Cache) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return &CacheError{Op: "marshal", Key: key, Err: err}
	}
	return c.fail(ctx, "set", key, c.client.Set(ctx, key, data, ttl).Err())
}

// Get decodes the value at key into dest, returning ports.ErrCacheMiss when
// the key is absent
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ports.ErrCacheMiss
	}
	if err != nil {
		return c.fail(ctx, "get", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return &CacheError{Op: "unmarshal", Key: key, Err: err}
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.fail(ctx, "del", strings.Join(keys, ","), c.client.Del(ctx, keys...).Err())
}

func (c *Cache) IncrementBy(ctx context.Context, key string, value int64) (int64, error) {
	n, err := c.client.IncrBy(ctx, key, value).Result()
	return n, c.fail(ctx, "incrby", key, err)
}

// SetNX stores value only when key is absent and reports whether it did
func (c *Cache) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, &CacheError{Op: "marshal", Key: key, Err: err}
	}
	ok, err := c.client.SetNX(ctx, key, data, ttl).Result()
	return ok, c.fail(ctx, "setnx", key, err)
}

func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// fail logs and wraps a redis error; nil passes through
func (c *Cache) fail(ctx context.Context, op, key string, err error) error {
	if err == nil {
		return nil
	}
	c.logger.WarnContext(ctx, "cache operation failed",
		slog.String("op", op),
		slog.String("key", key),
		slog.String("error", err.Error()))
	return &CacheError{Op: op, Key: key, Err: err}
}

// CacheError reports which cache operation failed on which key
type CacheError struct {
	Op  string
	Key string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *CacheError) Unwrap() error {
	return e.Err
}
