// internal/core/ports/cache.go
package ports

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by Get when the key does not exist
var ErrCacheMiss = errors.New("cache miss")

// CacheRepository defines the interface for cache operations
type CacheRepository interface {
	// Basic operations
	Set(ctx context.Context, key string, value interface{}) error
	SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error

	// Counter operations
	IncrementBy(ctx context.Context, key string, value int64) (int64, error)

	// Conditional operations
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)

	Ping(ctx context.Context) error
}
