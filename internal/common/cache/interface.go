package cache

import (
	"context"
	"time"
)

// Cache is the key-value surface the practice services rely on. Get returns
// an empty string and a nil error on a miss.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error

	// IncrWindow increments a counter that expires ttl after its first
	// increment and returns the new count.
	IncrWindow(ctx context.Context, key string, ttl time.Duration) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}
