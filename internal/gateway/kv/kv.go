// Package kv is the TTL key-value store behind token revocation, refresh
// token tracking and login throttling. The memory driver serves a single
// gateway process; the redis driver lets several replicas share state.
package kv

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound   = errors.New("kv: key not found")
	ErrInvalidTTL = errors.New("kv: ttl must be positive")
)

type Store interface {
	// SetWithTTL stores value under key, expiring after ttl.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error

	// Get returns ErrNotFound for missing or expired keys.
	Get(ctx context.Context, key string) (string, error)

	Exists(ctx context.Context, key string) (bool, error)

	// IncrWithTTL atomically increments the integer at key. The ttl is
	// applied only when the increment creates the key, so the window is
	// anchored at the first increment.
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// TTL reports the remaining lifetime of key, or ErrNotFound.
	TTL(ctx context.Context, key string) (time.Duration, error)

	Delete(ctx context.Context, keys ...string) error

	Ping(ctx context.Context) error
	Close() error
}

// Sweeper is implemented by stores that need expired entries reclaimed
// periodically.
type Sweeper interface {
	Sweep() int
}
