package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Cache stores JSON-serialisable values with a TTL.
// Implementations: MemoryCache (single process), RedisCache (shared).
type Cache interface {
	// Get decodes the stored value into dest or returns ErrMiss.
	Get(ctx context.Context, key string, dest any) error

	// Set stores value for ttl. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Delete removes keys; missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// Ping checks backend reachability.
	Ping(ctx context.Context) error
}
