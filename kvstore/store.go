package kvstore

import (
	"context"
	"time"
)

// Store is the shared key-value contract behind rate limiting, result
// caching and device presence. Implementations must be safe for
// concurrent use.
//
// All keys are plain strings namespaced by the caller (for example
// "rate_limit:audio:nursery-1"). TTLs are mandatory: every write
// carries an expiry so abandoned keys age out on their own.
type Store interface {
	// IncrWithTTL atomically increments the counter at key and returns
	// the post-increment value. The TTL is applied only when the
	// increment creates the key, so the counter behaves as a fixed
	// window that expires ttl after its first hit.
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// SetJSON marshals value and stores it under key with the given TTL.
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error

	// GetJSON reads the value at key into dest. Returns
	// errors.ErrKeyNotFound when the key is absent or expired.
	GetJSON(ctx context.Context, key string, dest any) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources. The store must not be used
	// after Close returns.
	Close() error
}
