// Package store provides the key-value storage abstraction backing the
// auth module's shared state (token blacklist, session registry, login
// attempt counters). The in-memory implementation serves single-instance
// deployments; the Redis implementation externalises the state so multiple
// replicas see the same sessions and counters.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by implementations that distinguish a missing
// key from a transport error.
var ErrKeyNotFound = errors.New("key not found")

// Store is a TTL-aware key-value store.
type Store interface {
	// Get returns the value for key. The second return value reports
	// whether the key was present and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key. A zero ttl means the entry never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Sweep removes expired entries and returns how many were evicted.
	// Backends with native expiry may implement this as a no-op.
	Sweep(ctx context.Context) (int, error)
}
