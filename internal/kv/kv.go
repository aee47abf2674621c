// Package kv abstracts the key-value store the resource cache sits on.
// The engine runs against Redis in production and an in-process store in
// tests and single-node setups; both expose the same atomic Add, which
// is the primitive the cache priming protocol depends on.
package kv

import (
	"context"
	"time"
)

// Backend is a TTL-aware key-value store.
type Backend interface {
	// Add writes value only when key is absent. Returns true when the
	// write happened. Must be atomic in the underlying store.
	Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set writes value unconditionally.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
