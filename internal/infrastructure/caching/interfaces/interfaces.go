// Package interfaces defines the contracts for the identity cache stores.
package interfaces

import (
	"context"
	"time"
)

// KVStore is the minimal key-value contract both cache backends satisfy.
// Values are opaque JSON payloads; expiry is enforced by the store.
type KVStore interface {
	// Get returns the value and whether the key was present and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with the given TTL. A zero TTL means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}
