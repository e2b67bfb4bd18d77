// Package store defines the key-value contract used by plugs to persist
// session and revocation state.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is missing or expired
var ErrNotFound = errors.New("store: key not found")

// Store is a key-value store with per-key expiry
type Store interface {
	// Get returns the value for key or ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
