package cache

import (
	"context"
	"errors"
)

// ErrCacheMiss indicates the requested key was never written.
var ErrCacheMiss = errors.New("cache miss")

// Store is a byte-oriented key/value store.
//
// Implementations must be safe for concurrent use. Atomicity of
// read-modify-write sequences is the caller's concern.
type Store interface {
	// Get returns the value stored under key, or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
