package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested entity is not cached.
	ErrNotFound = errors.New("not found in cache")

	// ErrCorrupted indicates a stored collection could not be decoded.
	ErrCorrupted = errors.New("cache value corrupted")
)

// CorruptionError is returned when the value under Key fails to decode.
// The key is not repaired automatically.
type CorruptionError struct {
	Key string
	Err error
}

// Error implements the error interface.
func (e *CorruptionError) Error() string {
	return fmt.Sprintf("corrupted cache value at %s: %v", e.Key, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *CorruptionError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrCorrupted) match any CorruptionError.
func (e *CorruptionError) Is(target error) bool {
	return target == ErrCorrupted
}
