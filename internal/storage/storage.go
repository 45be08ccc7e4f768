package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEmptyKey is returned when a backend is asked for the empty key
var ErrEmptyKey = errors.New("storage key cannot be empty")

// Store is the key-value blob service that holds all cross-request state.
//
// Backends only guarantee single-key last-write-wins. Callers must not
// assume compare-and-swap or multi-key transactions.
type Store interface {
	// Get returns the value stored under key. found is false when the key
	// is absent; err is reserved for backend failures.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// Taker is implemented by backends that can read and clear a key in one
// atomic step.
type Taker interface {
	Take(ctx context.Context, key string) (value string, found bool, err error)
}

// Closer is implemented by backends holding network or file handles.
type Closer interface {
	Close() error
}

// Take reads and clears key. It is atomic when the backend implements
// Taker; otherwise it degrades to get-then-delete, which leaves a narrow
// window where two concurrent callers can both observe the value.
func Take(ctx context.Context, s Store, key string) (string, bool, error) {
	if t, ok := s.(Taker); ok {
		return t.Take(ctx, key)
	}

	value, found, err := s.Get(ctx, key)
	if err != nil || !found {
		return "", false, err
	}
	if err := s.Delete(ctx, key); err != nil {
		return "", false, fmt.Errorf("clearing %s after read: %w", key, err)
	}
	return value, true, nil
}

// SupportsAtomicTake reports whether Take on s is a single atomic operation.
func SupportsAtomicTake(s Store) bool {
	if w, ok := s.(interface{ Unwrap() Store }); ok {
		return SupportsAtomicTake(w.Unwrap())
	}
	_, ok := s.(Taker)
	return ok
}

// GetJSON decodes the JSON document stored under key into v.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	raw, found, err := s.Get(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores v as a JSON document under key. A nil v deletes the key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	if v == nil {
		return s.Delete(ctx, key)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return s.Set(ctx, key, string(data))
}

// Close releases backend resources when the store holds any.
func Close(s Store) error {
	if c, ok := s.(Closer); ok {
		return c.Close()
	}
	return nil
}
