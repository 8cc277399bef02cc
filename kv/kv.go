// Package kv defines the key-value store contract shared by the rate limiter
// and the token cache, plus the two implementations the engine ships with:
// a Redis-backed store and an in-memory store used as a test double and as a
// fallback for deployments without a reachable Redis.
//
// The contract is deliberately narrow: single-key operations only, each one
// atomic on its own. Both components layer their semantics on top of these
// primitives, so any backend offering them with single-key linearizability
// satisfies the engine.
package kv

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the key does not exist or has expired.
	ErrNotFound = errors.New("kv: key not found")
	// ErrUnavailable indicates the backing store could not be reached.
	ErrUnavailable = errors.New("kv: store unavailable")
)

// Store is the injected backend handle shared across engine components.
// Implementations must make Incr and SetNX individually atomic; no multi-key
// transaction support is required or used.
type Store interface {
	// Get returns the string value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set writes key=value with the given TTL, replacing any previous value.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX writes key=value with the given TTL only if key is absent.
	// Returns true if the write happened.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Incr atomically increments the numeric value at key, creating it at 1
	// without a TTL if absent, and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)

	// Del removes the given keys. Missing keys are not an error.
	Del(ctx context.Context, keys ...string) error

	// Expire sets the remaining lifetime of an existing key. Missing keys
	// are not an error; the call is a no-op for them.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// TTL returns the remaining lifetime of key, or ErrNotFound if the key
	// does not exist. A zero duration with nil error means no expiry is set.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Exists reports whether key is present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)

	// Reconcile evicts entries whose expiry has passed. Self-expiring
	// backends implement this as a no-op. It must be idempotent and safe to
	// run concurrently with reads and writes. Returns the number of entries
	// evicted.
	Reconcile(ctx context.Context) (int, error)

	// Close releases the backend connection.
	Close() error
}
