// Package tokencache owns the lifecycle of issued access/refresh token pairs:
// caching, lookup, blacklisting, invalidation, and expired-entry
// reconciliation. All state lives in the shared key-value store under the
// tokens: and blacklist: namespaces; the package holds no in-process
// authoritative state, so every instance is stateless and replicable.
//
// The blacklist is a security control and the pair cache is a performance
// optimization. They are intentionally separate lookups: callers must check
// IsBlacklisted before trusting anything read through GetCachedTokens, and
// the two must never be merged into a single query.
package tokencache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Alenazd/gatecred/kv"
)

const (
	pairPrefix      = "tokens:"
	blacklistPrefix = "blacklist:"

	// blacklistMarker is a sentinel; presence of the key is the signal.
	blacklistMarker = "1"
)

// ErrExpiredPair rejects caching a pair whose refresh token has already
// expired; such an entry would be born dead.
var ErrExpiredPair = errors.New("tokencache: refresh token already expired")

// Pair is one user's active token pair. Expiries are absolute epoch seconds
// as reported by the identity provider.
type Pair struct {
	AccessToken   string `json:"access_token"`
	RefreshToken  string `json:"refresh_token"`
	AccessExpiry  int64  `json:"access_exp"`
	RefreshExpiry int64  `json:"refresh_exp"`
}

// Store reads and writes token pairs and blacklist entries through the
// shared store handle. Methods return raw store errors; the engine's policy
// layer decides which of them fail open, which are swallowed, and which
// propagate.
type Store struct {
	kv  kv.Store
	now func() time.Time
}

// New creates a token cache over the given store handle.
func New(store kv.Store) *Store {
	return &Store{kv: store, now: time.Now}
}

// NewWithClock creates a token cache with an injected clock.
func NewWithClock(store kv.Store, now func() time.Time) *Store {
	s := New(store)
	if now != nil {
		s.now = now
	}
	return s
}

// CacheTokens stores the pair for userID with TTL = refreshExpiry-now, so the
// store reclaims the entry exactly when the refresh token dies. A pair whose
// refresh expiry is not in the future returns ErrExpiredPair and is not
// written. A new pair fully replaces any previous entry for the same user.
func (s *Store) CacheTokens(ctx context.Context, userID string, pair Pair) error {
	ttl := time.Unix(pair.RefreshExpiry, 0).Sub(s.now())
	if ttl <= 0 {
		return ErrExpiredPair
	}

	data, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("tokencache: encode pair: %w", err)
	}

	return s.kv.Set(ctx, pairPrefix+userID, string(data), ttl)
}

// GetCachedTokens returns the active pair for userID, or kv.ErrNotFound.
func (s *Store) GetCachedTokens(ctx context.Context, userID string) (*Pair, error) {
	data, err := s.kv.Get(ctx, pairPrefix+userID)
	if err != nil {
		return nil, err
	}

	var pair Pair
	if err := json.Unmarshal([]byte(data), &pair); err != nil {
		return nil, fmt.Errorf("tokencache: decode pair: %w", err)
	}
	return &pair, nil
}

// InvalidateTokens deletes the cached pair for userID. Absent entries are
// not an error.
func (s *Store) InvalidateTokens(ctx context.Context, userID string) error {
	return s.kv.Del(ctx, pairPrefix+userID)
}

// IsBlacklisted reports whether the token value has been revoked.
func (s *Store) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	return s.kv.Exists(ctx, blacklistPrefix+token)
}

// BlacklistToken revokes a single token value for ttl. Entries are removed
// by TTL expiry only, never deleted explicitly.
func (s *Store) BlacklistToken(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return s.kv.Set(ctx, blacklistPrefix+token, blacklistMarker, ttl)
}

// PairTTL returns the remaining lifetime of the cached entry for userID.
func (s *Store) PairTTL(ctx context.Context, userID string) (time.Duration, error) {
	return s.kv.TTL(ctx, pairPrefix+userID)
}

// ReconcileExpired evicts entries whose expiry has passed. Under a
// self-expiring store this is a no-op; under the in-memory fallback it does
// the actual reclamation. Idempotent and safe to run concurrently with
// request-path reads and writes.
func (s *Store) ReconcileExpired(ctx context.Context) (int, error) {
	return s.kv.Reconcile(ctx)
}
