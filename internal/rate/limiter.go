package rate

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/Alenazd/gatecred/kv"
)

// Limiter enforces fixed-window request quotas over the shared key-value
// store. One counter key per logical identity; the window is carried by the
// key's TTL, set when the first hit of the window creates the counter.
//
// The fixed-window strategy admits up to 2x the quota across a window
// boundary. That is a deliberate trade for O(1) state per key and for
// leaning on the store's native TTL; do not replace it with a sliding
// window without revisiting the abuse-mitigation requirements.
type Limiter struct {
	store kv.Store
}

// Decision is the outcome of a limiter check.
type Decision struct {
	Allowed    bool
	Count      int64
	Remaining  int64
	RetryAfter time.Duration // zero when unknown or not throttled
}

// New creates a [Limiter] over the given store handle.
func New(store kv.Store) *Limiter {
	return &Limiter{store: store}
}

// CheckAndConsume applies the general-traffic policy: every call consumes
// quota. An absent counter is created at 1 with TTL=window; a counter below
// quota is incremented; a counter at or above quota denies the request
// without touching the key, so rejected traffic never extends the window.
//
// Store failures are reported to the caller alongside an allowing decision;
// rate limiting fails open.
func (l *Limiter) CheckAndConsume(ctx context.Context, key string, quota int64, window time.Duration) (Decision, error) {
	current, err := l.currentCount(ctx, key)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return l.openWindow(ctx, key, quota, window)
		}
		return Decision{Allowed: true}, err
	}

	if current >= quota {
		return l.deny(ctx, key, current), nil
	}

	count, err := l.incrAndArm(ctx, key, window)
	if err != nil {
		return Decision{Allowed: true}, err
	}
	return Decision{Allowed: true, Count: count, Remaining: remaining(quota, count)}, nil
}

// Check applies the login-attempt policy read-only: it denies once the
// failure counter has reached quota but never mutates it. Failed attempts
// are recorded separately via [Limiter.RecordFailure] once the caller knows
// the authentication outcome.
func (l *Limiter) Check(ctx context.Context, key string, quota int64) (Decision, error) {
	current, err := l.currentCount(ctx, key)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return Decision{Allowed: true, Remaining: quota}, nil
		}
		return Decision{Allowed: true}, err
	}

	if current >= quota {
		return l.deny(ctx, key, current), nil
	}
	return Decision{Allowed: true, Count: current, Remaining: quota - current}, nil
}

// RecordFailure counts one failed attempt against key, opening a fresh
// window when the counter is absent, and returns the new count. Successful
// attempts must not be recorded; only failures consume login quota.
func (l *Limiter) RecordFailure(ctx context.Context, key string, window time.Duration) (int64, error) {
	created, err := l.store.SetNX(ctx, key, "1", window)
	if err != nil {
		return 0, err
	}
	if created {
		return 1, nil
	}
	return l.incrAndArm(ctx, key, window)
}

// incrAndArm increments the counter and re-arms the window TTL when the
// increment recreated the key. INCR brings back a counter that expired after
// the preceding read, but without an expiry; left alone it would never reset
// and the key would deny forever once it reached quota.
func (l *Limiter) incrAndArm(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := l.store.Incr(ctx, key)
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := l.store.Expire(ctx, key, window); err != nil {
			return count, err
		}
	}
	return count, nil
}

func (l *Limiter) currentCount(ctx context.Context, key string) (int64, error) {
	raw, err := l.store.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	count, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, kv.ErrUnavailable
	}
	return count, nil
}

// openWindow creates the counter for the first hit of a window. If a
// concurrent request created it first, fall back to an increment; the TTL
// was set by whichever request won the race.
func (l *Limiter) openWindow(ctx context.Context, key string, quota int64, window time.Duration) (Decision, error) {
	created, err := l.store.SetNX(ctx, key, "1", window)
	if err != nil {
		return Decision{Allowed: true}, err
	}
	if created {
		return Decision{Allowed: true, Count: 1, Remaining: quota - 1}, nil
	}

	count, err := l.incrAndArm(ctx, key, window)
	if err != nil {
		return Decision{Allowed: true}, err
	}
	return Decision{Allowed: true, Count: count, Remaining: remaining(quota, count)}, nil
}

// deny builds a throttled decision with a best-effort retry hint. A failed
// TTL read drops the hint rather than failing the request.
func (l *Limiter) deny(ctx context.Context, key string, current int64) Decision {
	decision := Decision{Count: current}
	if ttl, err := l.store.TTL(ctx, key); err == nil && ttl > 0 {
		decision.RetryAfter = ttl
	}
	return decision
}

func remaining(quota, count int64) int64 {
	if count >= quota {
		return 0
	}
	return quota - count
}
