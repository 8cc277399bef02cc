package kv

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClockedMemory() (*Memory, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	return NewMemoryWithClock(clock.Now), clock
}

func TestMemoryExpiry(t *testing.T) {
	store, clock := newClockedMemory()
	ctx := context.Background()

	if err := store.Set(ctx, "a", "1", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	if _, err := store.Get(ctx, "a"); err != nil {
		t.Fatalf("get before expiry: %v", err)
	}

	clock.Advance(61 * time.Second)

	if _, err := store.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired key should be not found, got %v", err)
	}
	if ok, _ := store.Exists(ctx, "a"); ok {
		t.Fatal("expired key should not exist")
	}
}

func TestMemorySetNX(t *testing.T) {
	store, clock := newClockedMemory()
	ctx := context.Background()

	created, err := store.SetNX(ctx, "a", "1", time.Minute)
	if err != nil || !created {
		t.Fatalf("first SetNX: created=%v err=%v", created, err)
	}

	created, err = store.SetNX(ctx, "a", "2", time.Minute)
	if err != nil || created {
		t.Fatalf("second SetNX must lose: created=%v err=%v", created, err)
	}

	// An expired key is as good as absent.
	clock.Advance(2 * time.Minute)
	created, err = store.SetNX(ctx, "a", "3", time.Minute)
	if err != nil || !created {
		t.Fatalf("SetNX over expired key: created=%v err=%v", created, err)
	}
}

func TestMemoryIncr(t *testing.T) {
	store, _ := newClockedMemory()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := store.Incr(ctx, "n")
		if err != nil {
			t.Fatalf("incr: %v", err)
		}
		if got != want {
			t.Fatalf("incr = %d, want %d", got, want)
		}
	}
}

func TestMemoryTTL(t *testing.T) {
	store, clock := newClockedMemory()
	ctx := context.Background()

	if err := store.Set(ctx, "a", "1", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	ttl, err := store.TTL(ctx, "a")
	if err != nil || ttl != time.Minute {
		t.Fatalf("ttl = %v, err %v", ttl, err)
	}

	clock.Advance(30 * time.Second)
	ttl, err = store.TTL(ctx, "a")
	if err != nil || ttl != 30*time.Second {
		t.Fatalf("ttl after advance = %v, err %v", ttl, err)
	}

	if _, err := store.TTL(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ttl of missing key: %v", err)
	}
}

func TestMemoryExpire(t *testing.T) {
	store, clock := newClockedMemory()
	ctx := context.Background()

	// Incr creates the key without an expiry; Expire arms one.
	if _, err := store.Incr(ctx, "n"); err != nil {
		t.Fatalf("incr: %v", err)
	}
	if ttl, err := store.TTL(ctx, "n"); err != nil || ttl != 0 {
		t.Fatalf("fresh counter should carry no expiry, got ttl=%v err=%v", ttl, err)
	}

	if err := store.Expire(ctx, "n", time.Minute); err != nil {
		t.Fatalf("expire: %v", err)
	}
	if ttl, err := store.TTL(ctx, "n"); err != nil || ttl != time.Minute {
		t.Fatalf("ttl after expire = %v, err %v", ttl, err)
	}

	clock.Advance(2 * time.Minute)
	if _, err := store.Get(ctx, "n"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("key should have expired, got %v", err)
	}

	// Missing keys are a no-op, not an error.
	if err := store.Expire(ctx, "missing", time.Minute); err != nil {
		t.Fatalf("expire on missing key: %v", err)
	}
}

func TestMemoryReconcileIdempotent(t *testing.T) {
	store, clock := newClockedMemory()
	ctx := context.Background()

	_ = store.Set(ctx, "live", "1", time.Hour)
	_ = store.Set(ctx, "dead1", "1", time.Minute)
	_ = store.Set(ctx, "dead2", "1", time.Minute)

	clock.Advance(2 * time.Minute)

	evicted, err := store.Reconcile(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if evicted != 2 {
		t.Fatalf("evicted = %d, want 2", evicted)
	}
	if store.Len() != 1 {
		t.Fatalf("entries after reconcile = %d, want 1", store.Len())
	}

	// Second run sees nothing to do and changes nothing.
	evicted, err = store.Reconcile(ctx)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if evicted != 0 || store.Len() != 1 {
		t.Fatalf("second reconcile changed state: evicted=%d len=%d", evicted, store.Len())
	}
}
