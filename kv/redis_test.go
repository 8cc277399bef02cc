package kv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewRedis(rdb), mr
}

func TestRedisRoundTrip(t *testing.T) {
	store, _ := newTestRedis(t)
	ctx := context.Background()

	if _, err := store.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing key: %v", err)
	}

	if err := store.Set(ctx, "a", "v", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := store.Get(ctx, "a")
	if err != nil || got != "v" {
		t.Fatalf("get = %q, err %v", got, err)
	}

	if err := store.Del(ctx, "a"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if ok, _ := store.Exists(ctx, "a"); ok {
		t.Fatal("deleted key should not exist")
	}
}

func TestRedisSetNXAndIncr(t *testing.T) {
	store, _ := newTestRedis(t)
	ctx := context.Background()

	created, err := store.SetNX(ctx, "n", "1", time.Minute)
	if err != nil || !created {
		t.Fatalf("first SetNX: created=%v err=%v", created, err)
	}
	created, err = store.SetNX(ctx, "n", "9", time.Minute)
	if err != nil || created {
		t.Fatalf("second SetNX must lose: created=%v err=%v", created, err)
	}

	count, err := store.Incr(ctx, "n")
	if err != nil || count != 2 {
		t.Fatalf("incr = %d, err %v", count, err)
	}
}

func TestRedisTTLSentinels(t *testing.T) {
	store, _ := newTestRedis(t)
	ctx := context.Background()

	if _, err := store.TTL(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing key TTL: %v", err)
	}

	if err := store.Set(ctx, "forever", "v", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	ttl, err := store.TTL(ctx, "forever")
	if err != nil || ttl != 0 {
		t.Fatalf("persistent key TTL = %v, err %v", ttl, err)
	}

	if err := store.Set(ctx, "bounded", "v", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	ttl, err = store.TTL(ctx, "bounded")
	if err != nil || ttl <= 0 || ttl > time.Minute {
		t.Fatalf("bounded key TTL = %v, err %v", ttl, err)
	}
}

func TestRedisReconcileIsNoOp(t *testing.T) {
	store, mr := newTestRedis(t)
	ctx := context.Background()

	_ = store.Set(ctx, "a", "v", time.Minute)
	mr.FastForward(2 * time.Minute)

	evicted, err := store.Reconcile(ctx)
	if err != nil || evicted != 0 {
		t.Fatalf("reconcile = %d, err %v", evicted, err)
	}
}

func TestRedisUnavailable(t *testing.T) {
	store, mr := newTestRedis(t)
	ctx := context.Background()

	mr.Close()

	if _, err := store.Get(ctx, "a"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
	if _, err := store.Incr(ctx, "a"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
}
