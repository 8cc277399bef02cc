package gatecred

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Alenazd/gatecred/kv"
	"github.com/Alenazd/gatecred/tokencache"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func (s *countingSink) Count() int64 {
	return s.count.Load()
}

// gateSink blocks the dispatcher goroutine until the gate is opened, which
// lets a test saturate the buffer deterministically.
type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{gate: make(chan struct{})}
}

func (s *gateSink) Emit(context.Context, AuditEvent) {
	<-s.gate
}

func newAuditTestEngine(t *testing.T, audit AuditConfig, sink AuditSink) *Engine {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Reconcile.Enabled = false
	cfg.Audit = audit

	engine, err := New().
		WithConfig(cfg).
		WithStore(kv.NewMemoryWithClock(func() time.Time { return testEpoch })).
		WithIdentityProvider(&fakeIDP{}).
		WithAuditSink(sink).
		WithClock(func() time.Time { return testEpoch }).
		Build()
	require.NoError(t, err)

	return engine
}

func TestAuditEventsReachSink(t *testing.T) {
	sink := NewChannelSink(16)
	engine := newAuditTestEngine(t, AuditConfig{Enabled: true, BufferSize: 16, DropIfFull: true}, sink)
	ctx := context.Background()

	engine.OnLoginSuccess(ctx, "u-1", tokencache.Pair{
		AccessToken:   "a",
		RefreshToken:  "r",
		RefreshExpiry: testEpoch.Add(time.Hour).Unix(),
	})
	engine.Close()

	select {
	case event := <-sink.Events():
		require.Equal(t, AuditTokensCached, event.EventType)
		require.Equal(t, "u-1", event.UserID)
		require.NotEmpty(t, event.EventID)
		require.False(t, event.Timestamp.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("no audit event delivered")
	}
}

func TestAuditLogoutEmitsBlacklistEvents(t *testing.T) {
	sink := NewChannelSink(16)
	engine := newAuditTestEngine(t, AuditConfig{Enabled: true, BufferSize: 16, DropIfFull: true}, sink)

	engine.OnLogout(context.Background(), "u-1", "acc", "ref")
	engine.Close()

	types := make(map[string]int)
	kinds := make(map[string]int)
	for i := 0; i < 3; i++ {
		select {
		case event := <-sink.Events():
			types[event.EventType]++
			if kind, ok := event.Metadata["token_type"]; ok {
				kinds[kind]++
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d audit events delivered", i)
		}
	}

	require.Equal(t, 2, types[AuditTokenBlacklisted])
	require.Equal(t, 1, types[AuditLogout])
	require.Equal(t, 1, kinds["access"])
	require.Equal(t, 1, kinds["refresh"])
}

func TestAuditDropsWhenBufferFull(t *testing.T) {
	sink := newGateSink()
	engine := newAuditTestEngine(t, AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)
	ctx := context.Background()

	// The dispatcher goroutine blocks in the sink on the first event; with a
	// one-slot buffer every emit past the second must be shed.
	for i := 0; i < 10; i++ {
		engine.audit.emit(ctx, AuditEvent{EventType: AuditLogout})
	}

	require.Eventually(t, func() bool {
		return engine.AuditDropped() >= 8
	}, 2*time.Second, 10*time.Millisecond)

	close(sink.gate)
	engine.Close()
}

func TestAuditCloseDrainsBuffer(t *testing.T) {
	sink := &countingSink{}
	engine := newAuditTestEngine(t, AuditConfig{Enabled: true, BufferSize: 32, DropIfFull: true}, sink)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		engine.audit.emit(ctx, AuditEvent{EventType: AuditLogout})
	}
	engine.Close()

	require.Equal(t, int64(20), sink.Count())
	require.Zero(t, engine.AuditDropped())
}

func TestAuditDisabledIsInert(t *testing.T) {
	sink := &countingSink{}
	engine := newAuditTestEngine(t, AuditConfig{Enabled: false}, sink)

	engine.OnLogout(context.Background(), "u-1", "a", "r")
	engine.Close()
	engine.Close() // idempotent

	require.Zero(t, sink.Count())
	require.Zero(t, engine.AuditDropped())
}

func TestAuditEmitAfterClose(t *testing.T) {
	sink := &countingSink{}
	engine := newAuditTestEngine(t, AuditConfig{Enabled: true, BufferSize: 4, DropIfFull: true}, sink)
	engine.Close()

	engine.audit.emit(context.Background(), AuditEvent{EventType: AuditLogout})
	require.Zero(t, engine.AuditDropped())
}
