package gatecred

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Audit event types emitted by the engine.
const (
	AuditTrafficThrottled = "traffic.throttled"
	AuditLoginThrottled   = "login.throttled"
	AuditLoginFailed      = "login.failure_recorded"
	AuditTokensCached     = "tokens.cached"
	AuditTokenBlacklisted = "token.blacklisted"
	AuditBlacklistHit     = "token.blacklist_hit"
	AuditLogout           = "logout"
	AuditReconcile        = "reconcile.completed"
)

// AuditEvent is one security-relevant occurrence in the credential
// lifecycle. Token values never appear in events; tokens are identified by
// their owning user where one is known.
type AuditEvent struct {
	EventID   string            `json:"event_id"`
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Key       string            `json:"key,omitempty"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives events from the dispatcher. Emit must not block
// indefinitely; the dispatcher calls it from a single goroutine.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards all events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink delivers events to a channel, mainly for tests.
type ChannelSink struct {
	events chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan AuditEvent, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per event to an io.Writer.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

func (s *JSONWriterSink) Emit(_ context.Context, event AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = json.NewEncoder(s.writer).Encode(event)
}
