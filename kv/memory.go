package kv

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero = no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Memory is an in-process Store without native TTL reclamation. Entries past
// their expiry are invisible to reads but occupy memory until Reconcile runs,
// which makes it the one backend where ReconcileExpired has observable work
// to do. Intended for tests and single-process fallback deployments.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store using the wall clock.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// NewMemoryWithClock returns an in-memory store with an injected clock.
func NewMemoryWithClock(now func() time.Time) *Memory {
	m := NewMemory()
	if now != nil {
		m.now = now
	}
	return m
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok || entry.expired(m.now()) {
		return "", ErrNotFound
	}
	return entry.value, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry{value: value, expiresAt: m.deadline(ttl)}
	return nil
}

func (m *Memory) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.entries[key]; ok && !entry.expired(m.now()) {
		return false, nil
	}
	m.entries[key] = memoryEntry{value: value, expiresAt: m.deadline(ttl)}
	return true, nil
}

func (m *Memory) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok || entry.expired(m.now()) {
		m.entries[key] = memoryEntry{value: "1"}
		return 1, nil
	}

	count, err := strconv.ParseInt(entry.value, 10, 64)
	if err != nil {
		return 0, ErrUnavailable
	}
	count++
	entry.value = strconv.FormatInt(count, 10)
	m.entries[key] = entry
	return count, nil
}

func (m *Memory) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		delete(m.entries, key)
	}
	return nil
}

func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok || entry.expired(m.now()) {
		return nil
	}
	entry.expiresAt = m.deadline(ttl)
	m.entries[key] = entry
	return nil
}

func (m *Memory) TTL(_ context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	entry, ok := m.entries[key]
	if !ok || entry.expired(now) {
		return 0, ErrNotFound
	}
	if entry.expiresAt.IsZero() {
		return 0, nil
	}
	return entry.expiresAt.Sub(now), nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	return ok && !entry.expired(m.now()), nil
}

// Reconcile drops every entry whose expiry has passed. Running it twice in a
// row is a no-op the second time.
func (m *Memory) Reconcile(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	evicted := 0
	for key, entry := range m.entries {
		if entry.expired(now) {
			delete(m.entries, key)
			evicted++
		}
	}
	return evicted, nil
}

func (m *Memory) Close() error {
	return nil
}

// Len reports the number of entries currently held, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}
