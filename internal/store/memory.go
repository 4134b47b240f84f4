package store

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	count     int64
	expiresAt time.Time
}

// Memory is an in-process Store for single-instance deployments and tests.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

// NewMemory creates an in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

// NewMemoryWithClock creates an in-memory store with a custom clock, for
// tests that advance time without sleeping.
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{
		entries: make(map[string]*memoryEntry),
		now:     now,
	}
}

func (m *Memory) live(key string) *memoryEntry {
	e, ok := m.entries[key]
	if !ok {
		return nil
	}
	if m.now().After(e.expiresAt) {
		delete(m.entries, key)
		return nil
	}
	return e
}

func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.live(key)
	if e == nil {
		return "", ErrNotFound
	}
	return e.value, nil
}

func (m *Memory) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = &memoryEntry{
		value:     value,
		expiresAt: m.now().Add(ttl),
	}
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

func (m *Memory) Take(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.live(key)
	if e == nil {
		return "", ErrNotFound
	}
	delete(m.entries, key)
	return e.value, nil
}

func (m *Memory) Incr(ctx context.Context, key string, ttl time.Duration) (int64, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.live(key)
	if e == nil {
		e = &memoryEntry{expiresAt: m.now().Add(ttl)}
		m.entries[key] = e
	}
	e.count++
	return e.count, e.expiresAt, nil
}

var _ Store = (*Memory)(nil)
