// Package ratelimit enforces per-identity admission limits for the gateway.
// Counting is fixed-window over three horizons (minute, hour, day) plus an
// independent cooldown that starts when a session ends.
//
// Two store backends: an in-memory store for single-instance deployments and
// a Redis store so several gateway instances share one view of a visitor.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// BucketStore is the counting backend. All methods key on the visitor's
// identity token, never a raw address.
type BucketStore interface {
	// Counts returns the admission counts in the current minute, hour, and
	// day windows.
	Counts(ctx context.Context, token string) (minute, hour, day int64, err error)
	// Incr records one admission in all three windows.
	Incr(ctx context.Context, token string) error
	// StartCooldown begins (or extends) a cooldown for the token.
	StartCooldown(ctx context.Context, token string, d time.Duration) error
	// Cooldown returns the remaining cooldown, or zero when none is active.
	Cooldown(ctx context.Context, token string) (time.Duration, error)
}

type memoryEntry struct {
	minuteCount int64
	minuteStart time.Time
	hourCount   int64
	hourStart   time.Time
	dayCount    int64
	dayStart    time.Time
	cooldownEnd time.Time
}

// MemoryStore is the in-process BucketStore. Fixed windows: a counter resets
// when its window start is older than the window length, not on a sliding
// horizon.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

// SetClock overrides the time source for tests.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// roll resets any window whose start has aged out. Caller holds the lock.
func (m *MemoryStore) roll(e *memoryEntry, now time.Time) {
	if now.Sub(e.minuteStart) >= time.Minute {
		e.minuteCount = 0
		e.minuteStart = now
	}
	if now.Sub(e.hourStart) >= time.Hour {
		e.hourCount = 0
		e.hourStart = now
	}
	if now.Sub(e.dayStart) >= 24*time.Hour {
		e.dayCount = 0
		e.dayStart = now
	}
}

func (m *MemoryStore) entry(token string, now time.Time) *memoryEntry {
	e, ok := m.entries[token]
	if !ok {
		e = &memoryEntry{minuteStart: now, hourStart: now, dayStart: now}
		m.entries[token] = e
	}
	m.roll(e, now)
	return e
}

// Counts implements BucketStore.
func (m *MemoryStore) Counts(_ context.Context, token string) (int64, int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entry(token, m.now())
	return e.minuteCount, e.hourCount, e.dayCount, nil
}

// Incr implements BucketStore.
func (m *MemoryStore) Incr(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entry(token, m.now())
	e.minuteCount++
	e.hourCount++
	e.dayCount++
	return nil
}

// StartCooldown implements BucketStore.
func (m *MemoryStore) StartCooldown(_ context.Context, token string, d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entry(token, m.now())
	end := m.now().Add(d)
	if end.After(e.cooldownEnd) {
		e.cooldownEnd = end
	}
	return nil
}

// Cooldown implements BucketStore.
func (m *MemoryStore) Cooldown(_ context.Context, token string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entry(token, m.now())
	remaining := e.cooldownEnd.Sub(m.now())
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
