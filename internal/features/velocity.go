package features

import (
	"context"
	"sync"
	"time"
)

// MemoryTracker keeps attempt and device history in process memory. It is
// used when no redis is configured; history is lost on restart.
type MemoryTracker struct {
	mu       sync.Mutex
	attempts map[string]time.Time
	devices  map[string]string
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{
		attempts: make(map[string]time.Time),
		devices:  make(map[string]string),
	}
}

func (m *MemoryTracker) RecordAttempt(_ context.Context, guestID string, at time.Time, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	last, seen := m.attempts[guestID]
	if !seen || at.After(last) {
		m.attempts[guestID] = at
	}
	if !seen {
		return false, nil
	}
	return WithinWindow(last, at, window), nil
}

func (m *MemoryTracker) SwapDevice(_ context.Context, guestID, deviceID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, seen := m.devices[guestID]
	m.devices[guestID] = deviceID
	return seen && prev != deviceID, nil
}

// Len returns the number of guests with recorded attempts.
func (m *MemoryTracker) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.attempts)
}

// WithinWindow reports whether at is less than window away from last. Attempts
// arriving out of order count as rapid.
func WithinWindow(last, at time.Time, window time.Duration) bool {
	d := at.Sub(last)
	if d < 0 {
		d = -d
	}
	return d < window
}
