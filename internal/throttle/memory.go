package throttle

import (
	"context"
	"sync"
	"time"

	"github.com/good-yellow-bee/beacon/internal/clock"
	"github.com/good-yellow-bee/beacon/internal/metrics"
)

// MemoryBackend keeps throttle entries in a process-local map.
type MemoryBackend struct {
	mu      sync.Mutex
	clock   clock.Clock
	expires map[string]time.Time
}

// NewMemoryBackend creates an in-memory backend.
func NewMemoryBackend(clk clock.Clock) *MemoryBackend {
	if clk == nil {
		clk = clock.Real{}
	}
	return &MemoryBackend{
		clock:   clk,
		expires: make(map[string]time.Time),
	}
}

// Name implements Backend.
func (m *MemoryBackend) Name() string { return "memory" }

// Acquire implements Backend.
func (m *MemoryBackend) Acquire(_ context.Context, key string, window time.Duration) (bool, error) {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if until, ok := m.expires[key]; ok && now.Before(until) {
		return false, nil
	}
	m.expires[key] = now.Add(window)
	metrics.ThrottleEntries.Set(float64(len(m.expires)))
	return true, nil
}

// Prune removes entries whose window has elapsed and returns how many were removed.
func (m *MemoryBackend) Prune() int {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, until := range m.expires {
		if !now.Before(until) {
			delete(m.expires, key)
			removed++
		}
	}
	metrics.ThrottleEntries.Set(float64(len(m.expires)))
	return removed
}

// Len returns the number of entries, live or expired.
func (m *MemoryBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.expires)
}
