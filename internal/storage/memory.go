package storage

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/good-yellow-bee/beacon/internal/clock"
	"github.com/good-yellow-bee/beacon/internal/metrics"
	"github.com/good-yellow-bee/beacon/internal/models"
)

// MemoryStore is an in-memory AlertStore. Alerts live until the process
// exits unless a capacity is set, in which case the oldest are evicted.
type MemoryStore struct {
	mu        sync.RWMutex
	clock     clock.Clock
	maxAlerts int
	alerts    map[string]*models.Alert
	// order[head:] holds live ids in insertion order for eviction.
	order []string
	head  int
}

// MemoryOptions configures a MemoryStore.
type MemoryOptions struct {
	// Clock stamps acknowledgements and resolutions. Nil uses the system clock.
	Clock clock.Clock
	// MaxAlerts bounds the store. 0 keeps every alert.
	MaxAlerts int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts MemoryOptions) *MemoryStore {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	return &MemoryStore{
		clock:     opts.Clock,
		maxAlerts: opts.MaxAlerts,
		alerts:    make(map[string]*models.Alert),
	}
}

// Create implements AlertStore.
func (s *MemoryStore) Create(alert *models.Alert) error {
	if alert.ID == "" {
		return ErrEmptyID
	}

	stored := alert.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.alerts[alert.ID]; exists {
		return fmt.Errorf("create alert %s: %w", alert.ID, ErrDuplicateID)
	}
	s.alerts[alert.ID] = &stored
	s.order = append(s.order, alert.ID)

	if s.maxAlerts > 0 {
		for len(s.order)-s.head > s.maxAlerts {
			delete(s.alerts, s.order[s.head])
			s.order[s.head] = ""
			s.head++
		}
		s.compactOrder()
	}
	metrics.AlertsStored.Set(float64(len(s.alerts)))
	return nil
}

// compactOrder moves the live ids into a fresh slice once evicted slots make
// up more than half of the backing array.
func (s *MemoryStore) compactOrder() {
	live := len(s.order) - s.head
	if cap(s.order) <= 2*live {
		return
	}
	order := make([]string, live, live+live/2+1)
	copy(order, s.order[s.head:])
	s.order = order
	s.head = 0
}

// Get implements AlertStore.
func (s *MemoryStore) Get(id string) (models.Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alert, ok := s.alerts[id]
	if !ok {
		return models.Alert{}, false
	}
	return alert.Clone(), true
}

// List implements AlertStore.
func (s *MemoryStore) List(filter Filter, page Page) ([]models.Alert, int) {
	s.mu.RLock()
	matched := make([]*models.Alert, 0, len(s.alerts))
	for _, alert := range s.alerts {
		if filter.Matches(alert) {
			matched = append(matched, alert)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	total := len(matched)
	start := page.Offset
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := total
	if page.Limit > 0 && start+page.Limit < total {
		end = start + page.Limit
	}

	items := make([]models.Alert, 0, end-start)
	for _, alert := range matched[start:end] {
		items = append(items, alert.Clone())
	}
	s.mu.RUnlock()

	return items, total
}

// Acknowledge implements AlertStore. A later call replaces an earlier stamp.
func (s *MemoryStore) Acknowledge(id, actor, note string) bool {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.alerts[id]
	if !ok {
		return false
	}
	alert.Acknowledgement = &models.Acknowledgement{At: now, By: actor, Note: note}
	return true
}

// Resolve implements AlertStore. Resolution does not require a prior acknowledgement.
func (s *MemoryStore) Resolve(id, actor, solution string) bool {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.alerts[id]
	if !ok {
		return false
	}
	alert.Resolution = &models.Resolution{At: now, By: actor, Solution: solution}
	return true
}

// RecordRetry implements AlertStore.
func (s *MemoryStore) RecordRetry(id string, at time.Time) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.alerts[id]
	if !ok {
		return 0, false
	}
	alert.RetryCount++
	alert.LastRetryAt = at
	return alert.RetryCount, true
}

// RecordDelivery implements AlertStore.
func (s *MemoryStore) RecordDelivery(id string, attempt models.DeliveryAttempt) bool {
	attempt.Results = append([]models.ChannelResult(nil), attempt.Results...)

	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.alerts[id]
	if !ok {
		return false
	}
	alert.Deliveries = append(alert.Deliveries, attempt)
	return true
}

// Len implements AlertStore.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.alerts)
}
