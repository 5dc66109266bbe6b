package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/beacon/internal/clock"
	"github.com/good-yellow-bee/beacon/internal/metrics"
	"github.com/good-yellow-bee/beacon/internal/models"
	"github.com/good-yellow-bee/beacon/internal/storage"
)

// Scope selects which channels a retry re-sends to.
type Scope string

const (
	// ScopeFanout re-dispatches every channel on the alert.
	ScopeFanout Scope = "fanout"
	// ScopeChannel re-sends only the channels that failed.
	ScopeChannel Scope = "channel"
)

// ParseScope converts a config value to Scope. Empty means ScopeFanout.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case "", ScopeFanout:
		return ScopeFanout, nil
	case ScopeChannel:
		return ScopeChannel, nil
	default:
		return "", fmt.Errorf("invalid retry scope %q (want fanout or channel)", s)
	}
}

// Retry defaults.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 60 * time.Second
)

// RetryConfig configures a RetryManager.
type RetryConfig struct {
	// MaxRetries caps retries per alert. 0 uses DefaultMaxRetries.
	MaxRetries int
	// BaseDelay is multiplied by the retry number. 0 uses DefaultBaseDelay.
	BaseDelay time.Duration
	Scope     Scope
}

// RetryManager delivers alerts and schedules delayed re-dispatch when a
// channel fails. The n-th retry waits BaseDelay*n. Pending retries live in
// memory only and are not cancelled by acknowledge or resolve.
type RetryManager struct {
	dispatcher *Dispatcher
	store      storage.AlertStore
	config     RetryConfig
	clock      clock.Clock
	logger     *zap.Logger

	// ctx is the parent of re-dispatch sends; cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	nextID int
	timers map[int]clock.Timer
	closed bool
}

// NewRetryManager creates a retry manager. The store holds the retry
// counters and supplies the alert when a retry fires.
func NewRetryManager(dispatcher *Dispatcher, store storage.AlertStore, config RetryConfig, clk clock.Clock, logger *zap.Logger) *RetryManager {
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultMaxRetries
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = DefaultBaseDelay
	}
	if config.Scope == "" {
		config.Scope = ScopeFanout
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &RetryManager{
		dispatcher: dispatcher,
		store:      store,
		config:     config,
		clock:      clk,
		logger:     logger.Named("retry"),
		ctx:        ctx,
		cancel:     cancel,
		timers:     make(map[int]clock.Timer),
	}
}

// Deliver dispatches alert and schedules one retry if any channel failed.
func (m *RetryManager) Deliver(ctx context.Context, alert *models.Alert) Report {
	report := m.dispatcher.Dispatch(ctx, alert)
	if failed := report.Failed(); len(failed) > 0 {
		m.schedule(alert.ID, failed)
	}
	return report
}

func (m *RetryManager) schedule(id string, failed []string) {
	current, ok := m.store.Get(id)
	if !ok {
		m.logger.Debug("alert gone, not retrying", zap.String("alert_id", id))
		return
	}
	if current.RetryCount >= m.config.MaxRetries {
		metrics.RetriesExhaustedTotal.Inc()
		m.logger.Warn("retries exhausted",
			zap.String("alert_id", id),
			zap.Int("retries", current.RetryCount),
			zap.Strings("failed", failed),
		)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	count, ok := m.store.RecordRetry(id, m.clock.Now())
	if !ok {
		return
	}
	delay := m.config.BaseDelay * time.Duration(count)

	timerID := m.nextID
	m.nextID++
	m.timers[timerID] = m.clock.AfterFunc(delay, func() {
		m.mu.Lock()
		delete(m.timers, timerID)
		closed := m.closed
		m.mu.Unlock()
		if !closed {
			m.retry(id, failed)
		}
	})

	metrics.RetriesScheduledTotal.Inc()
	m.logger.Info("retry scheduled",
		zap.String("alert_id", id),
		zap.Int("retry", count),
		zap.Duration("delay", delay),
		zap.Strings("failed", failed),
	)
}

func (m *RetryManager) retry(id string, failed []string) {
	alert, ok := m.store.Get(id)
	if !ok {
		return
	}
	if m.config.Scope == ScopeChannel {
		alert.Channels = failed
	}
	m.Deliver(m.ctx, &alert)
}

// Pending returns the number of scheduled retries.
func (m *RetryManager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Close stops pending retries. Used at process shutdown.
func (m *RetryManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
	m.cancel()
}
