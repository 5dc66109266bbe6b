package engine

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/beacon/internal/clock"
	"github.com/good-yellow-bee/beacon/internal/metrics"
	"github.com/good-yellow-bee/beacon/internal/models"
)

// Policy decides whether a due escalation still fires.
type Policy string

const (
	// PolicyAlways escalates regardless of the original alert's state.
	PolicyAlways Policy = "always"
	// PolicyUnacknowledged skips alerts that were acknowledged or resolved.
	PolicyUnacknowledged Policy = "unacknowledged"
	// PolicyUnresolved skips alerts that were resolved.
	PolicyUnresolved Policy = "unresolved"
)

// ParsePolicy converts a config value to Policy. Empty means PolicyAlways.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyAlways:
		return PolicyAlways, nil
	case PolicyUnacknowledged:
		return PolicyUnacknowledged, nil
	case PolicyUnresolved:
		return PolicyUnresolved, nil
	default:
		return "", fmt.Errorf("invalid escalation policy %q", s)
	}
}

// EscalatedPrefix is prepended to the title of escalated alerts.
const EscalatedPrefix = "[ESCALATED] "

// DefaultUrgentChannels receive escalated alerts when none are configured.
var DefaultUrgentChannels = []string{"sms", "email"}

// EscalationConfig configures escalation.
type EscalationConfig struct {
	Policy Policy
	// UrgentChannels are channel names or kinds that carry escalations.
	UrgentChannels []string
}

func (c EscalationConfig) withDefaults() (EscalationConfig, error) {
	policy, err := ParsePolicy(string(c.Policy))
	if err != nil {
		return c, err
	}
	c.Policy = policy
	if len(c.UrgentChannels) == 0 {
		c.UrgentChannels = append([]string(nil), DefaultUrgentChannels...)
	}
	return c, nil
}

// escalator holds one-shot escalation timers.
type escalator struct {
	config EscalationConfig
	clock  clock.Clock
	fire   func(original models.Alert)

	mu     sync.Mutex
	nextID int
	timers map[int]clock.Timer
	closed bool
}

func newEscalator(config EscalationConfig, clk clock.Clock, fire func(models.Alert)) *escalator {
	return &escalator{
		config: config,
		clock:  clk,
		fire:   fire,
		timers: make(map[int]clock.Timer),
	}
}

func (s *escalator) schedule(original models.Alert, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	id := s.nextID
	s.nextID++
	s.timers[id] = s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, id)
		closed := s.closed
		s.mu.Unlock()
		if !closed {
			s.fire(original)
		}
	})
}

func (s *escalator) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *escalator) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

// escalate re-raises original at critical through the urgent channels.
// The original is the snapshot taken at raise time; its current state is
// read from the store for the policy check.
func (e *Engine) escalate(original models.Alert) {
	policy := e.escalator.config.Policy
	if current, ok := e.store.Get(original.ID); ok {
		switch {
		case policy == PolicyUnresolved && current.IsResolved(),
			policy == PolicyUnacknowledged && current.IsResolved():
			e.skipEscalation(original, "resolved")
			return
		case policy == PolicyUnacknowledged && current.IsAcknowledged():
			e.skipEscalation(original, "acknowledged")
			return
		}
	}

	data := copyData(original.Data)
	if data == nil {
		data = make(map[string]any)
	}
	data["escalated_from"] = original.ID
	if code, ok := original.Data["code"]; ok {
		data["original_code"] = code
	}

	alert := &models.Alert{
		EventType:     original.EventType,
		Priority:      models.PriorityCritical,
		Title:         EscalatedPrefix + original.Title,
		Body:          original.Body,
		Data:          data,
		Source:        original.Source,
		Channels:      e.registry.Resolve(e.escalator.config.UrgentChannels),
		EscalatedFrom: original.ID,
	}

	escalated, err := e.createAndDeliver(e.ctx, alert, 0)
	if err != nil {
		metrics.EscalationsTotal.WithLabelValues("failed").Inc()
		e.logger.Error("escalation failed", zap.String("alert_id", original.ID), zap.Error(err))
		return
	}

	metrics.EscalationsTotal.WithLabelValues("fired").Inc()
	e.logger.Warn("alert escalated",
		zap.String("alert_id", original.ID),
		zap.String("escalation_id", escalated.ID),
		zap.Strings("channels", escalated.Channels),
	)
}

func (e *Engine) skipEscalation(original models.Alert, reason string) {
	metrics.EscalationsTotal.WithLabelValues("skipped").Inc()
	e.logger.Info("escalation skipped",
		zap.String("alert_id", original.ID),
		zap.String("reason", reason),
		zap.String("policy", string(e.escalator.config.Policy)),
	)
}
