// Package engine composes rule matching, templating, throttling, storage,
// dispatch and escalation into the alerting entry points used by the rest
// of the application.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/beacon/internal/alerting"
	"github.com/good-yellow-bee/beacon/internal/catalog"
	"github.com/good-yellow-bee/beacon/internal/channels"
	"github.com/good-yellow-bee/beacon/internal/clock"
	"github.com/good-yellow-bee/beacon/internal/dispatch"
	"github.com/good-yellow-bee/beacon/internal/metrics"
	"github.com/good-yellow-bee/beacon/internal/models"
	"github.com/good-yellow-bee/beacon/internal/notifier"
	"github.com/good-yellow-bee/beacon/internal/storage"
	"github.com/good-yellow-bee/beacon/internal/throttle"
)

var (
	// ErrUnknownEventType is returned when no template exists for an event type.
	ErrUnknownEventType = errors.New("unknown event type")
	// ErrSuppressed is returned when a raise is dropped by the throttle.
	ErrSuppressed = errors.New("alert suppressed by throttle")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("engine closed")
)

// DefaultJanitorInterval is how often expired throttle entries are pruned.
const DefaultJanitorInterval = 5 * time.Minute

// Deps are the collaborators an Engine is built from.
type Deps struct {
	Catalog  *catalog.Catalog
	Registry *channels.Registry
	Senders  *notifier.Senders
	Rules    *alerting.Engine
	Store    storage.AlertStore
	// Throttle records raises. Nil uses an in-memory backend.
	Throttle throttle.Backend
	Clock    clock.Clock
	Logger   *zap.Logger
}

// Config tunes the engine.
type Config struct {
	Dispatch   dispatch.Options
	Retry      dispatch.RetryConfig
	Escalation EscalationConfig
	// JanitorInterval controls throttle pruning for backends that support
	// it. 0 uses DefaultJanitorInterval; negative disables pruning.
	JanitorInterval time.Duration
}

// RaiseOptions override template defaults for a single raise.
type RaiseOptions struct {
	// Priority replaces the template priority when set.
	Priority models.Priority
	// Channels replaces the template channels when non-empty. Entries may
	// name channels or channel kinds.
	Channels []string
	// Message replaces the template body when set. It is rendered against
	// the data bag like the template body.
	Message string
	Source  models.Source
	// EscalationDelay replaces the template escalation delay when positive.
	EscalationDelay time.Duration
	// RenderData is merged over data for rendering and storage but is left
	// out of the throttle fingerprint. Volatile values such as event
	// timestamps belong here.
	RenderData map[string]any
}

// CustomAlert is an ad-hoc alert raised without a dedicated template.
type CustomAlert struct {
	Title    string          `json:"title"`
	Body     string          `json:"body"`
	Priority models.Priority `json:"priority,omitempty"`
	Channels []string        `json:"channels,omitempty"`
	Data     map[string]any  `json:"data,omitempty"`
}

// pruner is implemented by throttle backends holding local state.
type pruner interface {
	Prune() int
}

// Engine is the alerting facade. It is safe for concurrent use.
type Engine struct {
	catalog    *catalog.Catalog
	registry   *channels.Registry
	rules      *alerting.Engine
	store      storage.AlertStore
	throttle   *throttle.Controller
	backend    throttle.Backend
	dispatcher *dispatch.Dispatcher
	retries    *dispatch.RetryManager
	escalator  *escalator
	clock      clock.Clock
	logger     *zap.Logger

	// ctx parents deliveries started by timers; cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	janitorInterval time.Duration
	mu              sync.Mutex
	janitor         clock.Timer
	closed          bool
}

// New creates an engine.
func New(deps Deps, cfg Config) (*Engine, error) {
	if deps.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("channel registry is required")
	}
	if deps.Senders == nil {
		deps.Senders = notifier.NewSenders()
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("alert store is required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Throttle == nil {
		deps.Throttle = throttle.NewMemoryBackend(deps.Clock)
	}
	if deps.Rules == nil {
		rules, err := alerting.NewEngine(nil, alerting.EngineOptions{Clock: deps.Clock, Logger: deps.Logger})
		if err != nil {
			return nil, err
		}
		deps.Rules = rules
	}

	escalation, err := cfg.Escalation.withDefaults()
	if err != nil {
		return nil, err
	}

	dispatchOpts := cfg.Dispatch
	dispatchOpts.Store = deps.Store
	dispatchOpts.Clock = deps.Clock
	dispatchOpts.Logger = deps.Logger
	dispatcher := dispatch.NewDispatcher(deps.Registry, deps.Senders, dispatchOpts)

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		catalog:         deps.Catalog,
		registry:        deps.Registry,
		rules:           deps.Rules,
		store:           deps.Store,
		throttle:        throttle.NewController(deps.Catalog, deps.Throttle, deps.Logger.Named("throttle")),
		backend:         deps.Throttle,
		dispatcher:      dispatcher,
		retries:         dispatch.NewRetryManager(dispatcher, deps.Store, cfg.Retry, deps.Clock, deps.Logger),
		clock:           deps.Clock,
		logger:          deps.Logger.Named("engine"),
		ctx:             ctx,
		cancel:          cancel,
		janitorInterval: cfg.JanitorInterval,
	}
	e.escalator = newEscalator(escalation, deps.Clock, e.escalate)

	if e.janitorInterval == 0 {
		e.janitorInterval = DefaultJanitorInterval
	}
	if _, ok := e.backend.(pruner); ok && e.janitorInterval > 0 {
		e.scheduleJanitor()
	}
	return e, nil
}

// Raise creates an alert for eventType from its template and delivers it.
// It returns ErrUnknownEventType when no template exists and ErrSuppressed
// when the throttle drops the raise.
func (e *Engine) Raise(ctx context.Context, eventType string, data map[string]any, opts RaiseOptions) (*models.Alert, error) {
	if e.isClosed() {
		return nil, ErrClosed
	}

	tmpl, ok := e.catalog.Get(eventType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}

	if e.throttle.ShouldSuppress(ctx, eventType, data) {
		metrics.AlertsSuppressedTotal.WithLabelValues(eventType).Inc()
		e.logger.Debug("alert suppressed", zap.String("event_type", eventType))
		return nil, ErrSuppressed
	}

	priority := tmpl.Priority
	if opts.Priority != "" {
		priority = opts.Priority
	}

	bodyTemplate := tmpl.Body
	if opts.Message != "" {
		bodyTemplate = opts.Message
	}

	targets := tmpl.Channels
	if len(opts.Channels) > 0 {
		targets = opts.Channels
	}

	bag := copyData(data)
	if len(opts.RenderData) > 0 {
		if bag == nil {
			bag = make(map[string]any, len(opts.RenderData))
		}
		for k, v := range opts.RenderData {
			bag[k] = v
		}
	}

	alert := &models.Alert{
		EventType: eventType,
		Priority:  priority,
		Title:     catalog.Render(tmpl.Title, bag),
		Body:      catalog.Render(bodyTemplate, bag),
		Data:      bag,
		Source:    opts.Source,
		Channels:  e.registry.Resolve(targets),
	}

	delay := tmpl.EscalationDelay
	if opts.EscalationDelay > 0 {
		delay = opts.EscalationDelay
	}

	return e.createAndDeliver(ctx, alert, delay)
}

// createAndDeliver stores alert, dispatches it and schedules escalation
// when delay is positive. The returned alert includes the first delivery.
func (e *Engine) createAndDeliver(ctx context.Context, alert *models.Alert, escalationDelay time.Duration) (*models.Alert, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate alert id: %w", err)
	}
	alert.ID = id.String()
	alert.CreatedAt = e.clock.Now()

	if err := e.store.Create(alert); err != nil {
		return nil, fmt.Errorf("failed to store alert: %w", err)
	}
	metrics.AlertsRaisedTotal.WithLabelValues(alert.EventType, string(alert.Priority)).Inc()

	e.logger.Info("alert raised",
		zap.String("alert_id", alert.ID),
		zap.String("event_type", alert.EventType),
		zap.String("priority", string(alert.Priority)),
		zap.Strings("channels", alert.Channels),
	)

	// Deliveries outlive the caller's request.
	report := e.retries.Deliver(context.WithoutCancel(ctx), alert)

	if escalationDelay > 0 && alert.EscalatedFrom == "" {
		e.escalator.schedule(alert.Clone(), escalationDelay)
	}

	stored, ok := e.store.Get(alert.ID)
	if !ok {
		// Evicted by capacity before we read it back.
		alert.Deliveries = append(alert.Deliveries, report.DeliveryAttempt)
		return alert, nil
	}
	return &stored, nil
}

// SendCustomAlert raises an ad-hoc alert through the custom template.
func (e *Engine) SendCustomAlert(ctx context.Context, custom CustomAlert) (*models.Alert, error) {
	if custom.Title == "" {
		return nil, fmt.Errorf("custom alert title is required")
	}

	data := copyData(custom.Data)
	if data == nil {
		data = make(map[string]any, 2)
	}
	data["title"] = custom.Title
	data["body"] = custom.Body

	return e.Raise(ctx, catalog.EventCustom, data, RaiseOptions{
		Priority: custom.Priority,
		Channels: custom.Channels,
	})
}

// HandleEvent evaluates event against the rules and raises one alert per
// matching rule. Suppressed raises are skipped. Raise failures are joined
// into the returned error; alerts raised before a failure are still returned.
func (e *Engine) HandleEvent(ctx context.Context, event models.ErrorEvent, eventContext map[string]any) ([]models.Alert, error) {
	if e.isClosed() {
		return nil, ErrClosed
	}
	metrics.EventsReceivedTotal.WithLabelValues(SourceFromContext(ctx)).Inc()

	if event.Timestamp.IsZero() {
		event.Timestamp = e.clock.Now()
	}

	actions := e.rules.EvaluateAt(event, eventContext, e.clock.Now())
	if len(actions) == 0 {
		return nil, nil
	}

	source := models.Source{
		Component: stringValue(eventContext, "component"),
		Function:  stringValue(eventContext, "function"),
		Error:     event.Message,
	}

	var (
		raised []models.Alert
		errs   []error
	)
	for _, action := range actions {
		data := copyData(eventContext)
		if data == nil {
			data = make(map[string]any)
		}
		fields := event.Fields()
		for k, v := range fields {
			data[k] = v
		}
		data["rule"] = action.Rule

		// Every event carries its own timestamp; fingerprinting it would
		// defeat throttling of repeated errors.
		var renderOnly map[string]any
		if ts, ok := data["timestamp"]; ok {
			delete(data, "timestamp")
			renderOnly = map[string]any{"timestamp": ts}
		}

		alert, err := e.Raise(ctx, action.EventType, data, RaiseOptions{
			Priority:        action.Priority,
			Channels:        action.Channels,
			Message:         action.Message,
			Source:          source,
			EscalationDelay: action.EscalationDelay,
			RenderData:      renderOnly,
		})
		switch {
		case errors.Is(err, ErrSuppressed):
			continue
		case err != nil:
			errs = append(errs, fmt.Errorf("rule %q: %w", action.Rule, err))
			continue
		}
		raised = append(raised, *alert)
	}
	return raised, errors.Join(errs...)
}

// Acknowledge stamps the alert as seen. Returns false if the id is unknown.
func (e *Engine) Acknowledge(id, actor, note string) bool {
	if !e.store.Acknowledge(id, actor, note) {
		return false
	}
	metrics.AlertTransitionsTotal.WithLabelValues("acknowledge").Inc()
	e.logger.Info("alert acknowledged", zap.String("alert_id", id), zap.String("actor", actor))
	return true
}

// Resolve stamps the alert as resolved. It does not require a prior
// acknowledgement. Returns false if the id is unknown.
func (e *Engine) Resolve(id, actor, solution string) bool {
	if !e.store.Resolve(id, actor, solution) {
		return false
	}
	metrics.AlertTransitionsTotal.WithLabelValues("resolve").Inc()
	e.logger.Info("alert resolved", zap.String("alert_id", id), zap.String("actor", actor))
	return true
}

// List returns matching alerts newest first and the total before paging.
func (e *Engine) List(filter storage.Filter, page storage.Page) ([]models.Alert, int) {
	return e.store.List(filter, page)
}

// Get returns an alert by id.
func (e *Engine) Get(id string) (models.Alert, bool) {
	return e.store.Get(id)
}

// Health summarizes engine state for operators.
type Health struct {
	Status             string                   `json:"status"`
	Channels           []dispatch.ChannelHealth `json:"channels"`
	Alerts             int                      `json:"alerts"`
	Rules              int                      `json:"rules"`
	PendingRetries     int                      `json:"pending_retries"`
	PendingEscalations int                      `json:"pending_escalations"`
	ThrottleBackend    string                   `json:"throttle_backend"`
}

// HealthCheck probes every channel. Status is "degraded" when an enabled
// channel reports an error.
func (e *Engine) HealthCheck(ctx context.Context) Health {
	h := Health{
		Status:             "healthy",
		Channels:           e.dispatcher.Health(ctx),
		Alerts:             e.store.Len(),
		Rules:              len(e.rules.Rules()),
		PendingRetries:     e.retries.Pending(),
		PendingEscalations: e.escalator.pending(),
		ThrottleBackend:    e.backend.Name(),
	}
	for _, ch := range h.Channels {
		if ch.Status == dispatch.HealthError {
			h.Status = "degraded"
			break
		}
	}
	return h
}

// Rules returns the rule engine, for reloads.
func (e *Engine) Rules() *alerting.Engine {
	return e.rules
}

// Registry returns the channel registry, for reloads.
func (e *Engine) Registry() *channels.Registry {
	return e.registry
}

// Close stops pending retries, escalations and the janitor. Alerts already
// stored remain readable.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	if e.janitor != nil {
		e.janitor.Stop()
	}
	e.mu.Unlock()

	e.escalator.close()
	e.retries.Close()
	e.cancel()
	return nil
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Engine) scheduleJanitor() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.janitor = e.clock.AfterFunc(e.janitorInterval, func() {
		if removed := e.backend.(pruner).Prune(); removed > 0 {
			e.logger.Debug("pruned throttle entries", zap.Int("removed", removed))
		}
		e.scheduleJanitor()
	})
}

func copyData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

func stringValue(m map[string]any, key string) string {
	if v, ok := m[key]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}
