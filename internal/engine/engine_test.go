package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/beacon/internal/alerting"
	"github.com/good-yellow-bee/beacon/internal/catalog"
	"github.com/good-yellow-bee/beacon/internal/channels"
	"github.com/good-yellow-bee/beacon/internal/clock"
	"github.com/good-yellow-bee/beacon/internal/dispatch"
	"github.com/good-yellow-bee/beacon/internal/models"
	"github.com/good-yellow-bee/beacon/internal/notifier"
	"github.com/good-yellow-bee/beacon/internal/storage"
	"github.com/good-yellow-bee/beacon/internal/throttle"
)

// recordingSender captures delivered alerts per channel.
type recordingSender struct {
	kind models.ChannelKind

	mu    sync.Mutex
	sent  map[string][]models.Alert
	fails map[string]error
}

func newRecordingSender(kind models.ChannelKind) *recordingSender {
	return &recordingSender{kind: kind, sent: make(map[string][]models.Alert), fails: make(map[string]error)}
}

func (r *recordingSender) Kind() models.ChannelKind { return r.kind }

func (r *recordingSender) Send(_ context.Context, alert *models.Alert, ch channels.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent[ch.Name] = append(r.sent[ch.Name], alert.Clone())
	return r.fails[ch.Name]
}

func (r *recordingSender) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent[name])
}

func (r *recordingSender) last(name string) models.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.sent[name]
	return list[len(list)-1]
}

type fixture struct {
	engine *Engine
	clock  *clock.Fake
	store  *storage.MemoryStore
	email  *recordingSender
	sms    *recordingSender
	logs   *recordingSender
}

var testTemplates = []catalog.TemplateConfig{
	{
		EventType: "system.error",
		Priority:  "high",
		Title:     "[System Error] {{code}} in {{component}}",
		Body:      "{{message}}",
		Channels:  []string{"email", "log"},
		Throttle:  "5m",
	},
	{
		EventType:  "billing.quota_exceeded",
		Priority:   "high",
		Title:      "[Quota] {{company}} exceeded {{quota}}",
		Body:       "{{company}} — {{missingKey}}",
		Channels:   []string{"email"},
		Escalation: "1h",
	},
	{
		EventType: "digest",
		Priority:  "medium",
		Title:     "Digest",
		Channels:  []string{"email", "sms", "log"},
	},
	{
		EventType: catalog.EventCustom,
		Title:     "{{title}}",
		Body:      "{{body}}",
		Channels:  []string{"email", "log"},
	},
}

func newFixture(t *testing.T, rules []*alerting.Rule, cfg Config) *fixture {
	t.Helper()

	clk := clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	cat, err := catalog.NewWithoutDefaults(testTemplates)
	require.NoError(t, err)

	reg, err := channels.NewRegistry([]channels.Config{
		{Name: "email", Kind: "email"},
		{Name: "sms", Kind: "sms", Priorities: []string{"critical"}},
		{Name: "log", Kind: "log"},
	})
	require.NoError(t, err)

	ruleEngine, err := alerting.NewEngine(rules, alerting.EngineOptions{Clock: clk})
	require.NoError(t, err)

	f := &fixture{
		clock: clk,
		store: storage.NewMemoryStore(storage.MemoryOptions{Clock: clk}),
		email: newRecordingSender(models.ChannelEmail),
		sms:   newRecordingSender(models.ChannelSMS),
		logs:  newRecordingSender(models.ChannelLog),
	}

	f.engine, err = New(Deps{
		Catalog:  cat,
		Registry: reg,
		Senders:  notifier.NewSenders(f.email, f.sms, f.logs),
		Rules:    ruleEngine,
		Store:    f.store,
		Throttle: throttle.NewMemoryBackend(clk),
		Clock:    clk,
	}, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { f.engine.Close() })
	return f
}

func TestRaiseThrottle(t *testing.T) {
	f := newFixture(t, nil, Config{})
	ctx := context.Background()
	data := map[string]any{"code": "DB_TIMEOUT", "component": "billing", "message": "timed out"}

	first, err := f.engine.Raise(ctx, "system.error", data, RaiseOptions{})
	require.NoError(t, err)
	assert.Equal(t, "[System Error] DB_TIMEOUT in billing", first.Title)
	assert.Equal(t, "timed out", first.Body)
	assert.Equal(t, models.PriorityHigh, first.Priority)
	assert.Equal(t, []string{"email", "log"}, first.Channels)

	f.clock.Advance(4 * time.Minute)
	_, err = f.engine.Raise(ctx, "system.error", data, RaiseOptions{})
	assert.ErrorIs(t, err, ErrSuppressed)

	// Different data is a different fingerprint.
	_, err = f.engine.Raise(ctx, "system.error", map[string]any{"code": "OTHER"}, RaiseOptions{})
	require.NoError(t, err)

	_, total := f.engine.List(storage.Filter{Priority: models.PriorityHigh}, storage.Page{})
	assert.Equal(t, 2, total)

	// The suppressed repeat did not extend the window.
	f.clock.Advance(time.Minute)
	_, err = f.engine.Raise(ctx, "system.error", data, RaiseOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, f.store.Len())
}

func TestRaiseUnknownEventType(t *testing.T) {
	f := newFixture(t, nil, Config{})

	_, err := f.engine.Raise(context.Background(), "nope", nil, RaiseOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownEventType))
	assert.Equal(t, 0, f.store.Len())
}

func TestRaiseMissingKeyLeftVerbatim(t *testing.T) {
	f := newFixture(t, nil, Config{})

	alert, err := f.engine.Raise(context.Background(), "billing.quota_exceeded",
		map[string]any{"company": "Acme"}, RaiseOptions{})
	require.NoError(t, err)
	assert.Equal(t, "[Quota] Acme exceeded {{quota}}", alert.Title)
	assert.Equal(t, "Acme — {{missingKey}}", alert.Body)
}

func TestRaiseOverrides(t *testing.T) {
	f := newFixture(t, nil, Config{})

	alert, err := f.engine.Raise(context.Background(), "system.error",
		map[string]any{"code": "X"}, RaiseOptions{
			Priority: models.PriorityLow,
			Channels: []string{"log"},
			Message:  "override {{code}}",
		})
	require.NoError(t, err)
	assert.Equal(t, models.PriorityLow, alert.Priority)
	assert.Equal(t, []string{"log"}, alert.Channels)
	assert.Equal(t, "override X", alert.Body)
	assert.Equal(t, 0, f.email.count("email"))
	assert.Equal(t, 1, f.logs.count("log"))
	require.Len(t, alert.Deliveries, 1)
	assert.Equal(t, models.DeliverySent, alert.Deliveries[0].Results[0].Status)
}

func TestChannelPriorityFiltering(t *testing.T) {
	f := newFixture(t, nil, Config{})

	alert, err := f.engine.Raise(context.Background(), "digest", nil, RaiseOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.PriorityMedium, alert.Priority)

	assert.Equal(t, 0, f.sms.count("sms"))
	assert.Equal(t, 1, f.email.count("email"))
	assert.Equal(t, 1, f.logs.count("log"))

	require.Len(t, alert.Deliveries, 1)
	assert.Equal(t, models.DeliverySkippedPriority, alert.Deliveries[0].Results[1].Status)
}

func TestHandleEventRuleFanOut(t *testing.T) {
	rules := []*alerting.Rule{
		{
			Name:       "db-timeouts",
			Conditions: alerting.Condition{Code: "DB_TIMEOUT"},
			Action:     alerting.ActionConfig{EventType: "system.error", Priority: "critical"},
		},
		{
			Name:       "billing-errors",
			Conditions: alerting.Condition{Category: "billing"},
			Action:     alerting.ActionConfig{EventType: "system.error", Channels: []string{"log"}},
		},
		{
			Name:       "never",
			Conditions: alerting.Condition{Code: "OTHER"},
			Action:     alerting.ActionConfig{EventType: "system.error"},
		},
	}
	f := newFixture(t, rules, Config{})

	event := models.ErrorEvent{Code: "DB_TIMEOUT", Category: "Billing", Severity: "high", Message: "query timed out"}
	alerts, err := f.engine.HandleEvent(context.Background(), event, map[string]any{"component": "invoices"})
	require.NoError(t, err)
	require.Len(t, alerts, 2)

	assert.NotEqual(t, alerts[0].ID, alerts[1].ID)
	assert.Equal(t, models.PriorityCritical, alerts[0].Priority)
	assert.Equal(t, "db-timeouts", alerts[0].Data["rule"])
	assert.Equal(t, []string{"email", "log"}, alerts[0].Channels)

	assert.Equal(t, models.PriorityHigh, alerts[1].Priority)
	assert.Equal(t, "billing-errors", alerts[1].Data["rule"])
	assert.Equal(t, []string{"log"}, alerts[1].Channels)

	assert.Equal(t, "[System Error] DB_TIMEOUT in invoices", alerts[0].Title)
	assert.Equal(t, "invoices", alerts[0].Source.Component)
	assert.Equal(t, "query timed out", alerts[0].Source.Error)
	assert.Equal(t, 2, f.store.Len())
}

func TestHandleEventThrottlesRepeatedErrors(t *testing.T) {
	rules := []*alerting.Rule{
		{
			Name:       "db-timeouts",
			Conditions: alerting.Condition{Code: "DB_TIMEOUT"},
			Action:     alerting.ActionConfig{EventType: "system.error"},
		},
	}
	f := newFixture(t, rules, Config{})
	ctx := context.Background()
	eventCtx := map[string]any{"component": "invoices"}

	first, err := f.engine.HandleEvent(ctx, models.ErrorEvent{Code: "DB_TIMEOUT", Message: "query timed out"}, eventCtx)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, f.clock.Now().Format(time.RFC3339), first[0].Data["timestamp"])

	for i := 0; i < 2; i++ {
		f.clock.Advance(10 * time.Second)
		alerts, err := f.engine.HandleEvent(ctx, models.ErrorEvent{Code: "DB_TIMEOUT", Message: "query timed out"}, eventCtx)
		require.NoError(t, err)
		assert.Empty(t, alerts, "repeat %d inside the window", i+1)
	}
	assert.Equal(t, 1, f.store.Len())

	// Explicit timestamps differ too and must not split the fingerprint
	f.clock.Advance(10 * time.Second)
	alerts, err := f.engine.HandleEvent(ctx, models.ErrorEvent{
		Code:      "DB_TIMEOUT",
		Message:   "query timed out",
		Timestamp: f.clock.Now().Add(-time.Second),
	}, eventCtx)
	require.NoError(t, err)
	assert.Empty(t, alerts)

	f.clock.Advance(5 * time.Minute)
	alerts, err = f.engine.HandleEvent(ctx, models.ErrorEvent{Code: "DB_TIMEOUT", Message: "query timed out"}, eventCtx)
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
	assert.Equal(t, 2, f.store.Len())
}

func TestRaiseRenderDataNotFingerprinted(t *testing.T) {
	f := newFixture(t, nil, Config{})
	ctx := context.Background()
	data := map[string]any{"code": "DB_TIMEOUT", "component": "invoices"}

	alert, err := f.engine.Raise(ctx, "system.error", data, RaiseOptions{
		RenderData: map[string]any{"component": "billing", "attempt": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, "[System Error] DB_TIMEOUT in billing", alert.Title)
	assert.Equal(t, 1, alert.Data["attempt"])
	assert.Equal(t, "invoices", data["component"], "caller data must not be modified")

	_, err = f.engine.Raise(ctx, "system.error", data, RaiseOptions{
		RenderData: map[string]any{"attempt": 2},
	})
	assert.ErrorIs(t, err, ErrSuppressed)
}

func TestHandleEventUnknownActionType(t *testing.T) {
	rules := []*alerting.Rule{
		{Name: "bad", Action: alerting.ActionConfig{EventType: "missing.type"}},
		{Name: "good", Action: alerting.ActionConfig{EventType: "digest"}},
	}
	f := newFixture(t, rules, Config{})

	alerts, err := f.engine.HandleEvent(context.Background(), models.ErrorEvent{Code: "X"}, nil)
	assert.ErrorIs(t, err, ErrUnknownEventType)
	assert.Len(t, alerts, 1)
}

func TestHandleEventNoMatch(t *testing.T) {
	f := newFixture(t, nil, Config{})

	alerts, err := f.engine.HandleEvent(context.Background(), models.ErrorEvent{Code: "X"}, nil)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestSendCustomAlert(t *testing.T) {
	f := newFixture(t, nil, Config{})

	alert, err := f.engine.SendCustomAlert(context.Background(), CustomAlert{
		Title:    "Maintenance",
		Body:     "Database upgrade at 02:00",
		Priority: models.PriorityLow,
		Data:     map[string]any{"ticket": "OPS-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, catalog.EventCustom, alert.EventType)
	assert.Equal(t, "Maintenance", alert.Title)
	assert.Equal(t, "Database upgrade at 02:00", alert.Body)
	assert.Equal(t, models.PriorityLow, alert.Priority)
	assert.Equal(t, "OPS-1", alert.Data["ticket"])

	_, err = f.engine.SendCustomAlert(context.Background(), CustomAlert{})
	assert.Error(t, err)
}

func TestRetryCapThroughEngine(t *testing.T) {
	f := newFixture(t, nil, Config{})
	f.email.fails["email"] = errors.New("smtp down")

	alert, err := f.engine.Raise(context.Background(), "digest", nil, RaiseOptions{})
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)

	assert.Equal(t, 4, f.email.count("email"), "one initial send plus three retries")
	stored, ok := f.engine.Get(alert.ID)
	require.True(t, ok)
	assert.Equal(t, 3, stored.RetryCount)
	assert.Len(t, stored.Deliveries, 4)
	assert.Equal(t, 0, f.engine.HealthCheck(context.Background()).PendingRetries)
}

func TestLifecycleIndependence(t *testing.T) {
	f := newFixture(t, nil, Config{})

	alert, err := f.engine.Raise(context.Background(), "digest", nil, RaiseOptions{})
	require.NoError(t, err)

	assert.True(t, f.engine.Resolve(alert.ID, "alice", "restarted"))
	stored, _ := f.engine.Get(alert.ID)
	assert.True(t, stored.IsResolved())
	assert.False(t, stored.IsAcknowledged())

	assert.True(t, f.engine.Acknowledge(alert.ID, "bob", "late ack"))
	assert.True(t, f.engine.Acknowledge(alert.ID, "carol", ""))
	stored, _ = f.engine.Get(alert.ID)
	assert.Equal(t, "carol", stored.Acknowledgement.By)
	assert.Equal(t, "alice", stored.Resolution.By)

	assert.False(t, f.engine.Acknowledge("missing", "bob", ""))
	assert.False(t, f.engine.Resolve("missing", "bob", ""))
}

func TestListPagination(t *testing.T) {
	f := newFixture(t, nil, Config{})
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		_, err := f.engine.Raise(ctx, "digest", nil, RaiseOptions{})
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}
	_, err := f.engine.Raise(ctx, "system.error", map[string]any{"code": "A"}, RaiseOptions{})
	require.NoError(t, err)

	tests := []struct {
		offset, limit, want int
	}{
		{0, 3, 3},
		{3, 3, 3},
		{6, 3, 1},
		{7, 3, 0},
		{0, 0, 7},
	}
	for _, tt := range tests {
		items, total := f.engine.List(storage.Filter{EventType: "digest"}, storage.Page{Offset: tt.offset, Limit: tt.limit})
		assert.Equal(t, 7, total)
		assert.Len(t, items, tt.want, "offset=%d limit=%d", tt.offset, tt.limit)
	}

	items, _ := f.engine.List(storage.Filter{EventType: "digest"}, storage.Page{Limit: 2})
	assert.True(t, items[0].CreatedAt.After(items[1].CreatedAt), "newest first")
}

func TestEscalationPolicies(t *testing.T) {
	tests := []struct {
		name     string
		policy   Policy
		ack      bool
		resolve  bool
		escalate bool
	}{
		{"always fires when resolved", PolicyAlways, true, true, true},
		{"unacknowledged fires when untouched", PolicyUnacknowledged, false, false, true},
		{"unacknowledged skips acknowledged", PolicyUnacknowledged, true, false, false},
		{"unacknowledged skips resolved", PolicyUnacknowledged, false, true, false},
		{"unresolved fires when acknowledged", PolicyUnresolved, true, false, true},
		{"unresolved skips resolved", PolicyUnresolved, false, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil, Config{Escalation: EscalationConfig{Policy: tt.policy}})

			original, err := f.engine.Raise(context.Background(), "billing.quota_exceeded",
				map[string]any{"company": "Acme", "quota": "10k", "code": "QUOTA"}, RaiseOptions{})
			require.NoError(t, err)
			assert.Equal(t, 1, f.engine.HealthCheck(context.Background()).PendingEscalations)

			if tt.ack {
				f.engine.Acknowledge(original.ID, "alice", "")
			}
			if tt.resolve {
				f.engine.Resolve(original.ID, "alice", "")
			}

			f.clock.Advance(59 * time.Minute)
			assert.Equal(t, 1, f.store.Len())

			f.clock.Advance(time.Minute)
			if !tt.escalate {
				assert.Equal(t, 1, f.store.Len())
				assert.Equal(t, 0, f.sms.count("sms"))
				return
			}

			require.Equal(t, 2, f.store.Len())
			items, _ := f.engine.List(storage.Filter{Priority: models.PriorityCritical}, storage.Page{})
			require.Len(t, items, 1)
			escalated := items[0]

			assert.Equal(t, original.ID, escalated.EscalatedFrom)
			assert.True(t, strings.HasPrefix(escalated.Title, EscalatedPrefix))
			assert.Equal(t, "[ESCALATED] [Quota] Acme exceeded 10k", escalated.Title)
			assert.Equal(t, []string{"sms", "email"}, escalated.Channels)
			assert.Equal(t, original.ID, escalated.Data["escalated_from"])
			assert.Equal(t, "QUOTA", escalated.Data["original_code"])
			assert.Equal(t, 1, f.sms.count("sms"))
			assert.Equal(t, models.PriorityCritical, f.sms.last("sms").Priority)

			// Escalations do not escalate again.
			f.clock.Advance(2 * time.Hour)
			assert.Equal(t, 2, f.store.Len())
		})
	}
}

func TestEscalationBypassesThrottle(t *testing.T) {
	f := newFixture(t, nil, Config{})
	data := map[string]any{"code": "DB_TIMEOUT"}

	original, err := f.engine.Raise(context.Background(), "system.error", data,
		RaiseOptions{EscalationDelay: time.Minute})
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	require.Equal(t, 2, f.store.Len())

	got, _ := f.engine.List(storage.Filter{Priority: models.PriorityCritical}, storage.Page{})
	require.Len(t, got, 1)
	assert.Equal(t, original.ID, got[0].EscalatedFrom)
}

func TestEscalationCustomUrgentChannels(t *testing.T) {
	f := newFixture(t, nil, Config{Escalation: EscalationConfig{UrgentChannels: []string{"log"}}})

	_, err := f.engine.Raise(context.Background(), "digest", nil, RaiseOptions{EscalationDelay: time.Second})
	require.NoError(t, err)
	f.clock.Advance(time.Second)

	assert.Equal(t, 0, f.sms.count("sms"))
	assert.Equal(t, 2, f.logs.count("log"))
}

func TestCloseStopsTimers(t *testing.T) {
	f := newFixture(t, nil, Config{})
	f.email.fails["email"] = errors.New("down")

	_, err := f.engine.Raise(context.Background(), "billing.quota_exceeded", map[string]any{"company": "Acme"}, RaiseOptions{})
	require.NoError(t, err)

	require.NoError(t, f.engine.Close())
	f.clock.Advance(48 * time.Hour)

	assert.Equal(t, 1, f.email.count("email"))
	assert.Equal(t, 1, f.store.Len())

	_, err = f.engine.Raise(context.Background(), "digest", nil, RaiseOptions{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t, nil, Config{})

	h := f.engine.HealthCheck(context.Background())
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, "memory", h.ThrottleBackend)
	require.Len(t, h.Channels, 3)
	for _, ch := range h.Channels {
		assert.Equal(t, dispatch.HealthUnknown, ch.Status, ch.Channel)
	}
}

func TestJanitorPrunesThrottle(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	backend := throttle.NewMemoryBackend(clk)
	cat, err := catalog.NewWithoutDefaults(testTemplates)
	require.NoError(t, err)
	reg, err := channels.NewRegistry(nil)
	require.NoError(t, err)

	e, err := New(Deps{
		Catalog:  cat,
		Registry: reg,
		Store:    storage.NewMemoryStore(storage.MemoryOptions{Clock: clk}),
		Throttle: backend,
		Clock:    clk,
	}, Config{JanitorInterval: time.Minute})
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Raise(context.Background(), "system.error", map[string]any{"code": "A"}, RaiseOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, backend.Len())

	clk.Advance(6 * time.Minute)
	assert.Equal(t, 0, backend.Len())
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{
		"":               PolicyAlways,
		"always":         PolicyAlways,
		"unacknowledged": PolicyUnacknowledged,
		"unresolved":     PolicyUnresolved,
	} {
		got, err := ParsePolicy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParsePolicy("sometimes")
	assert.Error(t, err)
}

func TestSourceFromContext(t *testing.T) {
	assert.Equal(t, "direct", SourceFromContext(context.Background()))
	assert.Equal(t, "nats", SourceFromContext(WithSource(context.Background(), "nats")))
}
