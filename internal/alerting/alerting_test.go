package alerting

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/good-yellow-bee/beacon/internal/clock"
	"github.com/good-yellow-bee/beacon/internal/models"
)

func boolPtr(b bool) *bool { return &b }

func TestRuleValidation(t *testing.T) {
	registry := NewRegistry()
	_ = registry.Register("has_tenant", PredicateFunc(func(models.ErrorEvent, map[string]any) (bool, error) {
		return true, nil
	}))

	tests := []struct {
		name    string
		rule    Rule
		wantErr bool
		errMsg  string
	}{
		{
			name:    "empty name",
			rule:    Rule{},
			wantErr: true,
			errMsg:  "name is required",
		},
		{
			name:    "missing event type",
			rule:    Rule{Name: "r"},
			wantErr: true,
			errMsg:  "event_type is required",
		},
		{
			name: "frequency without count",
			rule: Rule{
				Name:       "r",
				Conditions: Condition{Frequency: &Frequency{Window: "5m"}},
				Action:     ActionConfig{EventType: "system.error"},
			},
			wantErr: true,
			errMsg:  "count must be positive",
		},
		{
			name: "frequency without window",
			rule: Rule{
				Name:       "r",
				Conditions: Condition{Frequency: &Frequency{Count: 3}},
				Action:     ActionConfig{EventType: "system.error"},
			},
			wantErr: true,
			errMsg:  "window is required",
		},
		{
			name: "frequency with bad window",
			rule: Rule{
				Name:       "r",
				Conditions: Condition{Frequency: &Frequency{Count: 3, Window: "often"}},
				Action:     ActionConfig{EventType: "system.error"},
			},
			wantErr: true,
			errMsg:  "invalid window",
		},
		{
			name: "unknown predicate",
			rule: Rule{
				Name:       "r",
				Conditions: Condition{Predicate: "nope"},
				Action:     ActionConfig{EventType: "system.error"},
			},
			wantErr: true,
			errMsg:  "unknown predicate",
		},
		{
			name: "invalid expr",
			rule: Rule{
				Name:       "r",
				Conditions: Condition{Expr: "code =="},
				Action:     ActionConfig{EventType: "system.error"},
			},
			wantErr: true,
			errMsg:  "invalid expr",
		},
		{
			name: "non-bool expr",
			rule: Rule{
				Name:       "r",
				Conditions: Condition{Expr: "code"},
				Action:     ActionConfig{EventType: "system.error"},
			},
			wantErr: true,
			errMsg:  "invalid expr",
		},
		{
			name: "bad priority",
			rule: Rule{
				Name:   "r",
				Action: ActionConfig{EventType: "system.error", Priority: "urgent"},
			},
			wantErr: true,
			errMsg:  "invalid priority",
		},
		{
			name: "bad escalation",
			rule: Rule{
				Name:   "r",
				Action: ActionConfig{EventType: "system.error", Escalation: "later"},
			},
			wantErr: true,
			errMsg:  "invalid escalation",
		},
		{
			name: "valid full rule",
			rule: Rule{
				Name: "r",
				Conditions: Condition{
					Code:      "DB_TIMEOUT",
					Category:  "database",
					Severity:  "high",
					Frequency: &Frequency{Count: 3, Window: "5m"},
					Predicate: "has_tenant",
					Expr:      `message contains "timeout"`,
				},
				Action: ActionConfig{
					EventType:  "system.error",
					Priority:   "CRITICAL",
					Escalation: "15m",
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate(registry)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error containing %q, got nil", tt.errMsg)
				} else if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("expected error containing %q, got %q", tt.errMsg, err.Error())
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidatedRuleState(t *testing.T) {
	rule := &Rule{
		Name:       "r",
		Conditions: Condition{Frequency: &Frequency{Count: 2, Window: "10m"}},
		Action:     ActionConfig{EventType: "system.error", Priority: "high", Escalation: "30m"},
	}
	if err := rule.Validate(NewRegistry()); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if rule.WindowDuration() != 10*time.Minute {
		t.Errorf("WindowDuration() = %v, want 10m", rule.WindowDuration())
	}

	a := rule.action()
	if a.Priority != models.PriorityHigh {
		t.Errorf("Priority = %q, want high", a.Priority)
	}
	if a.EscalationDelay != 30*time.Minute {
		t.Errorf("EscalationDelay = %v, want 30m", a.EscalationDelay)
	}
}

func TestEngineAllMatchingRulesFire(t *testing.T) {
	rules := []*Rule{
		{
			Name:       "db-to-ops",
			Conditions: Condition{Code: "DB_TIMEOUT"},
			Action:     ActionConfig{EventType: "system.error", Channels: []string{"chat"}},
		},
		{
			Name:       "critical-db",
			Conditions: Condition{Category: "DATABASE", Severity: "critical"},
			Action:     ActionConfig{EventType: "system.error", Priority: "critical", Channels: []string{"sms"}},
		},
		{
			Name:       "billing",
			Conditions: Condition{Category: "billing"},
			Action:     ActionConfig{EventType: "billing.quota_exceeded"},
		},
		{
			Name:       "disabled",
			Enabled:    boolPtr(false),
			Conditions: Condition{Code: "DB_TIMEOUT"},
			Action:     ActionConfig{EventType: "system.error"},
		},
	}

	engine, err := NewEngine(rules, EngineOptions{})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	actions := engine.Evaluate(models.ErrorEvent{
		Code:     "DB_TIMEOUT",
		Category: "database",
		Severity: "critical",
		Message:  "query timed out",
	}, nil)

	if len(actions) != 2 {
		t.Fatalf("len(actions) = %d, want 2", len(actions))
	}
	if actions[0].Rule != "db-to-ops" || actions[1].Rule != "critical-db" {
		t.Errorf("actions order = [%s %s], want [db-to-ops critical-db]", actions[0].Rule, actions[1].Rule)
	}
	if actions[0].Priority != "" {
		t.Errorf("first action priority = %q, want template default", actions[0].Priority)
	}
	if actions[1].Priority != models.PriorityCritical || actions[1].Channels[0] != "sms" {
		t.Errorf("second action = %+v", actions[1])
	}

	stats := engine.Stats()
	if stats.EventsEvaluated != 1 || stats.RulesMatched != 2 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestEngineNoMatch(t *testing.T) {
	engine, err := NewEngine([]*Rule{{
		Name:       "only-billing",
		Conditions: Condition{Category: "billing"},
		Action:     ActionConfig{EventType: "billing.quota_exceeded"},
	}}, EngineOptions{})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	if actions := engine.Evaluate(models.ErrorEvent{Category: "email"}, nil); len(actions) != 0 {
		t.Errorf("len(actions) = %d, want 0", len(actions))
	}
}

func TestEngineFrequency(t *testing.T) {
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	clk := clock.NewFake(start)

	engine, err := NewEngine([]*Rule{{
		Name: "repeated-timeouts",
		Conditions: Condition{
			Code:      "DB_TIMEOUT",
			Frequency: &Frequency{Count: 3, Window: "5m"},
		},
		Action: ActionConfig{EventType: "system.error"},
	}}, EngineOptions{Clock: clk})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	timeout := models.ErrorEvent{Code: "DB_TIMEOUT"}
	other := models.ErrorEvent{Code: "OTHER"}

	if got := engine.Evaluate(timeout, nil); len(got) != 0 {
		t.Fatal("fired on first event")
	}
	clk.Advance(time.Minute)
	// Non-matching events are not counted.
	for i := 0; i < 5; i++ {
		engine.Evaluate(other, nil)
	}
	if got := engine.Evaluate(timeout, nil); len(got) != 0 {
		t.Fatal("fired on second event")
	}
	clk.Advance(time.Minute)
	if got := engine.Evaluate(timeout, nil); len(got) != 1 {
		t.Fatal("did not fire on third event within window")
	}

	// Past five minutes from the first event only the later two remain, plus the new one.
	clk.Advance(3*time.Minute + 30*time.Second)
	if got := engine.Evaluate(timeout, nil); len(got) != 1 {
		t.Error("expected fire with three events inside window")
	}

	clk.Advance(10 * time.Minute)
	if got := engine.Evaluate(timeout, nil); len(got) != 0 {
		t.Error("fired after window drained")
	}
}

func TestEnginePredicates(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register("enterprise_tenant", PredicateFunc(func(_ models.ErrorEvent, ctx map[string]any) (bool, error) {
		return ctx["plan"] == "enterprise", nil
	})); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := registry.Register("broken", PredicateFunc(func(models.ErrorEvent, map[string]any) (bool, error) {
		return false, errors.New("lookup failed")
	})); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	rules := []*Rule{
		{
			Name:       "enterprise",
			Conditions: Condition{Predicate: "enterprise_tenant"},
			Action:     ActionConfig{EventType: "system.error"},
		},
		{
			Name:       "expr",
			Conditions: Condition{Expr: `severity == "high" && context.region == "eu"`},
			Action:     ActionConfig{EventType: "system.error"},
		},
		{
			Name:       "broken",
			Conditions: Condition{Predicate: "broken"},
			Action:     ActionConfig{EventType: "system.error"},
		},
	}

	engine, err := NewEngine(rules, EngineOptions{Predicates: registry})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	actions := engine.Evaluate(
		models.ErrorEvent{Severity: "high"},
		map[string]any{"plan": "enterprise", "region": "eu"},
	)
	if len(actions) != 2 {
		t.Fatalf("len(actions) = %d, want 2", len(actions))
	}
	if actions[0].Rule != "enterprise" || actions[1].Rule != "expr" {
		t.Errorf("rules = [%s %s]", actions[0].Rule, actions[1].Rule)
	}
	if engine.Stats().PredicateErrors != 1 {
		t.Errorf("PredicateErrors = %d, want 1", engine.Stats().PredicateErrors)
	}

	// Expression predicates are registered under their source text.
	if _, ok := registry.Lookup(`severity == "high" && context.region == "eu"`); !ok {
		t.Error("expr predicate not registered under its source")
	}
}

func TestExprPredicateNilContext(t *testing.T) {
	p, err := NewExprPredicate(`context.tenant == nil && code startsWith "DB_"`)
	if err != nil {
		t.Fatalf("NewExprPredicate() error = %v", err)
	}
	ok, err := p.Match(models.ErrorEvent{Code: "DB_TIMEOUT"}, nil)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if !ok {
		t.Error("Match() = false, want true")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	p := PredicateFunc(func(models.ErrorEvent, map[string]any) (bool, error) { return true, nil })

	if err := r.Register("a", p); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register("a", p); err == nil {
		t.Error("duplicate Register() should fail")
	}
	if err := r.Register("", p); err == nil {
		t.Error("empty name should fail")
	}

	src := `code == "X"`
	if _, err := r.RegisterExpr(src); err != nil {
		t.Fatalf("RegisterExpr() error = %v", err)
	}
	if _, err := r.RegisterExpr(src); err != nil {
		t.Errorf("re-registering same expr should succeed: %v", err)
	}

	names := r.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != src {
		t.Errorf("Names() = %v", names)
	}
}

func TestDuplicateRuleNames(t *testing.T) {
	rules := []*Rule{
		{Name: "dup", Action: ActionConfig{EventType: "a"}},
		{Name: "dup", Action: ActionConfig{EventType: "b"}},
	}
	if _, err := NewEngine(rules, EngineOptions{}); err == nil {
		t.Error("expected duplicate name error")
	}
}

func TestReloadRulesResetsWindows(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	rule := func() *Rule {
		return &Rule{
			Name:       "freq",
			Conditions: Condition{Frequency: &Frequency{Count: 2, Window: "1h"}},
			Action:     ActionConfig{EventType: "system.error"},
		}
	}

	engine, err := NewEngine([]*Rule{rule()}, EngineOptions{Clock: clk})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	engine.Evaluate(models.ErrorEvent{}, nil)

	if err := engine.ReloadRules([]*Rule{rule()}); err != nil {
		t.Fatalf("ReloadRules() error = %v", err)
	}
	if got := engine.Evaluate(models.ErrorEvent{}, nil); len(got) != 0 {
		t.Error("window should be empty after reload")
	}
	if got := engine.Evaluate(models.ErrorEvent{}, nil); len(got) != 1 {
		t.Error("expected fire on second event after reload")
	}

	if err := engine.ReloadRules([]*Rule{{Name: ""}}); err == nil {
		t.Error("invalid reload should fail")
	}
	if len(engine.Rules()) != 1 {
		t.Error("failed reload must keep existing rules")
	}
}

func TestSlidingWindow(t *testing.T) {
	start := time.Unix(1000, 0)
	w := NewSlidingWindow(time.Minute)

	if got := w.AddAt(start); got != 1 {
		t.Errorf("AddAt = %d, want 1", got)
	}
	w.AddAt(start.Add(30 * time.Second))
	if got := w.CountAt(start.Add(59 * time.Second)); got != 2 {
		t.Errorf("CountAt(59s) = %d, want 2", got)
	}
	if got := w.CountAt(start.Add(60 * time.Second)); got != 1 {
		t.Errorf("CountAt(60s) = %d, want 1", got)
	}
	if got := w.CountAt(start.Add(2 * time.Minute)); got != 0 {
		t.Errorf("CountAt(2m) = %d, want 0", got)
	}
}

func TestLoadRules(t *testing.T) {
	yamlData := `
rules:
  - name: quota-breach
    description: Billing quota exceeded repeatedly
    conditions:
      category: billing
      frequency:
        count: 2
        window: 1h
    action:
      event_type: billing.quota_exceeded
      priority: high
      escalation: 30m
  - name: smtp-down
    conditions:
      expr: 'code == "SMTP_UNREACHABLE"'
    action:
      event_type: email.delivery_failed
      channels: [chat, sms]
`
	rules, err := LoadRules(strings.NewReader(yamlData), NewRegistry())
	if err != nil {
		t.Fatalf("LoadRules() error = %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("len(rules) = %d, want 2", len(rules))
	}
	if rules[0].WindowDuration() != time.Hour {
		t.Errorf("WindowDuration() = %v, want 1h", rules[0].WindowDuration())
	}
	if got := rules[1].Action.Channels; len(got) != 2 || got[1] != "sms" {
		t.Errorf("Channels = %v", got)
	}

	if _, err := LoadRules(strings.NewReader("rules:\n  - name: x\n    bogus: 1\n"), NewRegistry()); err == nil {
		t.Error("unknown field should fail")
	}
	empty, err := LoadRules(strings.NewReader(""), NewRegistry())
	if err != nil || len(empty) != 0 {
		t.Errorf("empty input: rules=%v err=%v", empty, err)
	}
}

func TestDefaultRegistryPredicates(t *testing.T) {
	registry := NewDefaultRegistry()

	tests := []struct {
		predicate string
		event     models.ErrorEvent
		context   map[string]any
		want      bool
	}{
		{PredicateCritical, models.ErrorEvent{Severity: "CRITICAL"}, nil, true},
		{PredicateCritical, models.ErrorEvent{Severity: "high"}, nil, false},
		{PredicateSevere, models.ErrorEvent{Severity: "high"}, nil, true},
		{PredicateSevere, models.ErrorEvent{Severity: "medium"}, nil, false},
		{PredicateTimeout, models.ErrorEvent{Code: "DB_TIMEOUT"}, nil, true},
		{PredicateTimeout, models.ErrorEvent{Message: "query timed out after 30s"}, nil, true},
		{PredicateTimeout, models.ErrorEvent{Code: "DB_DEADLOCK"}, nil, false},
		{PredicateHasComponent, models.ErrorEvent{}, map[string]any{"component": "invoices"}, true},
		{PredicateHasComponent, models.ErrorEvent{}, map[string]any{"component": " "}, false},
		{PredicateHasComponent, models.ErrorEvent{}, nil, false},
	}

	for _, tt := range tests {
		p, ok := registry.Lookup(tt.predicate)
		if !ok {
			t.Fatalf("predicate %q not registered", tt.predicate)
		}
		got, err := p.Match(tt.event, tt.context)
		if err != nil {
			t.Fatalf("%s: Match() error = %v", tt.predicate, err)
		}
		if got != tt.want {
			t.Errorf("%s(%+v, %v) = %v, want %v", tt.predicate, tt.event, tt.context, got, tt.want)
		}
	}
}

func TestUnknownPredicateMentionsAlternatives(t *testing.T) {
	rule := &Rule{
		Name:       "r",
		Conditions: Condition{Predicate: "enterprise_tenant"},
		Action:     ActionConfig{EventType: "system.error"},
	}
	err := rule.Validate(NewDefaultRegistry())
	if err == nil {
		t.Fatal("expected error for unknown predicate")
	}
	for _, want := range []string{"enterprise_tenant", PredicateSevere, "expr"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}
