package alerting

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/beacon/internal/clock"
	"github.com/good-yellow-bee/beacon/internal/metrics"
	"github.com/good-yellow-bee/beacon/internal/models"
)

// Engine evaluates error events against rules.
type Engine struct {
	mu sync.RWMutex

	rules      []*Rule
	predicates *Registry
	windows    *WindowManager
	clock      clock.Clock
	logger     *zap.Logger

	stats EngineStats
}

// EngineStats tracks engine statistics using atomic operations for lock-free access.
type EngineStats struct {
	EventsEvaluated atomic.Int64
	RulesMatched    atomic.Int64
	PredicateErrors atomic.Int64
}

// EngineStatsSnapshot is a snapshot of engine statistics for reporting.
type EngineStatsSnapshot struct {
	EventsEvaluated int64 `json:"events_evaluated"`
	RulesMatched    int64 `json:"rules_matched"`
	PredicateErrors int64 `json:"predicate_errors"`
}

// EngineOptions configures the rule engine.
type EngineOptions struct {
	// Predicates resolves named predicates. Nil creates an empty registry.
	Predicates *Registry
	// Clock timestamps frequency windows. Nil uses the system clock.
	Clock clock.Clock
	// Logger receives predicate failures. Nil discards them.
	Logger *zap.Logger
}

// NewEngine validates rules and creates an engine.
func NewEngine(rules []*Rule, opts EngineOptions) (*Engine, error) {
	if opts.Predicates == nil {
		opts.Predicates = NewRegistry()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	if err := ValidateRules(rules, opts.Predicates); err != nil {
		return nil, err
	}

	return &Engine{
		rules:      rules,
		predicates: opts.Predicates,
		windows:    NewWindowManager(),
		clock:      opts.Clock,
		logger:     opts.Logger,
	}, nil
}

// ValidateRules validates each rule and checks that names are unique.
func ValidateRules(rules []*Rule, predicates *Registry) error {
	seen := make(map[string]bool, len(rules))
	for i, rule := range rules {
		if rule == nil {
			return fmt.Errorf("invalid rule at index %d: rule is empty", i)
		}
		if err := rule.Validate(predicates); err != nil {
			return fmt.Errorf("invalid rule at index %d: %w", i, err)
		}
		if seen[rule.Name] {
			return fmt.Errorf("duplicate rule name %q", rule.Name)
		}
		seen[rule.Name] = true
	}
	return nil
}

// Evaluate returns one Action per enabled rule matching event, in rule order.
func (e *Engine) Evaluate(event models.ErrorEvent, context map[string]any) []Action {
	return e.EvaluateAt(event, context, e.clock.Now())
}

// EvaluateAt evaluates an event at a specific time.
func (e *Engine) EvaluateAt(event models.ErrorEvent, context map[string]any, now time.Time) []Action {
	e.mu.RLock()
	rules := e.rules
	e.mu.RUnlock()

	e.stats.EventsEvaluated.Add(1)

	var actions []Action
	for _, rule := range rules {
		if !rule.IsEnabled() {
			continue
		}
		if !e.matches(rule, event, context, now) {
			continue
		}

		e.stats.RulesMatched.Add(1)
		metrics.RuleMatchesTotal.WithLabelValues(rule.Name).Inc()
		actions = append(actions, rule.action())
	}
	return actions
}

// matches checks every declared condition. The frequency window is only
// fed once the other conditions hold.
func (e *Engine) matches(rule *Rule, event models.ErrorEvent, context map[string]any, now time.Time) bool {
	if !rule.matchesFields(event) {
		return false
	}
	if name := rule.Conditions.Predicate; name != "" && !e.evalPredicate(rule, name, event, context) {
		return false
	}
	if src := rule.Conditions.Expr; src != "" && !e.evalPredicate(rule, src, event, context) {
		return false
	}

	if f := rule.Conditions.Frequency; f != nil {
		count := e.windows.AddEventAt(rule.Name, rule.WindowDuration(), now)
		if count < f.Count {
			return false
		}
	}
	return true
}

// evalPredicate runs a registered predicate. Errors count as a non-match.
func (e *Engine) evalPredicate(rule *Rule, name string, event models.ErrorEvent, context map[string]any) bool {
	p, ok := e.predicates.Lookup(name)
	if !ok {
		e.predicateFailed(rule, name, fmt.Errorf("predicate not registered"))
		return false
	}

	matched, err := p.Match(event, context)
	if err != nil {
		e.predicateFailed(rule, name, err)
		return false
	}
	return matched
}

func (e *Engine) predicateFailed(rule *Rule, name string, err error) {
	e.stats.PredicateErrors.Add(1)
	metrics.PredicateErrorsTotal.WithLabelValues(rule.Name).Inc()
	e.logger.Warn("predicate evaluation failed",
		zap.String("rule", rule.Name),
		zap.String("predicate", name),
		zap.Error(err))
}

// Rules returns all rules.
func (e *Engine) Rules() []*Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := make([]*Rule, len(e.rules))
	copy(result, e.rules)
	return result
}

// ReloadRules validates and atomically replaces all rules.
// Frequency windows start empty after a reload.
func (e *Engine) ReloadRules(rules []*Rule) error {
	if err := ValidateRules(rules, e.predicates); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.rules = rules
	e.windows.DeleteAll()
	return nil
}

// Predicates returns the engine's predicate registry.
func (e *Engine) Predicates() *Registry {
	return e.predicates
}

// Stats returns a snapshot of engine statistics.
func (e *Engine) Stats() EngineStatsSnapshot {
	return EngineStatsSnapshot{
		EventsEvaluated: e.stats.EventsEvaluated.Load(),
		RulesMatched:    e.stats.RulesMatched.Load(),
		PredicateErrors: e.stats.PredicateErrors.Load(),
	}
}
