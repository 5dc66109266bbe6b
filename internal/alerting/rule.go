// Package alerting provides the rule engine that turns error events into
// alert actions. Rules combine exact field conditions, a frequency-over-window
// condition and named predicates; every matching rule fires.
package alerting

import (
	"fmt"
	"strings"
	"time"

	"github.com/good-yellow-bee/beacon/internal/models"
)

// Frequency requires Count events within Window for the rule to fire.
type Frequency struct {
	Count  int    `yaml:"count" toml:"count" json:"count"`
	Window string `yaml:"window" toml:"window" json:"window"`
}

// Condition lists what an event must satisfy. Unset fields always pass.
type Condition struct {
	// Code matches ErrorEvent.Code exactly.
	Code string `yaml:"code,omitempty" toml:"code,omitempty" json:"code,omitempty"`
	// Category matches ErrorEvent.Category, case-insensitive.
	Category string `yaml:"category,omitempty" toml:"category,omitempty" json:"category,omitempty"`
	// Severity matches ErrorEvent.Severity, case-insensitive.
	Severity string `yaml:"severity,omitempty" toml:"severity,omitempty" json:"severity,omitempty"`
	// Frequency gates the rule on a trailing event count.
	Frequency *Frequency `yaml:"frequency,omitempty" toml:"frequency,omitempty" json:"frequency,omitempty"`
	// Predicate names a registered predicate.
	Predicate string `yaml:"predicate,omitempty" toml:"predicate,omitempty" json:"predicate,omitempty"`
	// Expr is an expr-lang boolean expression, registered as a predicate
	// under its own source text.
	Expr string `yaml:"expr,omitempty" toml:"expr,omitempty" json:"expr,omitempty"`

	windowDuration time.Duration
}

// ActionConfig describes the alert a matching rule raises.
type ActionConfig struct {
	EventType string `yaml:"event_type" toml:"event_type" json:"event_type"`
	// Priority overrides the template priority when set.
	Priority string `yaml:"priority,omitempty" toml:"priority,omitempty" json:"priority,omitempty"`
	// Message overrides the rendered body when set.
	Message string `yaml:"message,omitempty" toml:"message,omitempty" json:"message,omitempty"`
	// Channels overrides the template channels when set.
	Channels []string `yaml:"channels,omitempty" toml:"channels,omitempty" json:"channels,omitempty"`
	// Escalation overrides the template escalation delay when set.
	Escalation string `yaml:"escalation,omitempty" toml:"escalation,omitempty" json:"escalation,omitempty"`

	priority   models.Priority
	escalation time.Duration
}

// Rule maps a condition to an action.
type Rule struct {
	Name        string       `yaml:"name" toml:"name" json:"name"`
	Description string       `yaml:"description,omitempty" toml:"description,omitempty" json:"description,omitempty"`
	Enabled     *bool        `yaml:"enabled,omitempty" toml:"enabled,omitempty" json:"enabled,omitempty"`
	Conditions  Condition    `yaml:"conditions" toml:"conditions" json:"conditions"`
	Action      ActionConfig `yaml:"action" toml:"action" json:"action"`
}

// IsEnabled returns whether the rule is enabled.
func (r *Rule) IsEnabled() bool {
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

// Validate validates the rule and compiles its durations and expressions.
// Expressions are registered in predicates under their source text.
func (r *Rule) Validate(predicates *Registry) error {
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}

	if f := r.Conditions.Frequency; f != nil {
		if f.Count <= 0 {
			return fmt.Errorf("frequency count must be positive for rule %q", r.Name)
		}
		if f.Window == "" {
			return fmt.Errorf("frequency window is required for rule %q", r.Name)
		}
		d, err := time.ParseDuration(f.Window)
		if err != nil {
			return fmt.Errorf("invalid window %q for rule %q: %w", f.Window, r.Name, err)
		}
		if d <= 0 {
			return fmt.Errorf("frequency window must be positive for rule %q", r.Name)
		}
		r.Conditions.windowDuration = d
	}

	if name := r.Conditions.Predicate; name != "" {
		if _, ok := predicates.Lookup(name); !ok {
			return fmt.Errorf("unknown predicate %q for rule %q (registered: %s); use expr for custom conditions",
				name, r.Name, strings.Join(predicates.Names(), ", "))
		}
	}

	if src := r.Conditions.Expr; src != "" {
		if _, err := predicates.RegisterExpr(src); err != nil {
			return fmt.Errorf("invalid expr for rule %q: %w", r.Name, err)
		}
	}

	if r.Action.EventType == "" {
		return fmt.Errorf("action event_type is required for rule %q", r.Name)
	}

	r.Action.priority = ""
	if r.Action.Priority != "" {
		p, err := models.ParsePriority(r.Action.Priority)
		if err != nil {
			return fmt.Errorf("rule %q: %w", r.Name, err)
		}
		r.Action.priority = p
	}

	r.Action.escalation = 0
	if r.Action.Escalation != "" {
		d, err := time.ParseDuration(r.Action.Escalation)
		if err != nil {
			return fmt.Errorf("invalid escalation %q for rule %q: %w", r.Action.Escalation, r.Name, err)
		}
		if d < 0 {
			return fmt.Errorf("escalation must not be negative for rule %q", r.Name)
		}
		r.Action.escalation = d
	}

	return nil
}

// WindowDuration returns the parsed frequency window, or 0 if none.
func (r *Rule) WindowDuration() time.Duration {
	return r.Conditions.windowDuration
}

// matchesFields checks the exact field conditions.
func (r *Rule) matchesFields(event models.ErrorEvent) bool {
	c := r.Conditions
	if c.Code != "" && c.Code != event.Code {
		return false
	}
	if c.Category != "" && !strings.EqualFold(c.Category, event.Category) {
		return false
	}
	if c.Severity != "" && !strings.EqualFold(c.Severity, event.Severity) {
		return false
	}
	return true
}

// action builds the Action for a match.
func (r *Rule) action() Action {
	return Action{
		Rule:            r.Name,
		EventType:       r.Action.EventType,
		Priority:        r.Action.priority,
		Message:         r.Action.Message,
		Channels:        append([]string(nil), r.Action.Channels...),
		EscalationDelay: r.Action.escalation,
	}
}

// Action is the outcome of a matching rule.
type Action struct {
	// Rule is the name of the rule that matched.
	Rule      string `json:"rule"`
	EventType string `json:"event_type"`
	// Priority is empty when the template priority applies.
	Priority models.Priority `json:"priority,omitempty"`
	// Message replaces the rendered body when non-empty.
	Message string `json:"message,omitempty"`
	// Channels replaces the template channels when non-empty.
	Channels []string `json:"channels,omitempty"`
	// EscalationDelay replaces the template delay when non-zero.
	EscalationDelay time.Duration `json:"escalation_delay,omitempty"`
}

// RulesConfig represents a standalone rules file.
type RulesConfig struct {
	Rules []*Rule `yaml:"rules"`
}
