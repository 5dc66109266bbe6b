// Package catalog maps event types to alert templates and renders
// template text against an event's data bag.
package catalog

import (
	"fmt"
	"sort"
	"time"

	"github.com/good-yellow-bee/beacon/internal/models"
)

// EventCustom is the event type used for ad-hoc alerts.
const EventCustom = "custom"

// TemplateConfig is the configuration form of a template.
type TemplateConfig struct {
	EventType string   `yaml:"event_type" toml:"event_type"`
	Priority  string   `yaml:"priority" toml:"priority"`
	Title     string   `yaml:"title" toml:"title"`
	Body      string   `yaml:"body" toml:"body"`
	Channels  []string `yaml:"channels" toml:"channels"`
	// Throttle is the suppression window, e.g. "5m". Empty disables throttling.
	Throttle string `yaml:"throttle,omitempty" toml:"throttle,omitempty"`
	// Escalation is the delay before re-raising at critical. Empty disables it.
	Escalation string `yaml:"escalation,omitempty" toml:"escalation,omitempty"`
}

// Template describes how an event type becomes an alert.
type Template struct {
	EventType       string
	Priority        models.Priority
	Title           string
	Body            string
	Channels        []string
	ThrottleWindow  time.Duration
	EscalationDelay time.Duration
}

// Build validates a template config.
func (c *TemplateConfig) Build() (Template, error) {
	if c.EventType == "" {
		return Template{}, fmt.Errorf("template event_type is required")
	}

	priority := models.PriorityMedium
	if c.Priority != "" {
		p, err := models.ParsePriority(c.Priority)
		if err != nil {
			return Template{}, fmt.Errorf("template %q: %w", c.EventType, err)
		}
		priority = p
	}

	if c.Title == "" {
		return Template{}, fmt.Errorf("template %q: title is required", c.EventType)
	}
	if len(c.Channels) == 0 {
		return Template{}, fmt.Errorf("template %q: at least one channel is required", c.EventType)
	}

	throttle, err := parseOptionalDuration(c.Throttle)
	if err != nil {
		return Template{}, fmt.Errorf("invalid throttle %q for template %q: %w", c.Throttle, c.EventType, err)
	}
	escalation, err := parseOptionalDuration(c.Escalation)
	if err != nil {
		return Template{}, fmt.Errorf("invalid escalation %q for template %q: %w", c.Escalation, c.EventType, err)
	}

	return Template{
		EventType:       c.EventType,
		Priority:        priority,
		Title:           c.Title,
		Body:            c.Body,
		Channels:        append([]string(nil), c.Channels...),
		ThrottleWindow:  throttle,
		EscalationDelay: escalation,
	}, nil
}

func parseOptionalDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must not be negative")
	}
	return d, nil
}

// Catalog is an immutable set of templates keyed by event type.
type Catalog struct {
	templates map[string]Template
}

// New builds a catalog from the built-in defaults overlaid with configs.
// A config with the same event type as a default replaces it.
func New(configs []TemplateConfig) (*Catalog, error) {
	defaults, err := Defaults()
	if err != nil {
		return nil, err
	}
	return NewWithoutDefaults(append(defaults, configs...))
}

// NewWithoutDefaults builds a catalog from configs alone. Later entries
// replace earlier ones with the same event type.
func NewWithoutDefaults(configs []TemplateConfig) (*Catalog, error) {
	c := &Catalog{templates: make(map[string]Template, len(configs))}
	for i := range configs {
		tmpl, err := configs[i].Build()
		if err != nil {
			return nil, err
		}
		c.templates[tmpl.EventType] = tmpl
	}
	return c, nil
}

// Get returns the template for eventType.
func (c *Catalog) Get(eventType string) (Template, bool) {
	tmpl, ok := c.templates[eventType]
	if !ok {
		return Template{}, false
	}
	tmpl.Channels = append([]string(nil), tmpl.Channels...)
	return tmpl, true
}

// EventTypes returns all known event types, sorted.
func (c *Catalog) EventTypes() []string {
	types := make([]string, 0, len(c.templates))
	for t := range c.templates {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
