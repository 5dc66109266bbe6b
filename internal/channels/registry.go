// Package channels holds the configured delivery channels and answers
// lookups by name for the dispatcher.
package channels

import (
	"fmt"
	"sort"
	"sync"

	"github.com/good-yellow-bee/beacon/internal/models"
)

// Config is the configuration form of a channel.
type Config struct {
	// Name identifies the channel. Defaults to the kind.
	Name string `yaml:"name" toml:"name"`
	// Kind is the transport kind (email, chat, sms, webhook, log).
	Kind string `yaml:"kind" toml:"kind"`
	// Enabled controls delivery. Defaults to true.
	Enabled *bool `yaml:"enabled,omitempty" toml:"enabled,omitempty"`
	// Priorities lists the accepted priorities. Empty accepts all.
	Priorities []string `yaml:"priorities,omitempty" toml:"priorities,omitempty"`
	// Settings is the transport specific configuration.
	Settings map[string]string `yaml:"settings,omitempty" toml:"settings,omitempty"`
}

// IsEnabled returns whether the channel is enabled.
func (c *Config) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// Channel is a configured delivery destination.
type Channel struct {
	Name       string
	Kind       models.ChannelKind
	Enabled    bool
	Settings   map[string]string
	Priorities []models.Priority
}

// Accepts reports whether the channel carries alerts of priority p.
func (c Channel) Accepts(p models.Priority) bool {
	if len(c.Priorities) == 0 {
		return true
	}
	for _, accepted := range c.Priorities {
		if accepted == p {
			return true
		}
	}
	return false
}

// Setting returns a transport setting, or "" when unset.
func (c Channel) Setting(key string) string {
	return c.Settings[key]
}

// Build validates a channel config and converts it to a Channel.
func (c *Config) Build() (Channel, error) {
	kind, err := models.ParseChannelKind(c.Kind)
	if err != nil {
		return Channel{}, fmt.Errorf("channel %q: %w", c.Name, err)
	}

	name := c.Name
	if name == "" {
		name = string(kind)
	}

	priorities := make([]models.Priority, 0, len(c.Priorities))
	for _, s := range c.Priorities {
		p, err := models.ParsePriority(s)
		if err != nil {
			return Channel{}, fmt.Errorf("channel %q: %w", name, err)
		}
		priorities = append(priorities, p)
	}

	settings := make(map[string]string, len(c.Settings))
	for k, v := range c.Settings {
		settings[k] = v
	}

	return Channel{
		Name:       name,
		Kind:       kind,
		Enabled:    c.IsEnabled(),
		Settings:   settings,
		Priorities: priorities,
	}, nil
}

// Registry holds configured channels keyed by name. Only the enabled flag
// may change after construction.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]*Channel
}

// NewRegistry builds a registry from channel configs.
func NewRegistry(configs []Config) (*Registry, error) {
	r := &Registry{channels: make(map[string]*Channel, len(configs))}
	for i := range configs {
		ch, err := configs[i].Build()
		if err != nil {
			return nil, err
		}
		if _, exists := r.channels[ch.Name]; exists {
			return nil, fmt.Errorf("duplicate channel name %q", ch.Name)
		}
		r.channels[ch.Name] = &ch
	}
	return r, nil
}

// Get returns the channel registered under name.
func (r *Registry) Get(name string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ch, ok := r.channels[name]
	if !ok {
		return Channel{}, false
	}
	return *ch, true
}

// SetEnabled toggles a channel. Returns false if the channel is unknown.
func (r *Registry) SetEnabled(name string, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.channels[name]
	if !ok {
		return false
	}
	ch.Enabled = enabled
	return true
}

// ApplyEnabled copies enabled flags from reloaded configs onto known channels.
// Channels that are new or removed in configs are ignored and their names
// returned so the caller can report them.
func (r *Registry) ApplyEnabled(configs []Config) (ignored []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(configs))
	for i := range configs {
		name := configs[i].Name
		if name == "" {
			kind, err := models.ParseChannelKind(configs[i].Kind)
			if err != nil {
				ignored = append(ignored, configs[i].Kind)
				continue
			}
			name = string(kind)
		}
		seen[name] = true
		ch, ok := r.channels[name]
		if !ok {
			ignored = append(ignored, name)
			continue
		}
		ch.Enabled = configs[i].IsEnabled()
	}
	for name := range r.channels {
		if !seen[name] {
			ignored = append(ignored, name)
		}
	}
	sort.Strings(ignored)
	return ignored
}

// List returns all channels sorted by name.
func (r *Registry) List() []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, *ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// NamesOfKind returns the names of channels with the given kind, sorted.
func (r *Registry) NamesOfKind(kind models.ChannelKind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for name, ch := range r.channels {
		if ch.Kind == kind {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Resolve maps template or override entries to channel names. An entry
// naming a registered channel is kept; an entry naming a kind expands to
// every channel of that kind. Unknown entries are kept so dispatch can
// report them as misconfigured. Duplicates are dropped, order is preserved.
func (r *Registry) Resolve(entries []string) []string {
	out := make([]string, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}

	for _, entry := range entries {
		if _, ok := r.Get(entry); ok {
			add(entry)
			continue
		}
		kind, err := models.ParseChannelKind(entry)
		if err != nil {
			add(entry)
			continue
		}
		names := r.NamesOfKind(kind)
		if len(names) == 0 {
			add(entry)
			continue
		}
		for _, name := range names {
			add(name)
		}
	}
	return out
}
