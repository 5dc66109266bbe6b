package health

import (
	"context"
	"fmt"
	"strings"

	"github.com/good-yellow-bee/beacon/internal/dispatch"
)

// Pinger interface for backends that support ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker checks a pingable backend such as the Redis throttle store.
type PingChecker struct {
	name   string
	pinger Pinger
}

// NewPingChecker creates a checker named name.
func NewPingChecker(name string, p Pinger) *PingChecker {
	return &PingChecker{name: name, pinger: p}
}

// Name returns the checker name.
func (c *PingChecker) Name() string {
	return c.name
}

// Check pings the backend.
func (c *PingChecker) Check(ctx context.Context) error {
	if c.pinger == nil {
		return fmt.Errorf("%s not configured", c.name)
	}
	return c.pinger.Ping(ctx)
}

// ChannelProber reports per-channel health.
type ChannelProber func(ctx context.Context) []dispatch.ChannelHealth

// ChannelsChecker fails when any enabled channel reports an error.
type ChannelsChecker struct {
	prober ChannelProber
}

// NewChannelsChecker creates a channels checker.
func NewChannelsChecker(p ChannelProber) *ChannelsChecker {
	return &ChannelsChecker{prober: p}
}

// Name returns the checker name.
func (c *ChannelsChecker) Name() string {
	return "channels"
}

// Check probes every channel.
func (c *ChannelsChecker) Check(ctx context.Context) error {
	var failing []string
	for _, ch := range c.prober(ctx) {
		if ch.Status == dispatch.HealthError {
			failing = append(failing, ch.Channel)
		}
	}
	if len(failing) > 0 {
		return fmt.Errorf("channels failing: %s", strings.Join(failing, ", "))
	}
	return nil
}
