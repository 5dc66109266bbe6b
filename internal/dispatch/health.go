package dispatch

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/beacon/internal/models"
	"github.com/good-yellow-bee/beacon/internal/notifier"
)

// Channel health states.
const (
	HealthOK       = "ok"
	HealthDisabled = "disabled"
	HealthError    = "error"
	// HealthUnknown means the sender cannot probe its channel.
	HealthUnknown = "unknown"
)

// ChannelHealth is the reported state of one channel.
type ChannelHealth struct {
	Channel string             `json:"channel"`
	Kind    models.ChannelKind `json:"kind"`
	Enabled bool               `json:"enabled"`
	Status  string             `json:"status"`
	Error   string             `json:"error,omitempty"`
	Latency time.Duration      `json:"latency,omitempty"`
}

// Health probes every configured channel in parallel. Results are sorted
// by channel name.
func (d *Dispatcher) Health(ctx context.Context) []ChannelHealth {
	list := d.registry.List()
	out := make([]ChannelHealth, len(list))

	g := new(errgroup.Group)
	g.SetLimit(d.concurrency)

	for i, ch := range list {
		out[i] = ChannelHealth{Channel: ch.Name, Kind: ch.Kind, Enabled: ch.Enabled}
		if !ch.Enabled {
			out[i].Status = HealthDisabled
			continue
		}

		sender, ok := d.senders.Get(ch.Kind)
		if !ok {
			out[i].Status = HealthError
			out[i].Error = "no sender for kind " + string(ch.Kind)
			continue
		}
		checker, ok := sender.(notifier.HealthChecker)
		if !ok {
			out[i].Status = HealthUnknown
			continue
		}

		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
			defer cancel()

			start := time.Now()
			err := checker.Check(checkCtx, ch)
			out[i].Latency = time.Since(start)
			if err != nil {
				out[i].Status = HealthError
				out[i].Error = err.Error()
				return nil
			}
			out[i].Status = HealthOK
			return nil
		})
	}
	_ = g.Wait()
	return out
}
