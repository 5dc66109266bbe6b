// Package dispatch fans raised alerts out to their delivery channels and
// re-dispatches failed deliveries.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/beacon/internal/channels"
	"github.com/good-yellow-bee/beacon/internal/clock"
	"github.com/good-yellow-bee/beacon/internal/metrics"
	"github.com/good-yellow-bee/beacon/internal/models"
	"github.com/good-yellow-bee/beacon/internal/notifier"
	"github.com/good-yellow-bee/beacon/internal/storage"
)

const (
	// DefaultConcurrency bounds parallel sends for one alert.
	DefaultConcurrency = 8
	// DefaultSendTimeout bounds a single channel send.
	DefaultSendTimeout = 30 * time.Second
)

// Options configures a Dispatcher.
type Options struct {
	// Concurrency bounds parallel sends per alert. 0 uses DefaultConcurrency.
	Concurrency int
	// SendTimeout bounds each send. 0 uses DefaultSendTimeout.
	SendTimeout time.Duration
	// Store receives the delivery log. Optional.
	Store  storage.AlertStore
	Clock  clock.Clock
	Logger *zap.Logger
}

// Report is the outcome of one dispatch of an alert.
type Report struct {
	AlertID string
	models.DeliveryAttempt
}

// Sent returns the number of channels that accepted the alert.
func (r Report) Sent() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == models.DeliverySent {
			n++
		}
	}
	return n
}

// Dispatcher delivers an alert to every channel listed on it.
type Dispatcher struct {
	registry    *channels.Registry
	senders     *notifier.Senders
	store       storage.AlertStore
	concurrency int
	sendTimeout time.Duration
	clock       clock.Clock
	logger      *zap.Logger
}

// NewDispatcher creates a dispatcher over the registry and senders.
func NewDispatcher(registry *channels.Registry, senders *notifier.Senders, opts Options) *Dispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Dispatcher{
		registry:    registry,
		senders:     senders,
		store:       opts.Store,
		concurrency: opts.Concurrency,
		sendTimeout: opts.SendTimeout,
		clock:       opts.Clock,
		logger:      opts.Logger.Named("dispatch"),
	}
}

// Dispatch sends alert to each of its channels in parallel and waits for
// all sends to settle. It never fails: every channel gets a result, in the
// order the channels are listed on the alert.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *models.Alert) Report {
	report := Report{
		AlertID: alert.ID,
		DeliveryAttempt: models.DeliveryAttempt{
			Attempt: alert.RetryCount + 1,
			At:      d.clock.Now(),
			Results: make([]models.ChannelResult, len(alert.Channels)),
		},
	}

	g := new(errgroup.Group)
	g.SetLimit(d.concurrency)

	for i, name := range alert.Channels {
		ch, sender, skipped := d.lookup(name, alert.Priority)
		if skipped != nil {
			report.Results[i] = *skipped
			d.observe(alert, *skipped)
			continue
		}
		g.Go(func() error {
			report.Results[i] = d.send(ctx, alert, ch, sender)
			return nil
		})
	}
	_ = g.Wait()

	if d.store != nil {
		d.store.RecordDelivery(alert.ID, report.DeliveryAttempt)
	}
	return report
}

// lookup resolves a channel name to a channel and sender. A non-nil result
// means the channel is not attempted.
func (d *Dispatcher) lookup(name string, priority models.Priority) (channels.Channel, notifier.Sender, *models.ChannelResult) {
	ch, ok := d.registry.Get(name)
	if !ok {
		return ch, nil, &models.ChannelResult{
			Channel: name,
			Status:  models.DeliveryMisconfigured,
			Error:   "channel not configured",
		}
	}

	result := &models.ChannelResult{Channel: ch.Name, Kind: ch.Kind}
	switch {
	case !ch.Enabled:
		result.Status = models.DeliverySkippedDisabled
		return ch, nil, result
	case !ch.Accepts(priority):
		result.Status = models.DeliverySkippedPriority
		return ch, nil, result
	}

	sender, ok := d.senders.Get(ch.Kind)
	if !ok {
		result.Status = models.DeliveryMisconfigured
		result.Error = fmt.Sprintf("no sender for kind %q", ch.Kind)
		return ch, nil, result
	}
	return ch, sender, nil
}

func (d *Dispatcher) send(ctx context.Context, alert *models.Alert, ch channels.Channel, sender notifier.Sender) (result models.ChannelResult) {
	result = models.ChannelResult{Channel: ch.Name, Kind: ch.Kind}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result.Status = models.DeliveryFailed
			result.Error = fmt.Sprintf("panic: %v", r)
		}
		result.Duration = time.Since(start)
		metrics.DeliveryDuration.WithLabelValues(ch.Name).Observe(result.Duration.Seconds())
		d.observe(alert, result)
	}()

	err := sender.Send(sendCtx, alert, ch)
	switch {
	case err == nil:
		result.Status = models.DeliverySent
	case errors.Is(err, notifier.ErrMisconfigured):
		result.Status = models.DeliveryMisconfigured
		result.Error = err.Error()
	default:
		result.Status = models.DeliveryFailed
		result.Error = err.Error()
	}
	return result
}

func (d *Dispatcher) observe(alert *models.Alert, result models.ChannelResult) {
	metrics.DeliveriesTotal.WithLabelValues(result.Channel, string(result.Status)).Inc()

	fields := []zap.Field{
		zap.String("alert_id", alert.ID),
		zap.String("event_type", alert.EventType),
		zap.String("channel", result.Channel),
		zap.String("status", string(result.Status)),
	}
	switch result.Status {
	case models.DeliveryFailed, models.DeliveryMisconfigured:
		d.logger.Warn("delivery failed", append(fields, zap.String("error", result.Error))...)
	default:
		d.logger.Debug("delivery", fields...)
	}
}
