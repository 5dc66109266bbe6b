// Package metrics provides Prometheus metrics for Beacon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "beacon"
)

// HTTP metrics
var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// HTTPRequestsInFlight tracks concurrent HTTP requests.
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)
)

// Alert lifecycle metrics
var (
	// AlertsRaisedTotal counts stored alerts.
	AlertsRaisedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "raised_total",
			Help:      "Total alerts raised and stored",
		},
		[]string{"event_type", "priority"},
	)

	// AlertsSuppressedTotal counts raises dropped by throttling.
	AlertsSuppressedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "suppressed_total",
			Help:      "Total alerts suppressed by the throttle window",
		},
		[]string{"event_type"},
	)

	// AlertsStored tracks alerts held in memory.
	AlertsStored = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "stored",
			Help:      "Number of alerts held in the store",
		},
	)

	// AlertTransitionsTotal counts acknowledge and resolve calls that found their alert.
	AlertTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "transitions_total",
			Help:      "Total lifecycle transitions",
		},
		[]string{"transition"}, // acknowledged, resolved
	)
)

// Rule metrics
var (
	// EventsReceivedTotal counts error events handed to the rule engine.
	EventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rules",
			Name:      "events_received_total",
			Help:      "Total error events received",
		},
		[]string{"source"}, // api, nats, direct
	)

	// RuleMatchesTotal counts rule matches.
	RuleMatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rules",
			Name:      "matches_total",
			Help:      "Total rule matches",
		},
		[]string{"rule"},
	)

	// PredicateErrorsTotal counts predicate evaluation failures.
	PredicateErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rules",
			Name:      "predicate_errors_total",
			Help:      "Total predicate evaluation errors",
		},
		[]string{"rule"},
	)
)

// Delivery metrics
var (
	// DeliveriesTotal counts per-channel delivery outcomes.
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "deliveries_total",
			Help:      "Total per-channel delivery outcomes",
		},
		[]string{"channel", "status"},
	)

	// DeliveryDuration tracks send latency per channel.
	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "delivery_duration_seconds",
			Help:      "Channel send latency in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"channel"},
	)

	// RetriesScheduledTotal counts scheduled re-dispatches.
	RetriesScheduledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "retries_scheduled_total",
			Help:      "Total re-dispatch attempts scheduled",
		},
	)

	// RetriesExhaustedTotal counts alerts left with failures after the last retry.
	RetriesExhaustedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "retries_exhausted_total",
			Help:      "Total alerts whose retry budget ran out",
		},
	)

	// EscalationsTotal counts escalation timer outcomes.
	EscalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "escalations_total",
			Help:      "Total escalation timer outcomes",
		},
		[]string{"outcome"}, // scheduled, fired, skipped, failed
	)
)

// Throttle metrics
var (
	// ThrottleBackendErrors counts backend failures that were treated as allow.
	ThrottleBackendErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "throttle",
			Name:      "backend_errors_total",
			Help:      "Total throttle backend errors (failed open)",
		},
		[]string{"backend"},
	)

	// ThrottleEntries tracks entries in the in-memory throttle map.
	ThrottleEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "throttle",
			Name:      "entries",
			Help:      "Number of live entries in the in-memory throttle map",
		},
	)
)

// Ingest metrics
var (
	// IngestMessagesTotal counts messages received from the queue.
	IngestMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "messages_total",
			Help:      "Total ingest messages by result",
		},
		[]string{"result"}, // ok, decode_error
	)
)

// Info metric
var (
	// BuildInfo exposes build information.
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "commit", "build_time"},
	)
)

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, commit, buildTime string) {
	BuildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}
