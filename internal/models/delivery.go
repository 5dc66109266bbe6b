// Package models defines domain models for Beacon.
package models

import "time"

// DeliveryStatus is the outcome of one channel within a dispatch attempt.
type DeliveryStatus string

const (
	DeliverySent            DeliveryStatus = "sent"
	DeliveryFailed          DeliveryStatus = "failed"
	DeliverySkippedDisabled DeliveryStatus = "skipped_disabled"
	DeliverySkippedPriority DeliveryStatus = "skipped_priority"
	DeliveryMisconfigured   DeliveryStatus = "misconfigured"
)

// ChannelResult records what happened to one channel.
type ChannelResult struct {
	Channel  string         `json:"channel"`
	Kind     ChannelKind    `json:"kind,omitempty"`
	Status   DeliveryStatus `json:"status"`
	Error    string         `json:"error,omitempty"`
	Duration time.Duration  `json:"duration,omitempty"`
}

// Attempted reports whether a send was actually invoked for this channel.
func (r ChannelResult) Attempted() bool {
	return r.Status == DeliverySent || r.Status == DeliveryFailed
}

// DeliveryAttempt records one fan-out over the alert's channels.
type DeliveryAttempt struct {
	Attempt int             `json:"attempt"`
	At      time.Time       `json:"at"`
	Results []ChannelResult `json:"results"`
}

// Failed returns the names of channels whose send failed.
func (d DeliveryAttempt) Failed() []string {
	var failed []string
	for _, r := range d.Results {
		if r.Status == DeliveryFailed {
			failed = append(failed, r.Channel)
		}
	}
	return failed
}
