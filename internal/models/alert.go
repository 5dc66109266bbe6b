package models

import (
	"time"
)

// Source describes where a raised alert originated.
type Source struct {
	Component string `json:"component,omitempty"`
	Function  string `json:"function,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Acknowledgement records that an operator has seen an alert.
type Acknowledgement struct {
	At   time.Time `json:"at"`
	By   string    `json:"by"`
	Note string    `json:"note,omitempty"`
}

// Resolution records that an operator has closed an alert.
type Resolution struct {
	At       time.Time `json:"at"`
	By       string    `json:"by"`
	Solution string    `json:"solution,omitempty"`
}

// Alert is a single raised notification with lifecycle state.
type Alert struct {
	ID        string         `json:"id"`
	EventType string         `json:"event_type"`
	Priority  Priority       `json:"priority"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Data      map[string]any `json:"data,omitempty"`
	Source    Source         `json:"source"`
	CreatedAt time.Time      `json:"created_at"`
	// Channels are channel names resolved from the template or overrides.
	Channels    []string  `json:"channels"`
	RetryCount  int       `json:"retry_count"`
	LastRetryAt time.Time `json:"last_retry_at,omitempty"`
	// EscalatedFrom is the ID of the alert this one escalates, if any.
	EscalatedFrom   string            `json:"escalated_from,omitempty"`
	Acknowledgement *Acknowledgement  `json:"acknowledgement,omitempty"`
	Resolution      *Resolution       `json:"resolution,omitempty"`
	Deliveries      []DeliveryAttempt `json:"deliveries,omitempty"`
}

// IsAcknowledged reports whether the alert carries an acknowledgement stamp.
func (a *Alert) IsAcknowledged() bool {
	return a.Acknowledgement != nil
}

// IsResolved reports whether the alert carries a resolution stamp.
func (a *Alert) IsResolved() bool {
	return a.Resolution != nil
}

// Clone returns a deep copy safe to hand out of a store.
func (a *Alert) Clone() Alert {
	c := *a
	if a.Data != nil {
		c.Data = make(map[string]any, len(a.Data))
		for k, v := range a.Data {
			c.Data[k] = v
		}
	}
	c.Channels = append([]string(nil), a.Channels...)
	if a.Acknowledgement != nil {
		ack := *a.Acknowledgement
		c.Acknowledgement = &ack
	}
	if a.Resolution != nil {
		res := *a.Resolution
		c.Resolution = &res
	}
	if a.Deliveries != nil {
		c.Deliveries = make([]DeliveryAttempt, len(a.Deliveries))
		for i, d := range a.Deliveries {
			d.Results = append([]ChannelResult(nil), d.Results...)
			c.Deliveries[i] = d
		}
	}
	return c
}

// ErrorEvent is a domain error reported by application code.
type ErrorEvent struct {
	Code      string    `json:"code"`
	Category  string    `json:"category"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Fields flattens the event into a data bag used for rendering.
func (e ErrorEvent) Fields() map[string]any {
	fields := map[string]any{
		"code":     e.Code,
		"category": e.Category,
		"severity": e.Severity,
		"message":  e.Message,
	}
	if !e.Timestamp.IsZero() {
		fields["timestamp"] = e.Timestamp.Format(time.RFC3339)
	}
	return fields
}
