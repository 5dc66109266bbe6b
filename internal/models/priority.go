package models

import (
	"fmt"
	"strings"
)

// Priority represents the urgency of an alert.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Priorities lists all priorities from least to most urgent.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

// ParsePriority converts a string to Priority. Matching is case-insensitive.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow, nil
	case "medium":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	default:
		return "", fmt.Errorf("invalid priority %q", s)
	}
}

// Rank returns the ordinal of the priority (low=1 .. critical=4), 0 if unknown.
func (p Priority) Rank() int {
	for i, candidate := range Priorities {
		if candidate == p {
			return i + 1
		}
	}
	return 0
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p.Rank() > 0
}

// ChannelKind identifies a delivery channel transport.
type ChannelKind string

const (
	ChannelEmail   ChannelKind = "email"
	ChannelChat    ChannelKind = "chat"
	ChannelSMS     ChannelKind = "sms"
	ChannelWebhook ChannelKind = "webhook"
	ChannelLog     ChannelKind = "log"
)

// ParseChannelKind converts a string to ChannelKind.
func ParseChannelKind(s string) (ChannelKind, error) {
	switch ChannelKind(strings.ToLower(strings.TrimSpace(s))) {
	case ChannelEmail:
		return ChannelEmail, nil
	case ChannelChat, "slack", "teams":
		return ChannelChat, nil
	case ChannelSMS:
		return ChannelSMS, nil
	case ChannelWebhook:
		return ChannelWebhook, nil
	case ChannelLog, "system_log", "system-log":
		return ChannelLog, nil
	default:
		return "", fmt.Errorf("invalid channel kind %q", s)
	}
}
