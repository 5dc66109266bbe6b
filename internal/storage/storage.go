// Package storage holds raised alerts for the lifetime of the process.
package storage

import (
	"errors"
	"time"

	"github.com/good-yellow-bee/beacon/internal/models"
)

// Sentinel errors.
var (
	ErrDuplicateID = errors.New("alert id already exists")
	ErrEmptyID     = errors.New("alert id is required")
)

// Filter narrows a listing. Zero-value fields match everything; set
// fields are ANDed.
type Filter struct {
	EventType    string
	Priority     models.Priority
	Acknowledged *bool
	Resolved     *bool
}

// Matches reports whether alert satisfies the filter.
func (f Filter) Matches(alert *models.Alert) bool {
	if f.EventType != "" && alert.EventType != f.EventType {
		return false
	}
	if f.Priority != "" && alert.Priority != f.Priority {
		return false
	}
	if f.Acknowledged != nil && alert.IsAcknowledged() != *f.Acknowledged {
		return false
	}
	if f.Resolved != nil && alert.IsResolved() != *f.Resolved {
		return false
	}
	return true
}

// Page selects a slice of a sorted listing. Limit <= 0 means no limit.
type Page struct {
	Offset int
	Limit  int
}

// AlertStore is the alert collection used by the engine.
type AlertStore interface {
	// Create inserts a new alert. The id must be unique.
	Create(alert *models.Alert) error
	// Get returns a copy of the alert.
	Get(id string) (models.Alert, bool)
	// List returns matching alerts newest first and the match count before paging.
	List(filter Filter, page Page) ([]models.Alert, int)
	// Acknowledge stamps the alert. Returns false if the id is unknown.
	Acknowledge(id, actor, note string) bool
	// Resolve stamps the alert. Returns false if the id is unknown.
	Resolve(id, actor, solution string) bool
	// RecordRetry increments the retry counter and returns the new value.
	RecordRetry(id string, at time.Time) (int, bool)
	// RecordDelivery appends a dispatch attempt to the alert's delivery log.
	RecordDelivery(id string, attempt models.DeliveryAttempt) bool
	// Len returns the number of stored alerts.
	Len() int
}
