package alerts

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/good-yellow-bee/beacon/internal/models"
	"github.com/good-yellow-bee/beacon/internal/storage"
)

const (
	defaultLimit = 50
	maxLimit     = 500
	maxTextLen   = 4096
)

// ValidatePriority parses an optional priority.
func ValidatePriority(s string) (models.Priority, error) {
	if s == "" {
		return "", nil
	}
	p, err := models.ParsePriority(s)
	if err != nil {
		return "", errors.New("priority must be 'low', 'medium', 'high', or 'critical'")
	}
	return p, nil
}

// ValidateText checks an optional free-text field.
func ValidateText(field, s string) error {
	if len(s) > maxTextLen {
		return fmt.Errorf("%s must be %d characters or less", field, maxTextLen)
	}
	return nil
}

// ValidateDuration parses an optional Go duration.
func ValidateDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s duration", field)
	}
	return d, nil
}

// ParseListQuery converts query parameters to a filter and page.
func ParseListQuery(get func(string) string) (storage.Filter, storage.Page, error) {
	var filter storage.Filter
	page := storage.Page{Limit: defaultLimit}

	filter.EventType = strings.TrimSpace(get("event_type"))

	p, err := ValidatePriority(get("priority"))
	if err != nil {
		return filter, page, err
	}
	filter.Priority = p

	if filter.Acknowledged, err = parseOptionalBool("acknowledged", get("acknowledged")); err != nil {
		return filter, page, err
	}
	if filter.Resolved, err = parseOptionalBool("resolved", get("resolved")); err != nil {
		return filter, page, err
	}

	if s := get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return filter, page, errors.New("offset must be a non-negative integer")
		}
		page.Offset = n
	}
	if s := get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxLimit {
			return filter, page, fmt.Errorf("limit must be between 1 and %d", maxLimit)
		}
		page.Limit = n
	}
	return filter, page, nil
}

func parseOptionalBool(field, s string) (*bool, error) {
	if s == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, fmt.Errorf("%s must be true or false", field)
	}
	return &b, nil
}
