// Package throttle suppresses repeated alerts for the same event type and
// data fingerprint inside a template's throttle window.
package throttle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/beacon/internal/catalog"
	"github.com/good-yellow-bee/beacon/internal/metrics"
)

// Backend records raises per fingerprint key.
type Backend interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	// Acquire records a raise for key and returns true, unless a raise younger
	// than window is already recorded, in which case it returns false and
	// leaves the existing entry untouched.
	Acquire(ctx context.Context, key string, window time.Duration) (bool, error)
}

// TemplateSource resolves the throttle window for an event type.
type TemplateSource interface {
	Get(eventType string) (catalog.Template, bool)
}

// Controller gates raises through a Backend.
type Controller struct {
	templates TemplateSource
	backend   Backend
	logger    *zap.Logger
}

// NewController creates a throttle controller.
func NewController(templates TemplateSource, backend Backend, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		templates: templates,
		backend:   backend,
		logger:    logger,
	}
}

// ShouldSuppress reports whether a raise of eventType with data must be
// dropped. Event types without a throttle window are never suppressed.
// Backend errors allow the raise.
func (c *Controller) ShouldSuppress(ctx context.Context, eventType string, data map[string]any) bool {
	tmpl, ok := c.templates.Get(eventType)
	if !ok || tmpl.ThrottleWindow <= 0 {
		return false
	}

	key := Fingerprint(eventType, data)
	allowed, err := c.backend.Acquire(ctx, key, tmpl.ThrottleWindow)
	if err != nil {
		metrics.ThrottleBackendErrors.WithLabelValues(c.backend.Name()).Inc()
		c.logger.Warn("throttle backend failed, allowing alert",
			zap.String("backend", c.backend.Name()),
			zap.String("event_type", eventType),
			zap.Error(err))
		return false
	}
	return !allowed
}

// Fingerprint returns the throttle key for an event type and data bag.
// Map keys are serialized in sorted order so equal bags produce equal keys.
func Fingerprint(eventType string, data map[string]any) string {
	h := sha256.New()
	h.Write([]byte(eventType))
	h.Write([]byte{'|'})
	h.Write(canonical(data))
	return hex.EncodeToString(h.Sum(nil))
}

// canonical serializes data with sorted keys. encoding/json sorts map keys;
// values it cannot encode fall back to their %#v form.
func canonical(data map[string]any) []byte {
	if len(data) == 0 {
		return []byte("{}")
	}
	if b, err := json.Marshal(data); err == nil {
		return b
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []byte
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%q=%#v;", k, data[k])...)
	}
	return out
}
