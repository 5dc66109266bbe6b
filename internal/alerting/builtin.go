package alerting

import (
	"strings"

	"github.com/good-yellow-bee/beacon/internal/models"
)

// Built-in predicate names registered by NewDefaultRegistry.
const (
	PredicateCritical     = "critical"
	PredicateSevere       = "severe"
	PredicateTimeout      = "timeout"
	PredicateHasComponent = "has_component"
)

// NewDefaultRegistry creates a registry holding the built-in predicates:
//
//	critical       severity is critical
//	severe         severity is high or critical
//	timeout        code or message mentions a timeout
//	has_component  context carries a non-empty "component"
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	builtins := map[string]PredicateFunc{
		PredicateCritical: func(e models.ErrorEvent, _ map[string]any) (bool, error) {
			return strings.EqualFold(e.Severity, "critical"), nil
		},
		PredicateSevere: func(e models.ErrorEvent, _ map[string]any) (bool, error) {
			return strings.EqualFold(e.Severity, "critical") || strings.EqualFold(e.Severity, "high"), nil
		},
		PredicateTimeout: func(e models.ErrorEvent, _ map[string]any) (bool, error) {
			return containsFold(e.Code, "timeout") || containsFold(e.Message, "timeout") ||
				containsFold(e.Message, "timed out"), nil
		},
		PredicateHasComponent: func(_ models.ErrorEvent, ctx map[string]any) (bool, error) {
			s, _ := ctx["component"].(string)
			return strings.TrimSpace(s) != "", nil
		},
	}
	for name, p := range builtins {
		// names are distinct constants
		_ = r.Register(name, p)
	}
	return r
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), substr)
}
