package alerting

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/good-yellow-bee/beacon/internal/models"
)

// Predicate is a custom rule condition over an event and its context.
type Predicate interface {
	Match(event models.ErrorEvent, context map[string]any) (bool, error)
}

// PredicateFunc adapts a function to Predicate.
type PredicateFunc func(event models.ErrorEvent, context map[string]any) (bool, error)

// Match implements Predicate.
func (f PredicateFunc) Match(event models.ErrorEvent, context map[string]any) (bool, error) {
	return f(event, context)
}

// Registry holds named predicates. Rules refer to predicates by name so
// they stay serializable.
type Registry struct {
	mu         sync.RWMutex
	predicates map[string]Predicate
}

// NewRegistry creates an empty predicate registry.
func NewRegistry() *Registry {
	return &Registry{predicates: make(map[string]Predicate)}
}

// Register adds a predicate under name.
func (r *Registry) Register(name string, p Predicate) error {
	if name == "" {
		return fmt.Errorf("predicate name is required")
	}
	if p == nil {
		return fmt.Errorf("predicate %q is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.predicates[name]; exists {
		return fmt.Errorf("predicate %q already registered", name)
	}
	r.predicates[name] = p
	return nil
}

// RegisterExpr compiles an expr-lang expression and registers it under its
// source text. Registering the same source again is a no-op.
func (r *Registry) RegisterExpr(source string) (string, error) {
	r.mu.RLock()
	_, exists := r.predicates[source]
	r.mu.RUnlock()
	if exists {
		return source, nil
	}

	p, err := NewExprPredicate(source)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.predicates[source]; !exists {
		r.predicates[source] = p
	}
	return source, nil
}

// Lookup returns the predicate registered under name.
func (r *Registry) Lookup(name string) (Predicate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.predicates[name]
	return p, ok
}

// Names returns registered predicate names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.predicates))
	for name := range r.predicates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExprPredicate evaluates a compiled expr-lang expression.
type ExprPredicate struct {
	source  string
	program *vm.Program
}

// NewExprPredicate compiles source against the event environment.
// The environment exposes code, category, severity, message, timestamp
// and context.
func NewExprPredicate(source string) (*ExprPredicate, error) {
	program, err := expr.Compile(source,
		expr.Env(sampleEnv()),
		expr.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("compile expression: %w", err)
	}
	return &ExprPredicate{source: source, program: program}, nil
}

// Match implements Predicate.
func (p *ExprPredicate) Match(event models.ErrorEvent, context map[string]any) (bool, error) {
	result, err := expr.Run(p.program, buildEnv(event, context))
	if err != nil {
		return false, fmt.Errorf("evaluate expression: %w", err)
	}

	matched, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("expression did not return bool: got %T", result)
	}
	return matched, nil
}

// Source returns the expression text.
func (p *ExprPredicate) Source() string {
	return p.source
}

func sampleEnv() map[string]any {
	return map[string]any{
		"code":      "",
		"category":  "",
		"severity":  "",
		"message":   "",
		"timestamp": time.Time{},
		"context":   map[string]any{},
	}
}

func buildEnv(event models.ErrorEvent, context map[string]any) map[string]any {
	if context == nil {
		context = map[string]any{}
	}
	return map[string]any{
		"code":      event.Code,
		"category":  event.Category,
		"severity":  event.Severity,
		"message":   event.Message,
		"timestamp": event.Timestamp,
		"context":   context,
	}
}
