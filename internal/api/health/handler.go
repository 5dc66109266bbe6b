// Package health provides health check endpoints for the API.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/beacon/pkg/config"
)

// DefaultCheckTimeout bounds each readiness checker.
const DefaultCheckTimeout = 5 * time.Second

// Checker defines the interface for health checkers.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// Handler manages health check endpoints.
type Handler struct {
	mu       sync.RWMutex
	checkers []Checker
	started  time.Time
	timeout  time.Duration
}

// NewHandler creates a new health handler.
func NewHandler() *Handler {
	return &Handler{
		started: time.Now(),
		timeout: DefaultCheckTimeout,
	}
}

// RegisterChecker adds a dependency checker. Checkers registered under the
// same name are all run; the last result wins in the response.
func (h *Handler) RegisterChecker(c Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers = append(h.checkers, c)
}

// CheckResult is the outcome of one checker.
type CheckResult struct {
	Status   string `json:"status"` // ok or fail
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version,omitempty"`
	Uptime  string                 `json:"uptime,omitempty"`
	Checks  map[string]CheckResult `json:"checks,omitempty"`
}

// Health reports the process is up along with build version and uptime.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: config.Version,
		Uptime:  time.Since(h.started).Truncate(time.Second).String(),
	})
}

// Live returns liveness probe status.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "live"})
}

// Ready runs the registered checkers concurrently and returns 503 if any fails.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	checkers := append([]Checker(nil), h.checkers...)
	h.mu.RUnlock()

	results := h.run(r.Context(), checkers)

	resp := HealthResponse{Status: "ready", Checks: make(map[string]CheckResult, len(results))}
	status := http.StatusOK
	for _, res := range results {
		resp.Checks[res.name] = res.CheckResult
		if res.Status != "ok" {
			resp.Status = "not_ready"
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}

type namedResult struct {
	name string
	CheckResult
}

func (h *Handler) run(ctx context.Context, checkers []Checker) []namedResult {
	results := make([]namedResult, len(checkers))

	var g errgroup.Group
	for i, checker := range checkers {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()

			start := time.Now()
			err := checker.Check(checkCtx)
			res := namedResult{
				name:        checker.Name(),
				CheckResult: CheckResult{Status: "ok", Duration: time.Since(start).String()},
			}
			if err != nil {
				res.Status = "fail"
				res.Error = err.Error()
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(results, func(i, j int) bool { return results[i].name < results[j].name })
	return results
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
