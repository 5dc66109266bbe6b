// Package alerts serves the alert and event endpoints.
package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/beacon/internal/api/middleware"
	"github.com/good-yellow-bee/beacon/internal/engine"
	"github.com/good-yellow-bee/beacon/internal/models"
	"github.com/good-yellow-bee/beacon/internal/storage"
)

// Response helpers (local to avoid import cycle with api package)
type errorResponse struct {
	Error errorBody `json:"error"`
}
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
type dataResponse struct {
	Data any `json:"data"`
}

const (
	errCodeBadRequest       = "BAD_REQUEST"
	errCodeValidationFailed = "VALIDATION_FAILED"
	errCodeNotFound         = "NOT_FOUND"
	errCodeInternalError    = "INTERNAL_ERROR"
	errCodeUnavailable      = "UNAVAILABLE"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

func (h *Handler) jsonError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponse{Error: errorBody{Code: code, Message: message}}); err != nil {
		h.logger.Warn("json encode error", zap.Error(err))
	}
}

func (h *Handler) jsonStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(dataResponse{Data: data}); err != nil {
		h.logger.Warn("json encode error", zap.Error(err))
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		h.jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return false
	}
	return true
}

// Engine is the subset of the alerting engine served over HTTP.
type Engine interface {
	Raise(ctx context.Context, eventType string, data map[string]any, opts engine.RaiseOptions) (*models.Alert, error)
	SendCustomAlert(ctx context.Context, custom engine.CustomAlert) (*models.Alert, error)
	HandleEvent(ctx context.Context, event models.ErrorEvent, eventContext map[string]any) ([]models.Alert, error)
	Acknowledge(id, actor, note string) bool
	Resolve(id, actor, solution string) bool
	List(filter storage.Filter, page storage.Page) ([]models.Alert, int)
	Get(id string) (models.Alert, bool)
	HealthCheck(ctx context.Context) engine.Health
}

// Handler handles alert endpoints.
type Handler struct {
	engine Engine
	logger *zap.Logger
}

// NewHandler creates an alerts handler.
func NewHandler(eng Engine, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{engine: eng, logger: logger}
}

// Request types
type RaiseRequest struct {
	EventType  string         `json:"event_type"`
	Data       map[string]any `json:"data"`
	Priority   string         `json:"priority"`
	Channels   []string       `json:"channels"`
	Message    string         `json:"message"`
	Escalation string         `json:"escalation"`
	Source     *models.Source `json:"source"`
}

type CustomRequest struct {
	Title    string         `json:"title"`
	Body     string         `json:"body"`
	Priority string         `json:"priority"`
	Channels []string       `json:"channels"`
	Data     map[string]any `json:"data"`
}

type AcknowledgeRequest struct {
	Actor string `json:"actor"`
	Note  string `json:"note"`
}

type ResolveRequest struct {
	Actor    string `json:"actor"`
	Solution string `json:"solution"`
}

// EventRequest carries an application error and free-form context.
type EventRequest struct {
	Error   EventError     `json:"error"`
	Context map[string]any `json:"context"`
}

type EventError struct {
	Code      string    `json:"code"`
	Category  string    `json:"category"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ToEvent converts the request error to a domain event.
func (e EventError) ToEvent() models.ErrorEvent {
	return models.ErrorEvent{
		Code:      e.Code,
		Category:  e.Category,
		Severity:  e.Severity,
		Message:   e.Message,
		Timestamp: e.Timestamp,
	}
}

// Response types
type ListResponse struct {
	Items  []models.Alert `json:"items"`
	Total  int            `json:"total"`
	Offset int            `json:"offset"`
	Limit  int            `json:"limit"`
}

type SuppressedResponse struct {
	Suppressed bool   `json:"suppressed"`
	EventType  string `json:"event_type"`
}

type EventResponse struct {
	Alerts []models.Alert `json:"alerts"`
	Error  string         `json:"error,omitempty"`
}

// List returns alerts matching the query filters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter, page, err := ParseListQuery(r.URL.Query().Get)
	if err != nil {
		h.jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
		return
	}

	items, total := h.engine.List(filter, page)
	if items == nil {
		items = []models.Alert{}
	}
	h.jsonStatus(w, http.StatusOK, ListResponse{
		Items:  items,
		Total:  total,
		Offset: page.Offset,
		Limit:  page.Limit,
	})
}

// GetByID returns an alert by ID.
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	alert, ok := h.engine.Get(chi.URLParam(r, "id"))
	if !ok {
		h.jsonError(w, http.StatusNotFound, errCodeNotFound, "alert not found")
		return
	}
	h.jsonStatus(w, http.StatusOK, alert)
}

// Raise raises an alert for a known event type.
func (h *Handler) Raise(w http.ResponseWriter, r *http.Request) {
	var req RaiseRequest
	if !h.decode(w, r, &req) {
		return
	}

	req.EventType = strings.TrimSpace(req.EventType)
	if req.EventType == "" {
		h.jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "event_type is required")
		return
	}
	priority, err := ValidatePriority(req.Priority)
	if err != nil {
		h.jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
		return
	}
	if err := ValidateText("message", req.Message); err != nil {
		h.jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
		return
	}
	escalation, err := ValidateDuration("escalation", req.Escalation)
	if err != nil {
		h.jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
		return
	}

	opts := engine.RaiseOptions{
		Priority:        priority,
		Channels:        req.Channels,
		Message:         req.Message,
		EscalationDelay: escalation,
	}
	if req.Source != nil {
		opts.Source = *req.Source
	}

	alert, err := h.engine.Raise(r.Context(), req.EventType, req.Data, opts)
	switch {
	case errors.Is(err, engine.ErrSuppressed):
		h.jsonStatus(w, http.StatusOK, SuppressedResponse{Suppressed: true, EventType: req.EventType})
		return
	case err != nil:
		h.raiseFailed(w, r, err)
		return
	}
	h.jsonStatus(w, http.StatusCreated, alert)
}

// Custom raises an ad-hoc alert.
func (h *Handler) Custom(w http.ResponseWriter, r *http.Request) {
	var req CustomRequest
	if !h.decode(w, r, &req) {
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		h.jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "title is required")
		return
	}
	for field, value := range map[string]string{"title": req.Title, "body": req.Body} {
		if err := ValidateText(field, value); err != nil {
			h.jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
			return
		}
	}
	priority, err := ValidatePriority(req.Priority)
	if err != nil {
		h.jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
		return
	}

	alert, err := h.engine.SendCustomAlert(r.Context(), engine.CustomAlert{
		Title:    req.Title,
		Body:     req.Body,
		Priority: priority,
		Channels: req.Channels,
		Data:     req.Data,
	})
	if err != nil {
		h.raiseFailed(w, r, err)
		return
	}
	h.jsonStatus(w, http.StatusCreated, alert)
}

func (h *Handler) raiseFailed(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, engine.ErrUnknownEventType):
		h.jsonError(w, http.StatusBadRequest, errCodeBadRequest, err.Error())
	case errors.Is(err, engine.ErrClosed):
		h.jsonError(w, http.StatusServiceUnavailable, errCodeUnavailable, "engine is shutting down")
	default:
		h.logger.Error("raise failed",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err))
		h.jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
	}
}

// Acknowledge stamps an alert as acknowledged.
func (h *Handler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	var req AcknowledgeRequest
	if !h.decode(w, r, &req) {
		return
	}
	actor, ok := h.actor(w, r, req.Actor)
	if !ok {
		return
	}
	if err := ValidateText("note", req.Note); err != nil {
		h.jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
		return
	}

	id := chi.URLParam(r, "id")
	if !h.engine.Acknowledge(id, actor, req.Note) {
		h.jsonError(w, http.StatusNotFound, errCodeNotFound, "alert not found")
		return
	}
	h.current(w, id)
}

// Resolve stamps an alert as resolved.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if !h.decode(w, r, &req) {
		return
	}
	actor, ok := h.actor(w, r, req.Actor)
	if !ok {
		return
	}
	if err := ValidateText("solution", req.Solution); err != nil {
		h.jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
		return
	}

	id := chi.URLParam(r, "id")
	if !h.engine.Resolve(id, actor, req.Solution) {
		h.jsonError(w, http.StatusNotFound, errCodeNotFound, "alert not found")
		return
	}
	h.current(w, id)
}

// actor picks the request actor, falling back to the token subject.
func (h *Handler) actor(w http.ResponseWriter, r *http.Request, requested string) (string, bool) {
	actor := strings.TrimSpace(requested)
	if actor == "" {
		actor = middleware.GetSubject(r.Context())
	}
	if actor == "" {
		h.jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "actor is required")
		return "", false
	}
	if len(actor) > 200 {
		h.jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "actor must be 200 characters or less")
		return "", false
	}
	return actor, true
}

func (h *Handler) current(w http.ResponseWriter, id string) {
	alert, ok := h.engine.Get(id)
	if !ok {
		h.jsonError(w, http.StatusNotFound, errCodeNotFound, "alert not found")
		return
	}
	h.jsonStatus(w, http.StatusOK, alert)
}

// Events evaluates an application error against the rules.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if !h.decode(w, r, &req) {
		return
	}

	event := req.Error.ToEvent()
	if event.Code == "" && event.Category == "" && event.Message == "" {
		h.jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "error code, category or message is required")
		return
	}

	alerts, err := h.engine.HandleEvent(engine.WithSource(r.Context(), "api"), event, req.Context)
	if errors.Is(err, engine.ErrClosed) {
		h.jsonError(w, http.StatusServiceUnavailable, errCodeUnavailable, "engine is shutting down")
		return
	}

	resp := EventResponse{Alerts: alerts}
	if resp.Alerts == nil {
		resp.Alerts = []models.Alert{}
	}
	if err != nil {
		h.logger.Warn("event handling incomplete",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.String("code", event.Code),
			zap.Error(err))
		resp.Error = err.Error()
	}
	h.jsonStatus(w, http.StatusOK, resp)
}

// ChannelHealth reports per-channel status.
func (h *Handler) ChannelHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	h.jsonStatus(w, http.StatusOK, h.engine.HealthCheck(ctx))
}
