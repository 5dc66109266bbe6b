package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/beacon/internal/api/alerts"
	"github.com/good-yellow-bee/beacon/internal/api/auth"
	"github.com/good-yellow-bee/beacon/internal/api/middleware"
)

// setupRouter creates and configures the chi router with all routes.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	ipLimiter := middleware.NewRateLimiter(s.config.RateLimitPerSecond, s.config.RateLimitBurst)

	// Global middleware
	r.Use(middleware.RequestLogger(s.logger, s.config.Verbose))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recoverer(s.logger))
	r.Use(middleware.PrometheusMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		JSONError(w, ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		JSONError(w, ErrMethodNotAllowed)
	})

	alertHandler := alerts.NewHandler(s.engine, s.logger)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(ipLimiter))
		if len(s.config.JWTSecret) > 0 {
			jwtService := auth.NewJWTService(s.config.JWTSecret, s.config.TokenTTL)
			r.Use(middleware.JWTAuth(jwtService, s.logger))
		}

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", alertHandler.List)
			r.Post("/", alertHandler.Raise)
			r.Post("/custom", alertHandler.Custom)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", alertHandler.GetByID)
				r.Post("/acknowledge", alertHandler.Acknowledge)
				r.Post("/resolve", alertHandler.Resolve)
			})
		})

		r.Post("/events", alertHandler.Events)
		r.Get("/channels/health", alertHandler.ChannelHealth)
	})

	// Health checks (public, no rate limit)
	r.Get("/health", s.healthHandler.Health)
	r.Get("/health/live", s.healthHandler.Live)
	r.Get("/health/ready", s.healthHandler.Ready)

	return r
}
