// Package api provides the HTTP REST API server.
package api

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/beacon/internal/api/alerts"
	"github.com/good-yellow-bee/beacon/internal/api/health"
	"github.com/good-yellow-bee/beacon/internal/dispatch"
)

// Config contains HTTP API server configuration.
type Config struct {
	Address string
	// JWTSecret enables bearer-token auth on /api/v1 when set.
	JWTSecret          []byte
	TokenTTL           time.Duration
	TLSEnabled         bool
	TLSCertFile        string
	TLSKeyFile         string
	RateLimitPerSecond float64
	RateLimitBurst     int
	Verbose            bool
}

// SetDefaults applies default values for missing configuration.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = 24 * time.Hour
	}
	if c.RateLimitPerSecond == 0 {
		c.RateLimitPerSecond = 20
	}
	if c.RateLimitBurst == 0 {
		c.RateLimitBurst = 40
	}
}

// Server is the HTTP API server.
type Server struct {
	config        *Config
	engine        alerts.Engine
	logger        *zap.Logger
	server        *http.Server
	healthHandler *health.Handler
}

// New creates a new API server.
func New(cfg *Config, eng alerts.Engine, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if eng == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg.SetDefaults()

	s := &Server{
		config:        cfg,
		engine:        eng,
		logger:        logger.Named("api"),
		healthHandler: health.NewHandler(),
	}
	s.healthHandler.RegisterChecker(health.NewChannelsChecker(
		func(ctx context.Context) []dispatch.ChannelHealth {
			return eng.HealthCheck(ctx).Channels
		},
	))

	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.setupRouter(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	if cfg.TLSEnabled {
		s.server.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
	}

	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Run starts the HTTP server and blocks until context is canceled.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP API listening",
			zap.String("address", s.config.Address),
			zap.Bool("tls", s.config.TLSEnabled),
			zap.Bool("auth", len(s.config.JWTSecret) > 0))
		var err error
		if s.config.TLSEnabled {
			err = s.server.ListenAndServeTLS(s.config.TLSCertFile, s.config.TLSKeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.config.Address
}

// RegisterHealthChecker adds a health checker to the server.
func (s *Server) RegisterHealthChecker(c health.Checker) {
	if s.healthHandler != nil {
		s.healthHandler.RegisterChecker(c)
	}
}
