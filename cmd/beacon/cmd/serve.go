package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/beacon/internal/alerting"
	"github.com/good-yellow-bee/beacon/internal/api"
	"github.com/good-yellow-bee/beacon/internal/api/health"
	"github.com/good-yellow-bee/beacon/internal/catalog"
	"github.com/good-yellow-bee/beacon/internal/channels"
	"github.com/good-yellow-bee/beacon/internal/clock"
	"github.com/good-yellow-bee/beacon/internal/dispatch"
	"github.com/good-yellow-bee/beacon/internal/engine"
	"github.com/good-yellow-bee/beacon/internal/ingest"
	"github.com/good-yellow-bee/beacon/internal/logging"
	"github.com/good-yellow-bee/beacon/internal/metrics"
	"github.com/good-yellow-bee/beacon/internal/notifier"
	"github.com/good-yellow-bee/beacon/internal/reload"
	"github.com/good-yellow-bee/beacon/internal/storage"
	"github.com/good-yellow-bee/beacon/internal/throttle"
	"github.com/good-yellow-bee/beacon/pkg/config"
)

var httpAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the alerting service",
	Long: `Run the HTTP API, the alerting engine and, when enabled, the metrics
exporter and NATS ingest. The configuration file is watched and channel
enabled flags and rules are reloaded on change.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	serveCmd.Flags().StringVarP(&httpAddr, "address", "a", "", "HTTP listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

// service holds the wired components of a running beacon.
type service struct {
	cfg      *Config
	logger   *zap.Logger
	engine   *engine.Engine
	senders  *notifier.Senders
	redis    *redis.Client
	throttle throttle.Backend
}

func runServe(cmd *cobra.Command, args []string) error {
	var cfg *Config

	// Load configuration from file if provided
	if configFile != "" {
		var err error
		cfg, err = LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = DefaultConfig()
	}

	// Override with CLI flags
	if httpAddr != "" {
		cfg.Server.HTTPAddress = httpAddr
	}
	cfg.Verbose = verbose

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	metrics.SetBuildInfo(config.Version, config.Commit, config.BuildTime)

	svc, err := newService(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	apiServer, err := api.New(&api.Config{
		Address:            cfg.Server.HTTPAddress,
		JWTSecret:          []byte(cfg.Auth.JWTSecret),
		TokenTTL:           mustDuration(cfg.Auth.TokenTTL),
		TLSEnabled:         cfg.Server.TLS.Enabled,
		TLSCertFile:        cfg.Server.TLS.CertFile,
		TLSKeyFile:         cfg.Server.TLS.KeyFile,
		RateLimitPerSecond: cfg.Server.RateLimit.PerSecond,
		RateLimitBurst:     cfg.Server.RateLimit.Burst,
		Verbose:            cfg.Verbose,
	}, svc.engine, logger)
	if err != nil {
		return fmt.Errorf("create api server: %w", err)
	}
	if svc.redis != nil {
		apiServer.RegisterHealthChecker(health.NewPingChecker("redis", svc.throttle.(health.Pinger)))
	}
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("auth.jwt_secret is not set, the API is unauthenticated")
	}

	var subscriber *ingest.Subscriber
	if cfg.Ingest.Enabled {
		subscriber = ingest.NewSubscriber(svc.engine, logger)
		if err := subscriber.Start(ingest.Config{
			URLs:    cfg.Ingest.URLs,
			Subject: cfg.Ingest.Subject,
			Queue:   cfg.Ingest.Queue,
		}); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return apiServer.Run(ctx)
	})

	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics.Address, logger)
		g.Go(metricsServer.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	if subscriber != nil {
		g.Go(func() error {
			<-ctx.Done()
			return subscriber.Close()
		})
	}

	if cfg.Path() != "" {
		watcher, err := reload.New([]string{cfg.Path(), cfg.RulesPath()}, func() error {
			return svc.Reload(cfg.Path())
		}, reload.Options{Logger: logger})
		if err != nil {
			logger.Warn("config reload disabled", zap.Error(err))
		} else {
			g.Go(func() error {
				watcher.Run(ctx)
				return nil
			})
		}
	}

	logger.Info("starting beacon",
		zap.String("version", config.Version),
		zap.String("http", cfg.Server.HTTPAddress),
		zap.String("throttle", svc.throttle.Name()),
		zap.Int("channels", len(cfg.Channels)))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run server: %w", err)
	}

	logger.Info("beacon stopped")
	return nil
}

// newService wires the engine and its dependencies from cfg.
func newService(cfg *Config, logger *zap.Logger) (*service, error) {
	clk := clock.Real{}

	cat, err := catalog.New(cfg.Templates)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	registry, err := channels.NewRegistry(cfg.Channels)
	if err != nil {
		return nil, fmt.Errorf("load channels: %w", err)
	}

	predicates := alerting.NewDefaultRegistry()
	rules, err := cfg.LoadAllRules(predicates)
	if err != nil {
		return nil, err
	}
	ruleEngine, err := alerting.NewEngine(rules, alerting.EngineOptions{
		Predicates: predicates,
		Clock:      clk,
		Logger:     logger.Named("rules"),
	})
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	senders, err := buildSenders(cfg, logger)
	if err != nil {
		return nil, err
	}

	svc := &service{cfg: cfg, logger: logger, senders: senders}

	switch cfg.Throttle.Backend {
	case "redis":
		svc.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Throttle.Redis.Addr,
			Password: cfg.Throttle.Redis.Password,
			DB:       cfg.Throttle.Redis.DB,
		})
		backend := throttle.NewRedisBackend(svc.redis, cfg.Throttle.Redis.Prefix)
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := backend.Ping(pingCtx); err != nil {
			logger.Warn("redis throttle backend unreachable, raises fail open until it recovers", zap.Error(err))
		}
		cancel()
		svc.throttle = backend
	default:
		svc.throttle = throttle.NewMemoryBackend(clk)
	}

	scope, _ := dispatch.ParseScope(cfg.Retry.Scope)
	policy, _ := engine.ParsePolicy(cfg.Escalation.Policy)

	svc.engine, err = engine.New(engine.Deps{
		Catalog:  cat,
		Registry: registry,
		Senders:  senders,
		Rules:    ruleEngine,
		Store: storage.NewMemoryStore(storage.MemoryOptions{
			Clock:     clk,
			MaxAlerts: cfg.Store.MaxAlerts,
		}),
		Throttle: svc.throttle,
		Clock:    clk,
		Logger:   logger,
	}, engine.Config{
		Dispatch: dispatch.Options{
			Concurrency: cfg.Dispatch.Concurrency,
			SendTimeout: mustDuration(cfg.Dispatch.SendTimeout),
		},
		Retry: dispatch.RetryConfig{
			MaxRetries: cfg.Retry.MaxRetries,
			BaseDelay:  mustDuration(cfg.Retry.BaseDelay),
			Scope:      scope,
		},
		Escalation: engine.EscalationConfig{
			Policy:         policy,
			UrgentChannels: cfg.Escalation.UrgentChannels,
		},
	})
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("create engine: %w", err)
	}
	return svc, nil
}

// buildSenders registers one sender per channel kind.
func buildSenders(cfg *Config, logger *zap.Logger) (*notifier.Senders, error) {
	breaker := notifier.BreakerConfig{
		ConsecutiveFailures: cfg.Dispatch.Breaker.ConsecutiveFailures,
	}
	if cfg.Dispatch.Breaker.OpenTimeout != "" {
		breaker.OpenTimeout = mustDuration(cfg.Dispatch.Breaker.OpenTimeout)
	}

	email, err := notifier.NewEmailSender()
	if err != nil {
		return nil, fmt.Errorf("create email sender: %w", err)
	}

	return notifier.NewSenders(
		email,
		notifier.NewChatSender(breaker),
		notifier.NewSMSSender(breaker),
		notifier.NewWebhookSender(breaker),
		notifier.NewLogSender(logger),
	), nil
}

// Reload re-reads path and applies channel enabled flags and rules.
func (s *service) Reload(path string) error {
	cfg, err := LoadConfig(path)
	if err != nil {
		return err
	}

	rules, err := cfg.LoadAllRules(s.engine.Rules().Predicates())
	if err != nil {
		return err
	}
	if err := s.engine.Rules().ReloadRules(rules); err != nil {
		return fmt.Errorf("reload rules: %w", err)
	}

	if ignored := s.engine.Registry().ApplyEnabled(cfg.Channels); len(ignored) > 0 {
		s.logger.Warn("channel changes other than enabled need a restart",
			zap.Strings("channels", ignored))
	}
	s.logger.Info("reload applied", zap.Int("rules", len(rules)))
	return nil
}

// Close stops the engine and releases transports.
func (s *service) Close() {
	if s.engine != nil {
		if err := s.engine.Close(); err != nil {
			s.logger.Warn("close engine", zap.Error(err))
		}
	}
	if err := s.senders.Close(); err != nil {
		s.logger.Warn("close senders", zap.Error(err))
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn("close redis", zap.Error(err))
		}
	}
}
