package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/beacon/internal/alerting"
	"github.com/good-yellow-bee/beacon/internal/catalog"
	"github.com/good-yellow-bee/beacon/internal/channels"
	"github.com/good-yellow-bee/beacon/internal/dispatch"
	"github.com/good-yellow-bee/beacon/internal/engine"
	"github.com/good-yellow-bee/beacon/internal/logging"
)

// JWTSecretEnv overrides auth.jwt_secret.
const JWTSecretEnv = "BEACON_JWT_SECRET"

// Config represents the service configuration.
type Config struct {
	Server     ServerConfig             `yaml:"server" toml:"server"`
	Metrics    MetricsConfig            `yaml:"metrics" toml:"metrics"`
	Log        logging.LogConfig        `yaml:"log" toml:"log"`
	Auth       AuthConfig               `yaml:"auth" toml:"auth"`
	Throttle   ThrottleConfig           `yaml:"throttle" toml:"throttle"`
	Store      StoreConfig              `yaml:"store" toml:"store"`
	Dispatch   DispatchConfig           `yaml:"dispatch" toml:"dispatch"`
	Retry      RetryConfig              `yaml:"retry" toml:"retry"`
	Escalation EscalationConfig         `yaml:"escalation" toml:"escalation"`
	Ingest     IngestConfig             `yaml:"ingest" toml:"ingest"`
	Channels   []channels.Config        `yaml:"channels" toml:"channels"`
	Templates  []catalog.TemplateConfig `yaml:"templates" toml:"templates"`
	Rules      []*alerting.Rule         `yaml:"rules" toml:"rules"`
	// RulesFile is loaded after the inline rules. Relative paths resolve
	// against the config file directory.
	RulesFile string `yaml:"rules_file" toml:"rules_file"`
	Verbose   bool   `yaml:"-" toml:"-"` // set via CLI flag

	path string
}

// ServerConfig contains HTTP API settings.
type ServerConfig struct {
	HTTPAddress string          `yaml:"http_address" toml:"http_address"` // default :8080
	TLS         TLSConfig       `yaml:"tls" toml:"tls"`
	RateLimit   RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
}

// TLSConfig contains TLS settings for the HTTP API.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`
	CertFile string `yaml:"cert_file" toml:"cert_file"`
	KeyFile  string `yaml:"key_file" toml:"key_file"`
}

// RateLimitConfig is the per-IP token bucket.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second" toml:"per_second"`
	Burst     int     `yaml:"burst" toml:"burst"`
}

// MetricsConfig contains Prometheus exporter settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Address string `yaml:"address" toml:"address"` // default :9090
}

// AuthConfig enables bearer tokens on the API.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
	TokenTTL  string `yaml:"token_ttl" toml:"token_ttl"` // default 24h
}

// ThrottleConfig selects the throttle backend.
type ThrottleConfig struct {
	Backend string      `yaml:"backend" toml:"backend"` // memory or redis
	Redis   RedisConfig `yaml:"redis" toml:"redis"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr" toml:"addr"`
	Password string `yaml:"password" toml:"password"`
	DB       int    `yaml:"db" toml:"db"`
	Prefix   string `yaml:"prefix" toml:"prefix"`
}

// StoreConfig bounds the alert store.
type StoreConfig struct {
	MaxAlerts int `yaml:"max_alerts" toml:"max_alerts"` // 0 keeps everything
}

// DispatchConfig controls channel fan-out.
type DispatchConfig struct {
	Concurrency int           `yaml:"concurrency" toml:"concurrency"`
	SendTimeout string        `yaml:"send_timeout" toml:"send_timeout"`
	Breaker     BreakerConfig `yaml:"breaker" toml:"breaker"`
}

// BreakerConfig configures the circuit breaker of HTTP transports.
type BreakerConfig struct {
	ConsecutiveFailures uint32 `yaml:"consecutive_failures" toml:"consecutive_failures"`
	OpenTimeout         string `yaml:"open_timeout" toml:"open_timeout"`
}

// RetryConfig controls delayed re-dispatch.
type RetryConfig struct {
	MaxRetries int    `yaml:"max_retries" toml:"max_retries"`
	BaseDelay  string `yaml:"base_delay" toml:"base_delay"`
	Scope      string `yaml:"scope" toml:"scope"` // fanout or channel
}

// EscalationConfig controls escalation timers.
type EscalationConfig struct {
	Policy         string   `yaml:"policy" toml:"policy"` // always, unacknowledged, unresolved
	UrgentChannels []string `yaml:"urgent_channels" toml:"urgent_channels"`
}

// IngestConfig enables the NATS subscriber.
type IngestConfig struct {
	Enabled bool     `yaml:"enabled" toml:"enabled"`
	URLs    []string `yaml:"urls" toml:"urls"`
	Subject string   `yaml:"subject" toml:"subject"`
	Queue   string   `yaml:"queue" toml:"queue"`
}

// LoadConfig loads configuration from a YAML or TOML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg, err := ParseConfig(data, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	cfg.path = path
	return cfg, nil
}

// ParseConfig decodes, defaults and validates configuration. ext selects
// the format; ".toml" is TOML and anything else YAML.
func ParseConfig(data []byte, ext string) (*Config, error) {
	var cfg Config
	if strings.EqualFold(ext, ".toml") {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Server.HTTPAddress == "" {
		c.Server.HTTPAddress = ":8080"
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}
	if c.Auth.TokenTTL == "" {
		c.Auth.TokenTTL = "24h"
	}
	if secret := os.Getenv(JWTSecretEnv); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if c.Throttle.Backend == "" {
		c.Throttle.Backend = "memory"
	}
	if c.Dispatch.Concurrency == 0 {
		c.Dispatch.Concurrency = dispatch.DefaultConcurrency
	}
	if c.Dispatch.SendTimeout == "" {
		c.Dispatch.SendTimeout = dispatch.DefaultSendTimeout.String()
	}
	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = dispatch.DefaultMaxRetries
	}
	if c.Retry.BaseDelay == "" {
		c.Retry.BaseDelay = dispatch.DefaultBaseDelay.String()
	}
	if c.Ingest.Subject == "" {
		c.Ingest.Subject = "beacon.events"
	}
	if c.Ingest.Queue == "" {
		c.Ingest.Queue = "beacon"
	}
	if len(c.Channels) == 0 {
		c.Channels = []channels.Config{{Name: "log", Kind: "log"}}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" {
			return fmt.Errorf("server.tls.cert_file is required when TLS is enabled")
		}
		if c.Server.TLS.KeyFile == "" {
			return fmt.Errorf("server.tls.key_file is required when TLS is enabled")
		}
	}
	if c.Server.RateLimit.PerSecond < 0 || c.Server.RateLimit.Burst < 0 {
		return fmt.Errorf("server.rate_limit values must not be negative")
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}

	durations := map[string]string{
		"auth.token_ttl":        c.Auth.TokenTTL,
		"dispatch.send_timeout": c.Dispatch.SendTimeout,
		"retry.base_delay":      c.Retry.BaseDelay,
	}
	if c.Dispatch.Breaker.OpenTimeout != "" {
		durations["dispatch.breaker.open_timeout"] = c.Dispatch.Breaker.OpenTimeout
	}
	for field, value := range durations {
		if d, err := time.ParseDuration(value); err != nil || d <= 0 {
			return fmt.Errorf("%s: invalid duration %q", field, value)
		}
	}

	switch c.Throttle.Backend {
	case "memory":
	case "redis":
		if c.Throttle.Redis.Addr == "" {
			return fmt.Errorf("throttle.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("throttle.backend must be memory or redis, got %q", c.Throttle.Backend)
	}

	if c.Store.MaxAlerts < 0 {
		return fmt.Errorf("store.max_alerts must not be negative")
	}
	if c.Dispatch.Concurrency < 0 {
		return fmt.Errorf("dispatch.concurrency must not be negative")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative")
	}
	if _, err := dispatch.ParseScope(c.Retry.Scope); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	if _, err := engine.ParsePolicy(c.Escalation.Policy); err != nil {
		return fmt.Errorf("escalation: %w", err)
	}

	if c.Ingest.Enabled && len(c.Ingest.URLs) == 0 {
		return fmt.Errorf("ingest.urls is required when ingest is enabled")
	}

	if _, err := channels.NewRegistry(c.Channels); err != nil {
		return fmt.Errorf("channels: %w", err)
	}
	if _, err := catalog.New(c.Templates); err != nil {
		return fmt.Errorf("templates: %w", err)
	}
	if err := alerting.ValidateRules(c.Rules, alerting.NewDefaultRegistry()); err != nil {
		return fmt.Errorf("rules: %w", err)
	}
	return nil
}

// LoadAllRules returns the inline rules followed by those in RulesFile.
func (c *Config) LoadAllRules(predicates *alerting.Registry) ([]*alerting.Rule, error) {
	if predicates == nil {
		predicates = alerting.NewDefaultRegistry()
	}
	rules := append([]*alerting.Rule(nil), c.Rules...)
	if c.RulesFile == "" {
		return rules, nil
	}
	fileRules, err := alerting.LoadRulesFromFile(c.RulesPath(), predicates)
	if err != nil {
		return nil, fmt.Errorf("load rules file: %w", err)
	}
	return append(rules, fileRules...), nil
}

// RulesPath resolves RulesFile against the config directory.
func (c *Config) RulesPath() string {
	if c.RulesFile == "" || filepath.IsAbs(c.RulesFile) || c.path == "" {
		return c.RulesFile
	}
	return filepath.Join(filepath.Dir(c.path), c.RulesFile)
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string {
	return c.path
}

func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
