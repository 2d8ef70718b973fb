package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Pipeline    PipelineConfig  `toml:"pipeline"`
	Promotion   PromotionConfig `toml:"promotion"`
	Cache       CacheConfig     `toml:"cache"`
	RateLimit   RateLimitConfig `toml:"ratelimit"`
	Blueprints  BlueprintConfig `toml:"blueprints"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

type PipelineConfig struct {
	MaxAttempts int `toml:"max_attempts"` // Default retry budget per job
	// EstimatorWindow caps how many recent completions feed the average
	// duration used by the queue-position estimator.
	EstimatorWindow int    `toml:"estimator_window"`
	FallbackWait    string `toml:"fallback_wait"`  // e.g. "10m" - ETA when no history exists
	LeaseDuration   string `toml:"lease_duration"` // e.g. "15m" - heartbeat staleness before a running job is failed
	SweepSchedule   string `toml:"sweep_schedule"` // Cron schedule for the lease sweeper
}

type PromotionConfig struct {
	ContextTokenBudget int `toml:"context_token_budget"` // Token budget for forwarded source context
	TrendSignalLimit   int `toml:"trend_signal_limit"`   // Top-N signals included in a trend summary
}

type CacheConfig struct {
	TTL string `toml:"ttl"` // e.g. "5m" - membership role cache entry lifetime
}

type RateLimitConfig struct {
	Enabled bool    `toml:"enabled"`
	RPS     float64 `toml:"rps"`   // Sustained requests per second per client
	Burst   int     `toml:"burst"` // Burst allowance per client
}

type BlueprintConfig struct {
	Path string `toml:"path"` // Optional YAML file overriding the embedded deliverable blueprints
}

// DefaultConfig returns a configuration with sensible development defaults
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/fabrica",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Pipeline: PipelineConfig{
			MaxAttempts:     3,
			EstimatorWindow: 10,
			FallbackWait:    "10m",
			LeaseDuration:   "15m",
			SweepSchedule:   "*/5 * * * *",
		},
		Promotion: PromotionConfig{
			ContextTokenBudget: 4000,
			TrendSignalLimit:   5,
		},
		Cache: CacheConfig{
			TTL: "5m",
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			RPS:     20,
			Burst:   40,
		},
	}
}

// LoadConfig loads configuration from a TOML file with env overrides.
// A missing file is not an error; defaults apply.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies FABRICA_* environment variable overrides
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("FABRICA_ENVIRONMENT"); v != "" {
		config.Environment = v
	}
	if v := os.Getenv("FABRICA_SERVER_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("FABRICA_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("FABRICA_STORAGE_PATH"); v != "" {
		config.Storage.Badger.Path = v
	}
	if v := os.Getenv("FABRICA_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Pipeline.MaxAttempts <= 0 {
		return fmt.Errorf("pipeline max_attempts must be positive: %d", c.Pipeline.MaxAttempts)
	}
	if c.Pipeline.EstimatorWindow <= 0 {
		return fmt.Errorf("pipeline estimator_window must be positive: %d", c.Pipeline.EstimatorWindow)
	}
	if _, err := c.FallbackWait(); err != nil {
		return fmt.Errorf("invalid pipeline fallback_wait: %w", err)
	}
	if _, err := c.LeaseDuration(); err != nil {
		return fmt.Errorf("invalid pipeline lease_duration: %w", err)
	}
	if _, err := c.CacheTTL(); err != nil {
		return fmt.Errorf("invalid cache ttl: %w", err)
	}
	if c.Promotion.ContextTokenBudget <= 0 {
		return fmt.Errorf("promotion context_token_budget must be positive: %d", c.Promotion.ContextTokenBudget)
	}
	return nil
}

// FallbackWait parses the estimator fallback duration.
func (c *Config) FallbackWait() (time.Duration, error) {
	return time.ParseDuration(c.Pipeline.FallbackWait)
}

// LeaseDuration parses the running-job lease duration.
func (c *Config) LeaseDuration() (time.Duration, error) {
	return time.ParseDuration(c.Pipeline.LeaseDuration)
}

// CacheTTL parses the membership cache TTL.
func (c *Config) CacheTTL() (time.Duration, error) {
	return time.ParseDuration(c.Cache.TTL)
}

// IsDevelopment returns true when running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
