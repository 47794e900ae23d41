// Package config loads novelmesh configuration.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables prefixed with NOVELMESH_
//  2. YAML config file
//  3. Hardcoded defaults
//
// Environment variables map to YAML keys by splitting on the first
// underscore after the prefix:
//
//	NOVELMESH_ENGINE_STEP_LIMIT       -> engine.step_limit
//	NOVELMESH_STORE_PATH              -> store.path
//	NOVELMESH_MODELS_ANTHROPIC_API_KEY -> models.anthropic_api_key
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/hupe1980/novelmesh/core"
	"github.com/hupe1980/novelmesh/evaluation"
)

// EnvPrefix is the prefix of environment variable overrides.
const EnvPrefix = "NOVELMESH_"

const maxConfigFileSize = 1024 * 1024

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Config holds the complete novelmesh configuration.
type Config struct {
	Engine  EngineConfig  `koanf:"engine"`
	Store   StoreConfig   `koanf:"store"`
	Logging LoggingConfig `koanf:"logging"`
	Models  ModelsConfig  `koanf:"models"`
	Catalog CatalogConfig `koanf:"catalog"`

	// Gates overrides the built-in quality gates using the flat form
	// {transition: {metric: threshold, human_approval_required: bool}}.
	Gates map[string]map[string]any `koanf:"gates"`
}

// EngineConfig bounds phase execution.
type EngineConfig struct {
	StepLimit   int           `koanf:"step_limit"`
	CallTimeout time.Duration `koanf:"call_timeout"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver               string        `koanf:"driver"`
	Path                 string        `koanf:"path"`
	RetryAttempts        uint          `koanf:"retry_attempts"`
	RetryInitialInterval time.Duration `koanf:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `koanf:"retry_max_interval"`
}

// LoggingConfig selects the log backend.
type LoggingConfig struct {
	Level   string `koanf:"level"`
	Format  string `koanf:"format"`  // text or json
	Backend string `koanf:"backend"` // slog or zap
}

// ModelsConfig holds provider credentials and the shared request budget.
type ModelsConfig struct {
	AnthropicAPIKey   string  `koanf:"anthropic_api_key"`
	OpenAIAPIKey      string  `koanf:"openai_api_key"`
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
	// Mock routes every agent to the mock provider.
	Mock bool `koanf:"mock"`
}

// CatalogConfig points at an optional agent catalog file.
type CatalogConfig struct {
	Path string `koanf:"path"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads the YAML file at path (skipped when path is empty or the file
// does not exist) and applies environment overrides.
func Load(path string) (*Config, error) {
	var content []byte
	if path != "" {
		f, err := os.Open(path)
		switch {
		case err == nil:
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return nil, fmt.Errorf("failed to stat config file: %w", err)
			}
			if info.Size() > maxConfigFileSize {
				return nil, core.NewConfigurationError("config file %s exceeds %d bytes", path, maxConfigFileSize)
			}
			content, err = io.ReadAll(f)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
	}
	return Parse(content)
}

// Parse loads configuration from YAML content and applies environment
// overrides, defaults and validation.
func Parse(content []byte) (*Config, error) {
	k := koanf.New(".")

	if len(content) > 0 {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, &core.ConfigurationError{Msg: "parse config", Err: err}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, &core.ConfigurationError{Msg: "unmarshal config", Err: err}
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps NOVELMESH_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

func applyDefaults(cfg *Config) {
	if cfg.Engine.StepLimit == 0 {
		cfg.Engine.StepLimit = 25
	}
	if cfg.Engine.CallTimeout == 0 {
		cfg.Engine.CallTimeout = 5 * time.Minute
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = DriverMemory
	}
	if cfg.Store.RetryAttempts == 0 {
		cfg.Store.RetryAttempts = 3
	}
	if cfg.Store.RetryInitialInterval == 0 {
		cfg.Store.RetryInitialInterval = 4 * time.Second
	}
	if cfg.Store.RetryMaxInterval == 0 {
		cfg.Store.RetryMaxInterval = 10 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Backend == "" {
		cfg.Logging.Backend = "slog"
	}

	if cfg.Models.Burst == 0 && cfg.Models.RequestsPerSecond > 0 {
		cfg.Models.Burst = 1
	}
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if c.Engine.StepLimit < 0 {
		return core.NewConfigurationError("engine.step_limit must not be negative, got %d", c.Engine.StepLimit)
	}
	if c.Engine.CallTimeout < 0 {
		return core.NewConfigurationError("engine.call_timeout must not be negative, got %s", c.Engine.CallTimeout)
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.Path == "" {
			return core.NewConfigurationError("store.path is required for the sqlite driver")
		}
	default:
		return core.NewConfigurationError("unknown store.driver %q", c.Store.Driver)
	}
	if c.Store.RetryMaxInterval < c.Store.RetryInitialInterval {
		return core.NewConfigurationError("store.retry_max_interval %s is below store.retry_initial_interval %s",
			c.Store.RetryMaxInterval, c.Store.RetryInitialInterval)
	}

	switch c.Logging.Backend {
	case "slog", "zap":
	default:
		return core.NewConfigurationError("unknown logging.backend %q", c.Logging.Backend)
	}
	switch c.Logging.Format {
	case "text", "json", "console":
	default:
		return core.NewConfigurationError("unknown logging.format %q", c.Logging.Format)
	}

	if c.Models.RequestsPerSecond < 0 {
		return core.NewConfigurationError("models.requests_per_second must not be negative")
	}

	if _, err := c.QualityGates(); err != nil {
		return err
	}
	return nil
}

// QualityGates returns the configured gates, or the built-in gates when none
// are configured.
func (c *Config) QualityGates() ([]evaluation.Gate, error) {
	if len(c.Gates) == 0 {
		return evaluation.DefaultGates(), nil
	}
	return evaluation.ParseGates(c.Gates)
}
