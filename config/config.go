// Package config loads the batch scorer process configuration.
//
// Precedence: defaults → YAML file → .env file → environment variables.
//
//	cfg, err := config.Load("config.yaml", ".env")
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/JohnPlummer/batch-scorer/scorer"
)

// EnvPrefix prefixes every environment variable except OPENAI_API_KEY
const EnvPrefix = "BATCH_SCORER_"

// Config is the complete process configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Scorer     ScorerConfig     `yaml:"scorer"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DispatcherConfig holds dispatch queue settings
type DispatcherConfig struct {
	QueueSize      int           `yaml:"queue_size"`
	BackendTimeout time.Duration `yaml:"backend_timeout"`
}

// ScorerConfig holds scoring backend settings
type ScorerConfig struct {
	APIKey               string        `yaml:"api_key"`
	BaseURL              string        `yaml:"base_url"`
	Model                string        `yaml:"model"`
	MaxLength            int           `yaml:"max_length"`
	Truncation           bool          `yaml:"truncation"`
	Timeout              time.Duration `yaml:"timeout"`
	EnableRetry          bool          `yaml:"enable_retry"`
	RetryMaxAttempts     int           `yaml:"retry_max_attempts"`
	RetryStrategy        string        `yaml:"retry_strategy"`
	EnableCircuitBreaker bool          `yaml:"enable_circuit_breaker"`
	EnableMetrics        bool          `yaml:"enable_metrics"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Default returns the configuration used when nothing else is set
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ShutdownTimeout: 30 * time.Second,
		},
		Dispatcher: DispatcherConfig{
			QueueSize: 1024,
		},
		Scorer: ScorerConfig{
			Model:                "gpt-4o-mini",
			MaxLength:            scorer.DefaultMaxLength,
			Truncation:           true,
			Timeout:              60 * time.Second,
			EnableRetry:          true,
			RetryMaxAttempts:     3,
			RetryStrategy:        string(scorer.RetryStrategyExponential),
			EnableCircuitBreaker: true,
			EnableMetrics:        true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (optional) and
// the environment. Missing env files are ignored.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return cfg, fmt.Errorf("failed to load env file %s: %w", f, err)
		}
		slog.Debug("Loaded env file", "path", f)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
		cfg.Scorer.APIKey = v
	}

	setters := []struct {
		key string
		set func(string) error
	}{
		{"HOST", setString(&cfg.Server.Host)},
		{"PORT", setInt(&cfg.Server.Port)},
		{"REQUEST_TIMEOUT", setDuration(&cfg.Server.RequestTimeout)},
		{"SHUTDOWN_TIMEOUT", setDuration(&cfg.Server.ShutdownTimeout)},
		{"QUEUE_SIZE", setInt(&cfg.Dispatcher.QueueSize)},
		{"BACKEND_TIMEOUT", setDuration(&cfg.Dispatcher.BackendTimeout)},
		{"API_KEY", setString(&cfg.Scorer.APIKey)},
		{"BASE_URL", setString(&cfg.Scorer.BaseURL)},
		{"MODEL", setString(&cfg.Scorer.Model)},
		{"MAX_LENGTH", setInt(&cfg.Scorer.MaxLength)},
		{"TRUNCATION", setBool(&cfg.Scorer.Truncation)},
		{"SCORER_TIMEOUT", setDuration(&cfg.Scorer.Timeout)},
		{"ENABLE_RETRY", setBool(&cfg.Scorer.EnableRetry)},
		{"RETRY_MAX_ATTEMPTS", setInt(&cfg.Scorer.RetryMaxAttempts)},
		{"RETRY_STRATEGY", setString(&cfg.Scorer.RetryStrategy)},
		{"ENABLE_CIRCUIT_BREAKER", setBool(&cfg.Scorer.EnableCircuitBreaker)},
		{"ENABLE_METRICS", setBool(&cfg.Scorer.EnableMetrics)},
		{"LOG_LEVEL", setString(&cfg.Log.Level)},
		{"LOG_FORMAT", setString(&cfg.Log.Format)},
	}

	for _, s := range setters {
		v, ok := os.LookupEnv(EnvPrefix + s.key)
		if !ok {
			continue
		}
		if err := s.set(v); err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, s.key, err)
		}
	}
	return nil
}

func setString(dst *string) func(string) error {
	return func(v string) error {
		*dst = v
		return nil
	}
}

func setInt(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func setBool(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

func setDuration(dst *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}

// Validate checks the process-level settings; scorer settings are validated
// by scorer.Config.Validate
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.RequestTimeout < 0 {
		return errors.New("request timeout must be non-negative")
	}
	if c.Dispatcher.QueueSize <= 0 {
		return errors.New("queue size must be positive")
	}
	if c.Dispatcher.BackendTimeout < 0 {
		return errors.New("backend timeout must be non-negative")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}
	return c.ScorerConfig().Validate()
}

// Addr returns the listen address
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ScorerConfig converts the scorer section into a scorer.Config
func (c Config) ScorerConfig() scorer.Config {
	sc := scorer.Config{
		APIKey:        c.Scorer.APIKey,
		BaseURL:       c.Scorer.BaseURL,
		Model:         c.Scorer.Model,
		MaxLength:     c.Scorer.MaxLength,
		Truncation:    c.Scorer.Truncation,
		EnableMetrics: c.Scorer.EnableMetrics,
		Timeout:       c.Scorer.Timeout,
	}
	if c.Scorer.EnableRetry {
		sc = sc.WithRetryStrategy(scorer.RetryStrategy(c.Scorer.RetryStrategy), c.Scorer.RetryMaxAttempts)
	}
	if c.Scorer.EnableCircuitBreaker {
		sc = sc.WithCircuitBreaker()
	}
	return sc
}

// SlogLevel parses the configured log level
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", l.Level, err)
	}
	return level, nil
}

// NewLogger builds the process logger from the log settings
func (l LogConfig) NewLogger() *slog.Logger {
	level, err := l.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.ToLower(l.Format) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
