package scorer

import (
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker/v2"
)

// NewDefaultConfig creates a config with sensible defaults
func NewDefaultConfig(apiKey string) Config {
	if apiKey == "" {
		panic("API key is required")
	}

	return Config{
		APIKey:        apiKey,
		Model:         openai.GPT4oMini,
		MaxLength:     DefaultMaxLength,
		Truncation:    true,
		EnableMetrics: true,
		Timeout:       30 * time.Second,
	}
}

// NewProductionConfig creates a production-ready config with all resilience features
func NewProductionConfig(apiKey string) Config {
	cfg := NewDefaultConfig(apiKey)
	cfg.Timeout = 60 * time.Second

	cfg = cfg.WithCircuitBreaker()
	cfg = cfg.WithRetry()

	return cfg
}

// WithCircuitBreaker enables circuit breaker with default settings
func (c Config) WithCircuitBreaker() Config {
	c.EnableCircuitBreaker = true
	c.CircuitBreakerConfig = defaultCircuitBreakerConfig()
	return c
}

// WithCircuitBreakerConfig enables circuit breaker with custom settings
func (c Config) WithCircuitBreakerConfig(config *CircuitBreakerConfig) Config {
	c.EnableCircuitBreaker = true
	c.CircuitBreakerConfig = config
	return c
}

// WithRetry enables retry with default exponential backoff
func (c Config) WithRetry() Config {
	c.EnableRetry = true
	c.RetryConfig = defaultRetryConfig()
	return c
}

// WithRetryStrategy enables retry with specified strategy
func (c Config) WithRetryStrategy(strategy RetryStrategy, maxAttempts int) Config {
	c.EnableRetry = true
	c.RetryConfig = &RetryConfig{
		MaxAttempts:  maxAttempts,
		Strategy:     strategy,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
	}
	return c
}

// WithRetryConfig enables retry with custom settings
func (c Config) WithRetryConfig(config *RetryConfig) Config {
	c.EnableRetry = true
	c.RetryConfig = config
	return c
}

// WithModel sets the OpenAI model
func (c Config) WithModel(model string) Config {
	c.Model = model
	return c
}

// WithTimeout sets the request timeout
func (c Config) WithTimeout(timeout time.Duration) Config {
	if timeout < 0 {
		panic("timeout must be positive")
	}
	c.Timeout = timeout
	return c
}

// WithMaxLength sets the per-text length limit and truncation policy
func (c Config) WithMaxLength(maxLength int, truncate bool) Config {
	if maxLength < 0 {
		panic("MaxLength must be non-negative")
	}
	c.MaxLength = maxLength
	c.Truncation = truncate
	return c
}

// WithPrompt sets a custom system prompt
func (c Config) WithPrompt(prompt string) Config {
	c.PromptText = prompt
	return c
}

// Validate checks if the config is valid
func (c Config) Validate() error {
	if c.APIKey == "" {
		return errors.New("API key is required")
	}

	// A custom endpoint may serve models we don't know about
	if c.BaseURL == "" && c.Model != "" && !isValidModel(c.Model) {
		return fmt.Errorf("unsupported model: %s", c.Model)
	}

	if c.Timeout < 0 {
		return errors.New("timeout must be positive")
	}

	if c.MaxLength < 0 {
		return errors.New("MaxLength must be non-negative")
	}

	if c.EnableCircuitBreaker && c.CircuitBreakerConfig == nil {
		return errors.New("circuit breaker enabled but config is nil")
	}

	if c.EnableRetry {
		if c.RetryConfig == nil {
			return errors.New("retry enabled but config is nil")
		}

		if !isValidRetryStrategy(c.RetryConfig.Strategy) {
			return fmt.Errorf("invalid retry strategy: %s", c.RetryConfig.Strategy)
		}

		if c.RetryConfig.MaxAttempts <= 0 {
			return errors.New("retry MaxAttempts must be positive")
		}

		if c.RetryConfig.InitialDelay <= 0 {
			return errors.New("retry InitialDelay must be positive")
		}

		if c.RetryConfig.MaxDelay <= 0 {
			return errors.New("retry MaxDelay must be positive")
		}
	}

	return nil
}

// scoringDefaults turns the config into leading options so per-call options win
func (c Config) scoringDefaults() []ScoringOption {
	return []ScoringOption{
		WithModel(c.Model),
		WithTruncation(c.Truncation),
		WithMaxLength(c.MaxLength),
	}
}

func defaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		MaxRequests: 10,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Trip if 5 consecutive failures OR failure rate > 60%
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures >= 5 ||
				(counts.Requests >= 10 && failureRatio > 0.6)
		},
	}
}

func defaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		Strategy:     RetryStrategyExponential,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
	}
}

// isValidModel checks if the model is supported
func isValidModel(model string) bool {
	validModels := []string{
		openai.GPT4,
		openai.GPT4o,
		openai.GPT4oMini,
		openai.GPT4Turbo,
		openai.GPT432K,
		openai.GPT3Dot5Turbo,
		openai.GPT3Dot5Turbo16K,
	}

	for _, valid := range validModels {
		if model == valid {
			return true
		}
	}
	return false
}

// isValidRetryStrategy checks if the retry strategy is valid
func isValidRetryStrategy(strategy RetryStrategy) bool {
	switch strategy {
	case RetryStrategyExponential, RetryStrategyConstant, RetryStrategyFibonacci:
		return true
	default:
		return false
	}
}
