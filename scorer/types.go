package scorer

import (
	"context"
	"errors"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker/v2"
)

// Sentiment labels produced by the scoring backend
const (
	LabelPositive = "positive"
	LabelNegative = "negative"
	LabelNeutral  = "neutral"
)

// Result is the label/score pair produced for one input text
type Result struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Scorer scores ordered batches of texts. The returned slice is positionally
// aligned with the input.
type Scorer interface {
	// ScoreTexts scores all texts in a single backend call
	ScoreTexts(ctx context.Context, texts []string, opts ...ScoringOption) ([]Result, error)

	// GetHealth returns the current health status of the scorer
	GetHealth(ctx context.Context) HealthStatus
}

// HealthStatus represents the health state of the scorer
type HealthStatus struct {
	Healthy bool                   // Overall health status
	Status  string                 // Human-readable status message
	Details map[string]interface{} // Additional health details
}

// Config holds the configuration for the scorer
type Config struct {
	APIKey               string                // OpenAI API key (required)
	BaseURL              string                // Optional OpenAI-compatible endpoint
	Model                string                // OpenAI model to use
	PromptText           string                // Custom system prompt
	MaxLength            int                   // Maximum length per text in runes (0 = use default)
	Truncation           bool                  // Truncate over-long texts instead of rejecting them
	EnableCircuitBreaker bool                  // Enable circuit breaker pattern
	EnableRetry          bool                  // Enable retry with backoff
	EnableMetrics        bool                  // Record Prometheus metrics
	Timeout              time.Duration         // Request timeout
	CircuitBreakerConfig *CircuitBreakerConfig // Circuit breaker configuration
	RetryConfig          *RetryConfig          // Retry configuration
}

// CircuitBreakerConfig holds circuit breaker settings
type CircuitBreakerConfig struct {
	MaxRequests   uint32                                      // Max requests in half-open state
	Interval      time.Duration                               // Interval for closed state
	Timeout       time.Duration                               // Timeout for open state
	ReadyToTrip   func(counts gobreaker.Counts) bool          // Custom trip condition
	OnStateChange func(name string, from, to gobreaker.State) // State change callback
}

// RetryConfig holds retry settings
type RetryConfig struct {
	MaxAttempts  int           // Maximum number of attempts
	Strategy     RetryStrategy // Backoff strategy to use
	InitialDelay time.Duration // Initial delay between retries
	MaxDelay     time.Duration // Maximum delay between retries
}

// RetryStrategy defines the backoff strategy for retries
type RetryStrategy string

const (
	RetryStrategyExponential RetryStrategy = "exponential"
	RetryStrategyConstant    RetryStrategy = "constant"
	RetryStrategyFibonacci   RetryStrategy = "fibonacci"

	// Content length limits
	DefaultMaxLength = 512 // Default maximum text length in runes
)

// OpenAIClient defines the interface for interacting with OpenAI API
type OpenAIClient interface {
	CreateChatCompletion(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Error definitions
var (
	ErrMissingAPIKey     = errors.New("OpenAI API key is required")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrContentTooLong    = errors.New("content exceeds maximum length")
	ErrResultMismatch    = errors.New("backend returned a result set that does not match the input")
)

// Internal response types for JSON parsing
type sentimentResponse struct {
	Results []sentimentItem `json:"results"`
}

type sentimentItem struct {
	Index int     `json:"index" description:"zero-based position of the text in the request"`
	Label string  `json:"label" description:"one of positive, negative, neutral"`
	Score float64 `json:"score" description:"confidence in the label between 0 and 1"`
}

// ScoringOption is a functional option for configuring scoring behavior
type ScoringOption func(*scoringOptions)

// scoringOptions holds the options for a scoring request (internal)
type scoringOptions struct {
	model      string // Model to use for this request
	truncation bool   // Truncate texts longer than maxLength
	maxLength  int    // Maximum text length in runes
}

// WithModel sets the model for this scoring request
func WithModel(model string) ScoringOption {
	return func(opts *scoringOptions) {
		opts.model = model
	}
}

// WithTruncation controls whether over-long texts are cut to the maximum length
func WithTruncation(enabled bool) ScoringOption {
	return func(opts *scoringOptions) {
		opts.truncation = enabled
	}
}

// WithMaxLength sets the maximum text length in runes
func WithMaxLength(n int) ScoringOption {
	return func(opts *scoringOptions) {
		opts.maxLength = n
	}
}

// resolveOptions applies opts on top of the package defaults
func resolveOptions(opts ...ScoringOption) scoringOptions {
	o := scoringOptions{
		truncation: true,
		maxLength:  DefaultMaxLength,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.model == "" {
		o.model = openai.GPT4oMini
	}
	if o.maxLength <= 0 {
		o.maxLength = DefaultMaxLength
	}
	return o
}
