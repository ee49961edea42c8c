package scorer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker/v2"
)

// IntegratedScorer combines all resilience patterns and features
type IntegratedScorer struct {
	baseScorer Scorer
	metrics    *MetricsRecorder
	config     Config
}

// NewIntegratedScorer creates a fully integrated OpenAI-backed scorer
func NewIntegratedScorer(cfg Config) (Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base, err := NewScorer(cfg)
	if err != nil {
		return nil, err
	}

	return Integrate(base, cfg), nil
}

// Integrate layers retry, circuit breaking and metrics around any Scorer
// according to cfg. Retry is the innermost layer.
func Integrate(base Scorer, cfg Config) *IntegratedScorer {
	if cfg.EnableRetry && cfg.RetryConfig == nil {
		cfg.RetryConfig = defaultRetryConfig()
	}
	if cfg.EnableCircuitBreaker && cfg.CircuitBreakerConfig == nil {
		cfg.CircuitBreakerConfig = defaultCircuitBreakerConfig()
	}

	metrics := NewMetricsRecorder(cfg.EnableMetrics)
	scorer := base

	if cfg.EnableRetry {
		slog.Info("Enabling retry logic",
			"max_attempts", cfg.RetryConfig.MaxAttempts,
			"strategy", cfg.RetryConfig.Strategy)
		scorer = NewRetryScorer(scorer, cfg.RetryConfig).WithMetrics(metrics)
	}

	if cfg.EnableCircuitBreaker {
		slog.Info("Enabling circuit breaker",
			"max_requests", cfg.CircuitBreakerConfig.MaxRequests,
			"timeout", cfg.CircuitBreakerConfig.Timeout)

		cbConfig := *cfg.CircuitBreakerConfig
		userCallback := cbConfig.OnStateChange
		cbConfig.OnStateChange = func(name string, from, to gobreaker.State) {
			metrics.RecordCircuitBreakerState(name, stateToInt(to))
			if to == gobreaker.StateOpen {
				metrics.RecordCircuitBreakerTrip(name)
			}
			if userCallback != nil {
				userCallback(name, from, to)
			}
		}

		scorer = NewCircuitBreakerScorer(scorer, &cbConfig)
	}

	slog.Info("Integrated scorer created",
		"model", cfg.Model,
		"max_length", cfg.MaxLength,
		"truncation", cfg.Truncation,
		"circuit_breaker", cfg.EnableCircuitBreaker,
		"retry", cfg.EnableRetry)

	return &IntegratedScorer{
		baseScorer: scorer,
		metrics:    metrics,
		config:     cfg,
	}
}

// ScoreTexts scores texts through the configured layers and records metrics
func (s *IntegratedScorer) ScoreTexts(ctx context.Context, texts []string, opts ...ScoringOption) ([]Result, error) {
	start := time.Now()

	s.metrics.RecordBatchSize(len(texts))

	model := resolveOptions(append(s.config.scoringDefaults(), opts...)...).model

	results, err := s.baseScorer.ScoreTexts(ctx, texts, opts...)

	s.metrics.RecordRequestDuration(time.Since(start).Seconds(), model)

	if err != nil {
		s.metrics.RecordRequest("error", model)
		s.metrics.RecordError(classifyError(err))
		return nil, err
	}

	s.metrics.RecordRequest("success", model)
	s.metrics.RecordItemsScored(len(results))

	for _, result := range results {
		s.metrics.RecordScore(result.Label, result.Score)
	}

	return results, nil
}

// GetHealth returns comprehensive health status
func (s *IntegratedScorer) GetHealth(ctx context.Context) HealthStatus {
	health := s.baseScorer.GetHealth(ctx)
	if health.Details == nil {
		health.Details = map[string]interface{}{}
	}

	health.Details["integration"] = map[string]interface{}{
		"circuit_breaker_enabled": s.config.EnableCircuitBreaker,
		"retry_enabled":           s.config.EnableRetry,
		"metrics_enabled":         s.metrics.Enabled(),
		"model":                   s.config.Model,
	}

	return health
}

// BuildProductionScorer creates a production-ready scorer with all features
func BuildProductionScorer(apiKey string) (Scorer, error) {
	return NewIntegratedScorer(NewProductionConfig(apiKey))
}

// classifyError returns error type for metrics
func classifyError(err error) string {
	if err == nil {
		return "none"
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429:
			return "rate_limit"
		case apiErr.HTTPStatusCode >= 500:
			return "server_error"
		case apiErr.HTTPStatusCode >= 400:
			return "client_error"
		default:
			return "api_error"
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, gobreaker.ErrOpenState):
		return "circuit_open"
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit_half_open"
	case errors.Is(err, ErrContentTooLong):
		return "content_too_long"
	case errors.Is(err, ErrResultMismatch):
		return "result_mismatch"
	}

	return "unknown"
}
