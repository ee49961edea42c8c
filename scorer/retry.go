package scorer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sashabaranov/go-openai"
	"github.com/sethvargo/go-retry"
	"github.com/sony/gobreaker/v2"
)

// RetryScorer wraps a Scorer with retry logic
type RetryScorer struct {
	scorer  Scorer
	config  *RetryConfig
	metrics *MetricsRecorder
}

// NewRetryScorer creates a new retry wrapper for a Scorer
func NewRetryScorer(scorer Scorer, config *RetryConfig) *RetryScorer {
	if config == nil {
		config = defaultRetryConfig()
	}

	return &RetryScorer{
		scorer:  scorer,
		config:  config,
		metrics: NewMetricsRecorder(false),
	}
}

// WithMetrics makes the wrapper report attempts and retry reasons
func (s *RetryScorer) WithMetrics(metrics *MetricsRecorder) *RetryScorer {
	s.metrics = metrics
	return s
}

// ScoreTexts retries the wrapped call on retryable errors
func (s *RetryScorer) ScoreTexts(ctx context.Context, texts []string, opts ...ScoringOption) ([]Result, error) {
	var (
		results  []Result
		attempts int
	)

	err := retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		attempts++

		var err error
		results, err = s.scorer.ScoreTexts(ctx, texts, opts...)
		if err == nil {
			return nil
		}

		if !IsRetryableError(err) {
			slog.Debug("Non-retryable error, giving up",
				"error", err,
				"attempts", attempts)
			return err
		}

		if attempts < s.config.MaxAttempts {
			slog.Debug("Retrying scoring call",
				"attempt", attempts,
				"error", err)
			s.metrics.RecordRetry(classifyError(err))
		}
		return retry.RetryableError(err)
	})

	if attempts > 1 {
		s.metrics.RecordRetryAttempt(attempts)
	}

	if err != nil {
		if attempts >= s.config.MaxAttempts {
			slog.Warn("Max retry attempts reached",
				"attempts", attempts,
				"error", err)
		}
		return nil, err
	}

	if attempts > 1 {
		slog.Info("Scoring succeeded after retry",
			"attempts", attempts)
	}
	return results, nil
}

// GetHealth implements Scorer; health checks are not retried
func (s *RetryScorer) GetHealth(ctx context.Context) HealthStatus {
	return s.scorer.GetHealth(ctx)
}

// backoff returns a fresh backoff for one call
func (s *RetryScorer) backoff() retry.Backoff {
	var b retry.Backoff

	switch s.config.Strategy {
	case RetryStrategyConstant:
		b = retry.NewConstant(s.config.InitialDelay)
	case RetryStrategyFibonacci:
		b = retry.NewFibonacci(s.config.InitialDelay)
	case RetryStrategyExponential:
		fallthrough
	default:
		b = retry.NewExponential(s.config.InitialDelay)
	}

	// Jitter prevents a thundering herd; go-retry panics on a zero jitter
	if jitter := s.config.InitialDelay / 10; jitter > 0 {
		b = retry.WithJitter(jitter, b)
	}
	b = retry.WithCappedDuration(s.config.MaxDelay, b)

	maxRetries := s.config.MaxAttempts - 1
	if maxRetries < 0 {
		maxRetries = 0
	}
	return retry.WithMaxRetries(uint64(maxRetries), b)
}

// IsRetryableError determines if an error should trigger a retry
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Rejected input will be rejected again
	if errors.Is(err, ErrContentTooLong) {
		return false
	}

	// The breaker is already shedding load
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429: // Rate limit - definitely retry
			return true
		case 400, 401, 403, 404: // Client errors - don't retry
			return false
		default:
			return apiErr.HTTPStatusCode >= 500
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	// Malformed model output and network errors are usually transient
	return true
}
