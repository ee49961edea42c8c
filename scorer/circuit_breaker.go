package scorer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker/v2"
)

// CircuitBreakerScorer wraps a Scorer with circuit breaker functionality
type CircuitBreakerScorer struct {
	scorer Scorer
	cb     *gobreaker.CircuitBreaker[[]Result]
}

// NewCircuitBreakerScorer creates a new circuit breaker wrapper for a Scorer
func NewCircuitBreakerScorer(scorer Scorer, config *CircuitBreakerConfig) *CircuitBreakerScorer {
	if config == nil {
		config = defaultCircuitBreakerConfig()
	}

	settings := gobreaker.Settings{
		Name:        "sentiment-backend",
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: config.ReadyToTrip,
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String())

			if config.OnStateChange != nil {
				config.OnStateChange(name, from, to)
			}
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}

			// Rate limits, timeouts and bad input are not backend outages
			return !ShouldTripCircuit(err)
		},
	}

	return &CircuitBreakerScorer{
		scorer: scorer,
		cb:     gobreaker.NewCircuitBreaker[[]Result](settings),
	}
}

// ScoreTexts executes the scoring call through the circuit breaker
func (s *CircuitBreakerScorer) ScoreTexts(ctx context.Context, texts []string, opts ...ScoringOption) ([]Result, error) {
	results, err := s.cb.Execute(func() ([]Result, error) {
		return s.scorer.ScoreTexts(ctx, texts, opts...)
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			slog.Debug("Circuit breaker is open, request rejected",
				"error", err)
		} else if errors.Is(err, gobreaker.ErrTooManyRequests) {
			slog.Debug("Circuit breaker in half-open state, too many requests",
				"error", err)
		} else {
			slog.Debug("Request failed through circuit breaker",
				"error", err,
				"should_trip", ShouldTripCircuit(err))
		}
	}

	return results, err
}

// State returns the current state of the circuit breaker
func (s *CircuitBreakerScorer) State() gobreaker.State {
	return s.cb.State()
}

// Counts returns the current counts of the circuit breaker
func (s *CircuitBreakerScorer) Counts() gobreaker.Counts {
	return s.cb.Counts()
}

// GetHealth merges the breaker state into the wrapped scorer's health
func (s *CircuitBreakerScorer) GetHealth(ctx context.Context) HealthStatus {
	state := s.cb.State()
	counts := s.cb.Counts()

	health := s.scorer.GetHealth(ctx)
	if health.Details == nil {
		health.Details = map[string]interface{}{}
	}

	health.Details["circuit_breaker_state"] = state.String()
	health.Details["circuit_breaker_requests"] = counts.Requests
	health.Details["circuit_breaker_failures"] = counts.TotalFailures
	health.Details["circuit_breaker_consecutive_failures"] = counts.ConsecutiveFailures

	switch state {
	case gobreaker.StateOpen:
		health.Healthy = false
		health.Status = fmt.Sprintf("circuit open (%s)", health.Status)
	case gobreaker.StateHalfOpen:
		health.Status = fmt.Sprintf("degraded (%s)", health.Status)
	}

	return health
}

// ShouldTripCircuit determines if an error should cause the circuit to trip
func ShouldTripCircuit(err error) bool {
	if err == nil {
		return false
	}

	// Caller input problems say nothing about backend health
	if errors.Is(err, ErrContentTooLong) {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429: // Rate limit - don't trip, this is expected
			return false
		case 401, 403: // Auth errors - trip immediately
			return true
		default:
			return apiErr.HTTPStatusCode >= 400
		}
	}

	// Timeouts and cancellations are not backend outages
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	// Unknown errors should trip the circuit
	return true
}

// stateToInt converts circuit breaker state to int for metrics
func stateToInt(state gobreaker.State) int {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
