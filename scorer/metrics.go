package scorer

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Request metrics
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_scorer_requests_total",
			Help: "Total number of backend scoring calls",
		},
		[]string{"status", "model"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "batch_scorer_request_duration_seconds",
			Help:    "Duration of backend scoring calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)

	// Batch metrics
	batchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batch_scorer_batch_size",
			Help:    "Number of texts per backend scoring call",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		},
	)

	itemsScored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "batch_scorer_items_scored_total",
			Help: "Total number of texts scored",
		},
	)

	// Error metrics
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_scorer_errors_total",
			Help: "Total number of errors by type",
		},
		[]string{"error_type"},
	)

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "batch_scorer_circuit_breaker_state",
			Help: "Current state of circuit breaker (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	circuitBreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_scorer_circuit_breaker_trips_total",
			Help: "Total number of circuit breaker trips",
		},
		[]string{"name"},
	)

	// Retry metrics
	retryAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batch_scorer_retry_attempts",
			Help:    "Number of attempts per retried scoring call",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)

	retryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_scorer_retry_total",
			Help: "Total number of retries by reason",
		},
		[]string{"reason"},
	)

	// API metrics
	apiCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "batch_scorer_api_call_duration_seconds",
			Help:    "Duration of API calls to OpenAI",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "status"},
	)

	apiTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_scorer_api_tokens_used_total",
			Help: "Total number of tokens used in API calls",
		},
		[]string{"type"}, // prompt, completion, total
	)

	// Score distribution
	scoreDistribution = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "batch_scorer_score_distribution",
			Help:    "Distribution of confidence scores by label",
			Buckets: []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		},
		[]string{"label"},
	)

	// Dispatcher metrics
	queuedRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "batch_scorer_queued_requests",
			Help: "Number of work items waiting in the dispatch queue",
		},
	)

	inflightRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "batch_scorer_inflight_requests",
			Help: "Number of HTTP callers waiting for their results",
		},
	)

	queueWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batch_scorer_queue_wait_seconds",
			Help:    "Time a work item spent in the dispatch queue",
			Buckets: prometheus.DefBuckets,
		},
	)

	rejectedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_scorer_rejected_requests_total",
			Help: "Total number of requests rejected before scoring",
		},
		[]string{"reason"},
	)
)

// MetricsRecorder provides methods to record metrics
type MetricsRecorder struct {
	enabled bool
}

// NewMetricsRecorder creates a new metrics recorder
func NewMetricsRecorder(enabled bool) *MetricsRecorder {
	return &MetricsRecorder{enabled: enabled}
}

// Enabled reports whether the recorder writes to the collectors
func (m *MetricsRecorder) Enabled() bool {
	return m != nil && m.enabled
}

// RecordRequest records a request metric
func (m *MetricsRecorder) RecordRequest(status string, model string) {
	if !m.Enabled() {
		return
	}
	requestsTotal.WithLabelValues(status, model).Inc()
}

// RecordRequestDuration records request duration
func (m *MetricsRecorder) RecordRequestDuration(seconds float64, model string) {
	if !m.Enabled() {
		return
	}
	requestDuration.WithLabelValues(model).Observe(seconds)
}

// RecordBatchSize records the size of a batch
func (m *MetricsRecorder) RecordBatchSize(size int) {
	if !m.Enabled() {
		return
	}
	batchSize.Observe(float64(size))
}

// RecordItemsScored records the number of items scored
func (m *MetricsRecorder) RecordItemsScored(count int) {
	if !m.Enabled() {
		return
	}
	itemsScored.Add(float64(count))
}

// RecordError records an error
func (m *MetricsRecorder) RecordError(errorType string) {
	if !m.Enabled() {
		return
	}
	errorsTotal.WithLabelValues(errorType).Inc()
}

// RecordCircuitBreakerState records circuit breaker state
func (m *MetricsRecorder) RecordCircuitBreakerState(name string, state int) {
	if !m.Enabled() {
		return
	}
	circuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordCircuitBreakerTrip records a circuit breaker trip
func (m *MetricsRecorder) RecordCircuitBreakerTrip(name string) {
	if !m.Enabled() {
		return
	}
	circuitBreakerTrips.WithLabelValues(name).Inc()
}

// RecordRetryAttempt records retry attempts
func (m *MetricsRecorder) RecordRetryAttempt(attempts int) {
	if !m.Enabled() {
		return
	}
	retryAttempts.Observe(float64(attempts))
}

// RecordRetry records a retry
func (m *MetricsRecorder) RecordRetry(reason string) {
	if !m.Enabled() {
		return
	}
	retryTotal.WithLabelValues(reason).Inc()
}

// RecordAPICall records an API call duration
func (m *MetricsRecorder) RecordAPICall(endpoint string, status string, seconds float64) {
	if !m.Enabled() {
		return
	}
	apiCallDuration.WithLabelValues(endpoint, status).Observe(seconds)
}

// RecordTokensUsed records tokens used
func (m *MetricsRecorder) RecordTokensUsed(tokenType string, count int) {
	if !m.Enabled() {
		return
	}
	apiTokensUsed.WithLabelValues(tokenType).Add(float64(count))
}

// RecordScore records a score
func (m *MetricsRecorder) RecordScore(label string, score float64) {
	if !m.Enabled() {
		return
	}
	scoreDistribution.WithLabelValues(label).Observe(score)
}

// RecordQueuedRequests updates the dispatch queue depth
func (m *MetricsRecorder) RecordQueuedRequests(delta float64) {
	if !m.Enabled() {
		return
	}
	queuedRequests.Add(delta)
}

// RecordInflightRequests updates the number of waiting callers
func (m *MetricsRecorder) RecordInflightRequests(delta float64) {
	if !m.Enabled() {
		return
	}
	inflightRequests.Add(delta)
}

// RecordQueueWait records how long a work item waited before scoring
func (m *MetricsRecorder) RecordQueueWait(seconds float64) {
	if !m.Enabled() {
		return
	}
	queueWait.Observe(seconds)
}

// RecordRejected records a request rejected before it reached the backend
func (m *MetricsRecorder) RecordRejected(reason string) {
	if !m.Enabled() {
		return
	}
	rejectedRequests.WithLabelValues(reason).Inc()
}

// GetMetricsHandler returns an HTTP handler for Prometheus metrics
func GetMetricsHandler() http.Handler {
	return promhttp.Handler()
}
