// Package metrics records Prometheus metrics for an evaluation run.
//
// A run is a short-lived batch job, so metrics live on a private registry and
// are pushed once to a Pushgateway at the end of the run instead of being
// scraped.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// JobName is the Pushgateway job label used for evaluation runs.
const JobName = "prompt_evaluator"

// Recorder provides methods to record metrics. A nil or disabled Recorder
// silently drops every observation.
type Recorder struct {
	enabled  bool
	registry *prometheus.Registry

	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	tokensUsed          *prometheus.CounterVec
	errorsTotal         *prometheus.CounterVec
	batchSize           prometheus.Histogram
	uploadsTotal        *prometheus.CounterVec
	uploadDuration      prometheus.Histogram
	circuitBreakerState *prometheus.GaugeVec
	circuitBreakerTrips *prometheus.CounterVec
}

// NewRecorder creates a recorder backed by its own registry.
func NewRecorder(enabled bool) *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		enabled:  enabled,
		registry: reg,

		// Request metrics
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prompt_evaluator_requests_total",
				Help: "Total number of inference requests",
			},
			[]string{"status", "model"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "prompt_evaluator_request_duration_seconds",
				Help:    "Duration of inference requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model"},
		),
		tokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prompt_evaluator_tokens_used_total",
				Help: "Total number of tokens reported by the inference API",
			},
			[]string{"type"}, // prompt, completion
		),

		// Error metrics
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prompt_evaluator_errors_total",
				Help: "Total number of failed prompts by error type",
			},
			[]string{"error_type"},
		),

		// Batch metrics
		batchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "prompt_evaluator_batch_size",
				Help:    "Number of prompts per evaluation run",
				Buckets: []float64{0, 1, 10, 50, 100, 500, 1000, 5000},
			},
		),

		// Upload metrics
		uploadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prompt_evaluator_uploads_total",
				Help: "Total number of dataset uploads by status",
			},
			[]string{"status"},
		),
		uploadDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "prompt_evaluator_upload_duration_seconds",
				Help:    "Duration of dataset uploads in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),

		// Circuit breaker metrics
		circuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "prompt_evaluator_circuit_breaker_state",
				Help: "Current state of circuit breaker (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		circuitBreakerTrips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prompt_evaluator_circuit_breaker_trips_total",
				Help: "Total number of circuit breaker trips",
			},
			[]string{"name"},
		),
	}
}

func (m *Recorder) active() bool {
	return m != nil && m.enabled
}

// RecordRequest records an inference request outcome
func (m *Recorder) RecordRequest(status string, model string) {
	if !m.active() {
		return
	}
	m.requestsTotal.WithLabelValues(status, model).Inc()
}

// RecordRequestDuration records inference request duration
func (m *Recorder) RecordRequestDuration(seconds float64, model string) {
	if !m.active() {
		return
	}
	m.requestDuration.WithLabelValues(model).Observe(seconds)
}

// RecordTokensUsed records tokens used
func (m *Recorder) RecordTokensUsed(tokenType string, count int) {
	if !m.active() || count <= 0 {
		return
	}
	m.tokensUsed.WithLabelValues(tokenType).Add(float64(count))
}

// RecordError records a failed prompt by class
func (m *Recorder) RecordError(errorType string) {
	if !m.active() {
		return
	}
	m.errorsTotal.WithLabelValues(errorType).Inc()
}

// RecordBatchSize records the number of prompts in a run
func (m *Recorder) RecordBatchSize(size int) {
	if !m.active() {
		return
	}
	m.batchSize.Observe(float64(size))
}


// RecordUpload records a dataset upload outcome and its duration
func (m *Recorder) RecordUpload(status string, seconds float64) {
	if !m.active() {
		return
	}
	m.uploadsTotal.WithLabelValues(status).Inc()
	m.uploadDuration.Observe(seconds)
}

// RecordCircuitBreakerState records circuit breaker state
func (m *Recorder) RecordCircuitBreakerState(name string, state int) {
	if !m.active() {
		return
	}
	m.circuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordCircuitBreakerTrip records a circuit breaker trip
func (m *Recorder) RecordCircuitBreakerTrip(name string) {
	if !m.active() {
		return
	}
	m.circuitBreakerTrips.WithLabelValues(name).Inc()
}

// Gatherer exposes the underlying registry, mainly for tests.
func (m *Recorder) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Push sends every collected metric to the Pushgateway at url.
func (m *Recorder) Push(ctx context.Context, url string) error {
	if !m.active() {
		return nil
	}
	if err := push.New(url, JobName).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}
