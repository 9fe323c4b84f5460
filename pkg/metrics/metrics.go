package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	IntakeInvoicesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_invoices_total",
			Help: "Total number of invoice payloads processed by the intake service (count)",
		},
		[]string{"source", "status"},
	)

	IngestionFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingestion_failures_total",
			Help: "Total number of recorded ingestion failure events (count)",
		},
		[]string{"source", "error_type"},
	)

	IntakeProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "intake_processing_duration_ms",
			Help:    "Per-invoice intake processing duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"status"},
	)

	IntakeBatchSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "intake_batch_size",
			Help:    "Number of payloads returned per source fetch (count)",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		},
		[]string{"source"},
	)

	IntakeQueueSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "intake_queue_size",
			Help: "Number of distinct invoices currently in the intake queue (count)",
		},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	AlertPublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_publish_total",
			Help: "Total number of failure events published to the alert topic (count)",
		},
		[]string{"status"},
	)
)

var registerOnce sync.Once

// Register registers all intake service metrics with the default registry.
// Safe to call from multiple wiring paths.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			IntakeInvoicesTotal,
			IngestionFailuresTotal,
			IntakeProcessingDuration,
			IntakeBatchSize,
			IntakeQueueSize,
			CircuitBreakerState,
			CircuitBreakerRequests,
			CircuitBreakerFailures,
			RateLimitRequestsTotal,
			AlertPublishTotal,
		)
	})
}

// ObserveIntakeDuration records a per-invoice processing duration.
func ObserveIntakeDuration(d time.Duration, status string) {
	IntakeProcessingDuration.WithLabelValues(status).Observe(float64(d.Milliseconds()))
}
