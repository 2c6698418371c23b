package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RetryAttemptsTotal tracks retry attempts per operation
	RetryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_retry_attempts_total",
			Help: "Total number of retry attempts",
		},
		[]string{"operation"},
	)

	// RetryFinalFailuresTotal tracks operations that exhausted their retry budget
	RetryFinalFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_retry_final_failures_total",
			Help: "Total number of operations that failed after all attempts",
		},
		[]string{"operation"},
	)

	// RetryBackoffSeconds tracks induced backoff delay per retry
	RetryBackoffSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "resilience_retry_backoff_seconds",
			Help:    "Backoff delay applied before retry attempts",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	// DBConnectionPoolUsage tracks open connections as a percentage of the pool cap
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "resilience_db_connection_pool_usage",
			Help: "Database connection pool usage percentage",
		},
	)

	// ComponentHealthy reports the last health probe result per component (1 = healthy)
	ComponentHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "resilience_component_healthy",
			Help: "Whether the component passed its last health check",
		},
		[]string{"component"},
	)

	// HTTPRequestsTotal tracks requests served by the ops HTTP server
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_http_requests_total",
			Help: "Total number of HTTP requests served",
		},
		[]string{"path", "status"},
	)
)
