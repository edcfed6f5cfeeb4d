package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks total HTTP requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration tracks HTTP request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// ActiveWorkers is the number of reconciliation workers currently polling.
	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reconciler_active_workers",
			Help: "Number of reconciliation workers currently running",
		},
	)

	// QueuedSessions is the number of sessions waiting for a free worker slot.
	QueuedSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reconciler_queued_sessions",
			Help: "Number of sessions waiting for a worker slot",
		},
	)

	// WorkerOutcomes counts how workers finished, by outcome.
	WorkerOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_worker_outcomes_total",
			Help: "Total number of finished workers by outcome",
		},
		[]string{"outcome"},
	)

	// TerminalTransitions counts successful conditional writes by new status.
	TerminalTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_terminal_transitions_total",
			Help: "Total number of sessions moved to a terminal status",
		},
		[]string{"status"},
	)

	// LedgerFetches counts ledger queries by result (ok, transient, breaker_open).
	LedgerFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_fetches_total",
			Help: "Total number of ledger transaction queries by result",
		},
		[]string{"result"},
	)

	// LedgerFetchDuration tracks ledger query latency
	LedgerFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ledger_fetch_duration_seconds",
			Help:    "Ledger transaction query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// CircuitBreakerState tracks circuit breaker state (0=closed, 1=open, 2=half-open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"circuit_name"},
	)

	// NotificationsTotal counts published notification events by kind and result.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Total number of notification events by kind and result",
		},
		[]string{"kind", "result"},
	)
)

// GinMiddleware records request count and latency per route.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		RequestsTotal.WithLabelValues(c.Request.Method, endpoint, status).Inc()
		RequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}
