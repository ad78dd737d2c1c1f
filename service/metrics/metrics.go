package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	gatherer prometheus.Gatherer

	// Solana RPC Metrics
	solanaRPCCallsTotal    *prometheus.CounterVec
	solanaRPCCallDuration  *prometheus.HistogramVec
	solanaRPCRateLimitWait *prometheus.HistogramVec

	// Reconciliation Metrics
	reconcileOutcomesTotal  *prometheus.CounterVec
	reconcileAttempts       *prometheus.HistogramVec
	dispatchRetriesTotal    *prometheus.CounterVec
	confirmationWaitSeconds *prometheus.HistogramVec

	// Audit sink Metrics
	natsMessagesPublished *prometheus.CounterVec
	dbOperationsTotal     *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if registry != nil {
		registerer = registry
		gatherer = registry
	}

	factory := promauto.With(registerer)

	return &Metrics{
		gatherer: gatherer,

		// Solana RPC Metrics
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		solanaRPCRateLimitWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_rate_limit_wait_seconds",
				Help:    "Time spent waiting on the client-side RPC rate limiter",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"endpoint"},
		),

		// Reconciliation Metrics
		reconcileOutcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "distributor_reconcile_outcomes_total",
				Help: "Total number of reconciled distributor versions by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		reconcileAttempts: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "distributor_reconcile_attempts",
				Help:    "Number of attempts needed to reconcile one distributor version",
				Buckets: []float64{1, 2, 3, 5, 10, 20, 50},
			},
			[]string{"operation"},
		),
		dispatchRetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "distributor_dispatch_retries_total",
				Help: "Total number of dispatch retries after a transient failure",
			},
			[]string{"operation"},
		),
		confirmationWaitSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "distributor_confirmation_wait_seconds",
				Help:    "Time spent waiting for transaction confirmation",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"status"},
		),

		// Audit sink Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRateLimitWait records time blocked on the client-side limiter.
func (m *Metrics) RecordRateLimitWait(endpoint string, seconds float64) {
	m.solanaRPCRateLimitWait.WithLabelValues(endpoint).Observe(seconds)
}

// Reconciliation metric helpers

// RecordReconcileOutcome records the final outcome for one version.
func (m *Metrics) RecordReconcileOutcome(operation, outcome string, attempts int) {
	m.reconcileOutcomesTotal.WithLabelValues(operation, outcome).Inc()
	m.reconcileAttempts.WithLabelValues(operation).Observe(float64(attempts))
}

// RecordDispatchRetry records a retry after a transient failure.
func (m *Metrics) RecordDispatchRetry(operation string) {
	m.dispatchRetriesTotal.WithLabelValues(operation).Inc()
}

// RecordConfirmationWait records how long a confirmation wait took.
func (m *Metrics) RecordConfirmationWait(status string, seconds float64) {
	m.confirmationWaitSeconds.WithLabelValues(status).Observe(seconds)
}

// Audit sink metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject string, err error) {
	m.natsMessagesPublished.WithLabelValues(subject, statusFromError(err)).Inc()
}

// RecordDBOperation records a database operation.
func (m *Metrics) RecordDBOperation(operation string, err error) {
	m.dbOperationsTotal.WithLabelValues(operation, statusFromError(err)).Inc()
}

// Push sends every collected metric to a Prometheus Pushgateway.
// Short CLI runs use this instead of a scrape endpoint.
func (m *Metrics) Push(gatewayURL, job string) error {
	if err := push.New(gatewayURL, job).Gatherer(m.gatherer).Push(); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}

// Helper functions

func statusFromError(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
