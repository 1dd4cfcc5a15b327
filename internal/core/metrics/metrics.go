package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values for OperationOutcomes.
const (
	OutcomeSuccess    = "success"
	OutcomeRecovered  = "recovered"
	OutcomeExhausted  = "exhausted"
	OutcomeFailedFast = "failed_fast"
	OutcomeCanceled   = "canceled"
)

var (
	// Attempts counts every invocation of a retried operation
	Attempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_attempts_total",
			Help: "Total number of operation attempts",
		},
		[]string{"operation"},
	)

	// Retries counts attempts that were followed by a backoff and another try
	Retries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_retries_total",
			Help: "Total number of retries scheduled",
		},
		[]string{"operation", "category"},
	)

	// OperationOutcomes tracks terminal states of retried operations
	OperationOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_operation_outcomes_total",
			Help: "Terminal outcomes of retried operations",
		},
		[]string{"operation", "outcome"},
	)

	// BackoffDelay tracks computed backoff waits
	BackoffDelay = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "resilience_backoff_delay_seconds",
			Help:    "Backoff delay before a retry in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"operation"},
	)

	// TransactionRetries counts re-submitted storage transactions
	TransactionRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_transaction_retries_total",
			Help: "Total number of transaction retries by conflict signature",
		},
		[]string{"signature"},
	)

	// TransactionOutcomes tracks terminal states of retried transactions
	TransactionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_transaction_outcomes_total",
			Help: "Terminal outcomes of retried transactions",
		},
		[]string{"outcome"},
	)

	// FailuresLogged counts failures reported through the structured logger
	FailuresLogged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_failures_logged_total",
			Help: "Failures logged by level and category",
		},
		[]string{"level", "category"},
	)

	// DBConnectionPoolUsage tracks database connection pool usage percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "resilience_db_connection_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)

	// RPCCalls tracks outbound gRPC calls made through the retry interceptor
	RPCCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_rpc_calls_total",
			Help: "Outbound RPC calls by method and status code",
		},
		[]string{"method", "code"},
	)
)
