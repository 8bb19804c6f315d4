// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the remedy service.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// SandboxBuckets defines histogram buckets suited for sandboxed executions,
// which are bounded by a wall-clock limit of a few seconds.
var SandboxBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10}

var (
	// RequestsTotal counts all HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remedy_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "remedy_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method"},
	)

	// StreamingConnections tracks the number of active SSE streaming connections.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "remedy_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// RepairsTotal counts completed repairs by terminal status.
	RepairsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remedy_repairs_total",
			Help: "Completed repairs",
		},
		[]string{"status"},
	)

	// RepairAttempts records the number of execution attempts a repair used.
	RepairAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "remedy_repair_attempts",
			Help:    "Execution attempts per repair",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		},
	)

	// SandboxExecutionsTotal counts sandbox executions by termination kind
	// (ok, error, timeout).
	SandboxExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remedy_sandbox_executions_total",
			Help: "Sandbox executions",
		},
		[]string{"termination"},
	)

	// SandboxExecutionDuration records sandbox execution wall time in seconds.
	SandboxExecutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "remedy_sandbox_execution_duration_seconds",
			Help:    "Sandbox execution duration",
			Buckets: SandboxBuckets,
		},
	)

	// OracleRequestsTotal counts fix suggestions requested from the oracle
	// backend by outcome (ok, error, timeout).
	OracleRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remedy_oracle_requests_total",
			Help: "Oracle requests",
		},
		[]string{"backend", "outcome"},
	)

	// OracleLatency records oracle round-trip latency in seconds.
	OracleLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "remedy_oracle_latency_seconds",
			Help:    "Oracle latency",
			Buckets: LLMBuckets,
		},
		[]string{"backend"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remedy_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		RepairsTotal,
		RepairAttempts,
		SandboxExecutionsTotal,
		SandboxExecutionDuration,
		OracleRequestsTotal,
		OracleLatency,
		RateLimitRejectedTotal,
	)
}
