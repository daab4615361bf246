// Package metrics exposes Prometheus collectors for import and rewrite runs
// and for calls to the remote row store.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsStarted counts runs by kind (import, rewrite)
	RunsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_sync_runs_started_total",
		Help: "Total number of runs started",
	}, []string{"kind"})

	// RunsFinished counts finished runs by kind and outcome
	RunsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_sync_runs_finished_total",
		Help: "Total number of runs finished",
	}, []string{"kind", "outcome"})

	// RunDuration tracks how long runs take
	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_sync_run_duration_seconds",
		Help:    "Duration of runs in seconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"kind"})

	// RunActive is 1 while a run is in progress
	RunActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_sync_run_active",
		Help: "Whether a run is in progress (1) or not (0)",
	})

	// EntriesSettled counts playlist entries by final status
	EntriesSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_sync_entries_total",
		Help: "Total number of playlist entries by final status",
	}, []string{"status"})

	// RowsRewritten counts rows whose URLs were rewritten
	RowsRewritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_sync_rows_rewritten_total",
		Help: "Total number of rows updated by URL rewrites",
	})

	// RemoteRequests counts row-store calls by operation and result
	RemoteRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_sync_remote_requests_total",
		Help: "Total number of row store requests",
	}, []string{"operation", "result"})

	// RemoteLatency tracks row-store call latency by operation
	RemoteLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_sync_remote_request_duration_seconds",
		Help:    "Row store request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// CircuitBreakerState tracks the current state of circuit breakers
	// 0=closed, 1=open, 2=half-open
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "catalog_sync_circuit_breaker_state",
		Help: "Current state of circuit breaker (0=closed, 1=open, 2=half-open)",
	}, []string{"name"})

	// CircuitBreakerTrips tracks how many times a circuit breaker transitioned to OPEN
	CircuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_sync_circuit_breaker_trips_total",
		Help: "Total number of times circuit breaker transitioned to OPEN state",
	}, []string{"name"})

	// HealthCheckFailures tracks health check failures
	HealthCheckFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_sync_health_check_failures_total",
		Help: "Total number of health check failures",
	})
)

// SetCircuitBreakerState updates the circuit breaker state metric
// state should be one of: "closed" (0), "open" (1), "half-open" (2)
func SetCircuitBreakerState(name, state string) {
	var value float64
	switch state {
	case "closed":
		value = 0
	case "open":
		value = 1
	case "half-open":
		value = 2
	}
	CircuitBreakerState.WithLabelValues(name).Set(value)
}

// RecordCircuitBreakerTrip increments the circuit breaker trip counter
func RecordCircuitBreakerTrip(name string) {
	CircuitBreakerTrips.WithLabelValues(name).Inc()
}

// RecordRunStarted marks a run of the given kind as started
func RecordRunStarted(kind string) {
	RunsStarted.WithLabelValues(kind).Inc()
	RunActive.Set(1)
}

// RecordRunFinished records the outcome and duration of a run
func RecordRunFinished(kind, outcome string, d time.Duration) {
	RunsFinished.WithLabelValues(kind, outcome).Inc()
	RunDuration.WithLabelValues(kind).Observe(d.Seconds())
	RunActive.Set(0)
}

// RecordEntries adds n entries settled with the given status
func RecordEntries(status string, n int) {
	if n <= 0 {
		return
	}
	EntriesSettled.WithLabelValues(status).Add(float64(n))
}

// RecordRowsRewritten adds n rewritten rows
func RecordRowsRewritten(n int) {
	if n <= 0 {
		return
	}
	RowsRewritten.Add(float64(n))
}

// RecordRemoteRequest records one row-store call
func RecordRemoteRequest(operation, result string, d time.Duration) {
	RemoteRequests.WithLabelValues(operation, result).Inc()
	RemoteLatency.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordHealthCheckFailure increments the health check failure counter
func RecordHealthCheckFailure() {
	HealthCheckFailures.Inc()
}
