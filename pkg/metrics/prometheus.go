package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PoolMetrics tracks port pool allocation and lease accounting.
type PoolMetrics struct {
	AllocationsTotal *prometheus.CounterVec
	ReleasesTotal    *prometheus.CounterVec
	ActiveLeases     prometheus.Gauge
	AvailablePorts   prometheus.Gauge
}

// NewPoolMetrics constructs PoolMetrics under the given namespace.
func NewPoolMetrics(namespace string) *PoolMetrics {
	return &PoolMetrics{
		AllocationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "allocations_total",
				Help:      "Total port allocation attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		),
		ReleasesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "releases_total",
				Help:      "Total port releases, labeled by reason.",
			},
			[]string{"reason"},
		),
		ActiveLeases: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "active_leases",
				Help:      "Number of ports currently leased.",
			},
		),
		AvailablePorts: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "available_ports",
				Help:      "Number of ports currently available for allocation.",
			},
		),
	}
}

// ReservationMetrics tracks reservation lifecycle and expiry sweeps.
type ReservationMetrics struct {
	ReservationsTotal *prometheus.CounterVec
	ExpiredTotal      prometheus.Counter
	ExtendedTotal     prometheus.Counter
	ActiveReservations prometheus.Gauge
	SweepDuration     prometheus.Histogram
}

// NewReservationMetrics constructs ReservationMetrics under the given namespace.
func NewReservationMetrics(namespace string) *ReservationMetrics {
	return &ReservationMetrics{
		ReservationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reservation",
				Name:      "reservations_total",
				Help:      "Total reservations created, labeled by outcome.",
			},
			[]string{"outcome"},
		),
		ExpiredTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reservation",
				Name:      "expired_total",
				Help:      "Total reservations reclaimed by the expiry sweep.",
			},
		),
		ExtendedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reservation",
				Name:      "extended_total",
				Help:      "Total reservation lease extensions granted.",
			},
		),
		ActiveReservations: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "reservation",
				Name:      "active",
				Help:      "Number of reservations currently held.",
			},
		),
		SweepDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "reservation",
				Name:      "sweep_duration_seconds",
				Help:      "Duration of the periodic reservation expiry sweep.",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
}

// CacheMetrics tracks TTL cache behavior shared by the hardware metadata
// cache and the BIB resolver cache, distinguished by the "cache" label.
type CacheMetrics struct {
	Hits           *prometheus.CounterVec
	Misses         *prometheus.CounterVec
	Refreshes      *prometheus.CounterVec
	Evictions      *prometheus.CounterVec
	Entries        *prometheus.GaugeVec
	RefreshLatency *prometheus.HistogramVec
}

// NewCacheMetrics constructs CacheMetrics under the given namespace.
func NewCacheMetrics(namespace string) *CacheMetrics {
	return &CacheMetrics{
		Hits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "hits_total",
				Help:      "Cache hits, labeled by cache name.",
			},
			[]string{"cache"},
		),
		Misses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "misses_total",
				Help:      "Cache misses, labeled by cache name.",
			},
			[]string{"cache"},
		),
		Refreshes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "refreshes_total",
				Help:      "Background refreshes performed, labeled by cache name and outcome.",
			},
			[]string{"cache", "outcome"},
		),
		Evictions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "evictions_total",
				Help:      "Entries evicted by TTL expiry or LRU pressure, labeled by cache name.",
			},
			[]string{"cache"},
		),
		Entries: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "entries",
				Help:      "Current number of entries held, labeled by cache name.",
			},
			[]string{"cache"},
		),
		RefreshLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "refresh_latency_seconds",
				Help:      "Latency of a single-flighted cache refresh, labeled by cache name.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"cache"},
		),
	}
}

// ProtocolMetrics tracks wire transport and command execution.
type ProtocolMetrics struct {
	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	RetriesTotal    *prometheus.CounterVec
	TransportErrors *prometheus.CounterVec
}

// NewProtocolMetrics constructs ProtocolMetrics under the given namespace.
func NewProtocolMetrics(namespace string) *ProtocolMetrics {
	return &ProtocolMetrics{
		CommandsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "protocol",
				Name:      "commands_total",
				Help:      "Commands executed, labeled by handler and outcome.",
			},
			[]string{"handler", "outcome"},
		),
		CommandDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "protocol",
				Name:      "command_duration_seconds",
				Help:      "Duration of a single command round-trip, labeled by handler.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"handler"},
		),
		RetriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "protocol",
				Name:      "command_retries_total",
				Help:      "Command-level retries, labeled by handler and reason (timeout, response_mismatch).",
			},
			[]string{"handler", "reason"},
		),
		TransportErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "protocol",
				Name:      "transport_errors_total",
				Help:      "Non-retryable transport errors, labeled by handler.",
			},
			[]string{"handler"},
		),
	}
}

// WorkflowMetrics tracks start/test/stop phase execution.
type WorkflowMetrics struct {
	RunsTotal     *prometheus.CounterVec
	PhaseDuration *prometheus.HistogramVec
	ActiveRuns    prometheus.Gauge
}

// NewWorkflowMetrics constructs WorkflowMetrics under the given namespace.
func NewWorkflowMetrics(namespace string) *WorkflowMetrics {
	return &WorkflowMetrics{
		RunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "workflow",
				Name:      "runs_total",
				Help:      "Workflow runs completed, labeled by outcome.",
			},
			[]string{"outcome"},
		),
		PhaseDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "workflow",
				Name:      "phase_duration_seconds",
				Help:      "Duration of a workflow phase, labeled by phase (start, test, stop).",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"phase"},
		),
		ActiveRuns: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "workflow",
				Name:      "active_runs",
				Help:      "Number of workflow runs currently executing.",
			},
		),
	}
}

// RetryMetrics records outcomes of the shared internal/core/resilience retry
// helper, independent of which component invoked it.
type RetryMetrics struct {
	attempts      *prometheus.CounterVec
	finalAttempts *prometheus.CounterVec
	backoff       *prometheus.HistogramVec
}

// NewRetryMetrics constructs RetryMetrics under the given namespace.
func NewRetryMetrics(namespace string) *RetryMetrics {
	return &RetryMetrics{
		attempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "retry",
				Name:      "attempts_total",
				Help:      "Retry attempts, labeled by operation, status and error type.",
			},
			[]string{"operation", "status", "error_type"},
		),
		finalAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "retry",
				Name:      "final_attempts_total",
				Help:      "Operations resolved (successfully or not) with their final attempt count.",
			},
			[]string{"operation", "status"},
		),
		backoff: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "retry",
				Name:      "backoff_seconds",
				Help:      "Backoff delay applied before a retry, labeled by operation.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordAttempt counts a single retry attempt by outcome. durationSeconds is
// accepted but not recorded.
func (m *RetryMetrics) RecordAttempt(operation, status, errorType string, durationSeconds float64) {
	m.attempts.WithLabelValues(operation, status, errorType).Inc()
}

// RecordFinalAttempt counts the terminal outcome of an operation.
// attemptCount is accepted but not recorded.
func (m *RetryMetrics) RecordFinalAttempt(operation, status string, attemptCount int) {
	m.finalAttempts.WithLabelValues(operation, status).Inc()
}

// RecordBackoff records the delay applied before a retry.
func (m *RetryMetrics) RecordBackoff(operation string, delaySeconds float64) {
	m.backoff.WithLabelValues(operation).Observe(delaySeconds)
}

// Config holds configuration for the metrics HTTP endpoint.
type Config struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
	BindAddr  string `mapstructure:"bind_addr"`
}

// DefaultConfig returns default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Path:      "/metrics",
		Namespace: "portcore",
		BindAddr:  ":9110",
	}
}

// Handler returns the Prometheus scrape handler for the default registerer.
// Used by the serve-metrics CLI command to mount the endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
