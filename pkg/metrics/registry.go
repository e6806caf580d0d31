// Package metrics provides centralized Prometheus metrics management for the
// port orchestration core.
//
// This package implements a unified taxonomy for Prometheus metrics, grouped
// by the component that owns them: pool, reservation, cache (hardware +
// resolver), protocol and workflow.
//
// All metrics follow the naming convention:
// portcore_<category>_<metric_name>_<unit>
//
// Example:
//
//	registry := metrics.DefaultRegistry()
//	registry.Pool().AllocationsTotal.WithLabelValues("success").Inc()
//	registry.Cache().Hits.WithLabelValues("hardware").Inc()
package metrics

import (
	"sync"
)

// MetricCategory represents the category of a metric.
type MetricCategory string

const (
	// CategoryPool covers port allocation and lease accounting.
	CategoryPool MetricCategory = "pool"

	// CategoryReservation covers reservation lifecycle and expiry sweeps.
	CategoryReservation MetricCategory = "reservation"

	// CategoryCache covers TTL caches (hardware metadata, BIB resolution).
	CategoryCache MetricCategory = "cache"

	// CategoryProtocol covers wire transport and command execution.
	CategoryProtocol MetricCategory = "protocol"

	// CategoryWorkflow covers start/test/stop phase execution.
	CategoryWorkflow MetricCategory = "workflow"

	// CategoryRetry covers the shared retry helper in internal/core/resilience.
	CategoryRetry MetricCategory = "retry"
)

// MetricsRegistry is the central registry for all Prometheus metrics.
// Provides organized access to metrics by category.
//
// Thread-safe: all Prometheus metrics are thread-safe by design.
// Singleton: use DefaultRegistry() to get the global instance.
type MetricsRegistry struct {
	namespace string

	pool        *PoolMetrics
	reservation *ReservationMetrics
	cache       *CacheMetrics
	protocol    *ProtocolMetrics
	workflow    *WorkflowMetrics
	retry       *RetryMetrics

	poolOnce        sync.Once
	reservationOnce sync.Once
	cacheOnce       sync.Once
	protocolOnce    sync.Once
	workflowOnce    sync.Once
	retryOnce       sync.Once
}

var (
	defaultRegistry     *MetricsRegistry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the global singleton MetricsRegistry.
// Safe for concurrent use. Initialized once on first call.
func DefaultRegistry() *MetricsRegistry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewMetricsRegistry("portcore")
	})
	return defaultRegistry
}

// NewMetricsRegistry creates a new MetricsRegistry with the specified
// namespace. For most use cases, use DefaultRegistry() instead.
func NewMetricsRegistry(namespace string) *MetricsRegistry {
	if namespace == "" {
		namespace = "portcore"
	}
	return &MetricsRegistry{namespace: namespace}
}

// Pool returns the port pool metrics, lazily initialized.
func (r *MetricsRegistry) Pool() *PoolMetrics {
	r.poolOnce.Do(func() {
		r.pool = NewPoolMetrics(r.namespace)
	})
	return r.pool
}

// Reservation returns the reservation metrics, lazily initialized.
func (r *MetricsRegistry) Reservation() *ReservationMetrics {
	r.reservationOnce.Do(func() {
		r.reservation = NewReservationMetrics(r.namespace)
	})
	return r.reservation
}

// Cache returns the cache metrics (hardware metadata + BIB resolution),
// lazily initialized.
func (r *MetricsRegistry) Cache() *CacheMetrics {
	r.cacheOnce.Do(func() {
		r.cache = NewCacheMetrics(r.namespace)
	})
	return r.cache
}

// Protocol returns the protocol/transport metrics, lazily initialized.
func (r *MetricsRegistry) Protocol() *ProtocolMetrics {
	r.protocolOnce.Do(func() {
		r.protocol = NewProtocolMetrics(r.namespace)
	})
	return r.protocol
}

// Workflow returns the workflow execution metrics, lazily initialized.
func (r *MetricsRegistry) Workflow() *WorkflowMetrics {
	r.workflowOnce.Do(func() {
		r.workflow = NewWorkflowMetrics(r.namespace)
	})
	return r.workflow
}

// Retry returns the shared retry-helper metrics, lazily initialized.
func (r *MetricsRegistry) Retry() *RetryMetrics {
	r.retryOnce.Do(func() {
		r.retry = NewRetryMetrics(r.namespace)
	})
	return r.retry
}

// Namespace returns the configured Prometheus namespace for this registry.
func (r *MetricsRegistry) Namespace() string {
	return r.namespace
}
