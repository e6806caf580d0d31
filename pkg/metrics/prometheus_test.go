package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewPoolMetrics(t *testing.T) {
	m := NewPoolMetrics("test_pool_metrics")
	if m.AllocationsTotal == nil {
		t.Error("AllocationsTotal not initialized")
	}
	m.AllocationsTotal.WithLabelValues("success").Inc()
	m.ActiveLeases.Set(3)
	m.AvailablePorts.Set(7)
}

func TestNewReservationMetrics(t *testing.T) {
	m := NewReservationMetrics("test_reservation_metrics")
	m.ReservationsTotal.WithLabelValues("granted").Inc()
	m.ExpiredTotal.Inc()
	m.ExtendedTotal.Inc()
	m.ActiveReservations.Set(2)
	m.SweepDuration.Observe(0.01)
}

func TestNewCacheMetrics(t *testing.T) {
	m := NewCacheMetrics("test_cache_metrics")
	m.Hits.WithLabelValues("hardware").Inc()
	m.Misses.WithLabelValues("resolver").Inc()
	m.Refreshes.WithLabelValues("hardware", "success").Inc()
	m.Evictions.WithLabelValues("resolver").Inc()
	m.Entries.WithLabelValues("hardware").Set(12)
	m.RefreshLatency.WithLabelValues("hardware").Observe(0.002)
}

func TestNewProtocolMetrics(t *testing.T) {
	m := NewProtocolMetrics("test_protocol_metrics")
	m.CommandsTotal.WithLabelValues("rs232", "success").Inc()
	m.CommandDuration.WithLabelValues("rs232").Observe(0.05)
	m.RetriesTotal.WithLabelValues("rs232", "timeout").Inc()
	m.TransportErrors.WithLabelValues("rs232").Inc()
}

func TestNewWorkflowMetrics(t *testing.T) {
	m := NewWorkflowMetrics("test_workflow_metrics")
	m.RunsTotal.WithLabelValues("passed").Inc()
	m.PhaseDuration.WithLabelValues("test").Observe(1.2)
	m.ActiveRuns.Set(1)
}

func TestRetryMetrics_Record(t *testing.T) {
	m := NewRetryMetrics("test_retry_metrics")

	// Exercised through the public recording methods used by
	// internal/core/resilience.WithRetry.
	m.RecordAttempt("port_open", "failure", "timeout", 0.1)
	m.RecordFinalAttempt("port_open", "success", 2)
	m.RecordBackoff("port_open", 0.2)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.Enabled {
		t.Error("expected metrics enabled by default")
	}
	if cfg.Path != "/metrics" {
		t.Errorf("expected default path /metrics, got %q", cfg.Path)
	}
	if cfg.Namespace != "portcore" {
		t.Errorf("expected default namespace portcore, got %q", cfg.Namespace)
	}
}

func TestHandler(t *testing.T) {
	h := Handler()
	if h == nil {
		t.Fatal("Handler() returned nil")
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200 from scrape handler, got %d", rec.Code)
	}
}

func BenchmarkRetryMetrics_RecordAttempt(b *testing.B) {
	m := NewRetryMetrics("bench_retry_metrics")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordAttempt("port_open", "failure", "timeout", 0.1)
	}
}
