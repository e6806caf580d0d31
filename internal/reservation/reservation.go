package reservation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/benchforge/portcore/internal/pool"
	"github.com/benchforge/portcore/pkg/metrics"
)

// Config configures a Layer.
type Config struct {
	Pool          *pool.Pool
	SweepInterval time.Duration
	Logger        *slog.Logger
	Metrics       *metrics.ReservationMetrics
}

func (c *Config) setDefaults() {
	if c.SweepInterval <= 0 {
		c.SweepInterval = 5 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func (c *Config) validate() error {
	if c.Pool == nil {
		return fmt.Errorf("reservation: pool is required")
	}
	return nil
}

// Layer wraps a Pool in lease semantics: reservations expire on a
// wall-clock schedule independent of the pool's own state, with a
// background sweep freeing expired allocations.
type Layer struct {
	cfg Config

	mu           sync.RWMutex
	reservations map[string]*PortReservation

	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// New builds a Layer from cfg.
func New(cfg Config) (*Layer, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Layer{
		cfg:          cfg,
		reservations: make(map[string]*PortReservation),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}, nil
}

// Start launches the background expiry sweep.
func (l *Layer) Start(ctx context.Context) {
	l.once.Do(func() {
		go l.sweepLoop(ctx)
	})
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (l *Layer) Stop() {
	close(l.stopCh)
	<-l.doneCh
}

func (l *Layer) sweepLoop(ctx context.Context) {
	defer close(l.doneCh)

	ticker := time.NewTicker(l.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

// Reserve allocates a port via the pool and wraps it in a lease. duration
// defaults to criteria.DefaultDuration when zero.
func (l *Layer) Reserve(ctx context.Context, criteria Criteria, clientID string, duration time.Duration) (*PortReservation, bool) {
	if duration <= 0 {
		duration = criteria.DefaultDuration
	}

	allocation, ok := l.cfg.Pool.Allocate(ctx, criteria.ValidationConfig, clientID)
	if !ok {
		if l.cfg.Metrics != nil {
			l.cfg.Metrics.ReservationsTotal.WithLabelValues("exhausted").Inc()
		}
		return nil, false
	}

	now := time.Now()
	res := &PortReservation{
		ID:         uuid.NewString(),
		PortName:   allocation.PortName,
		SessionID:  allocation.SessionID,
		ClientID:   clientID,
		Duration:   duration,
		AcquiredAt: now,
		ExpiresAt:  now.Add(duration),
		Criteria:   criteria,
	}

	l.mu.Lock()
	l.reservations[res.ID] = res
	l.mu.Unlock()

	if l.cfg.Metrics != nil {
		l.cfg.Metrics.ReservationsTotal.WithLabelValues("success").Inc()
		l.cfg.Metrics.ActiveReservations.Set(float64(l.count()))
	}
	return res, true
}

// Release releases a reservation, requiring a matching clientID. It
// releases the underlying allocation and removes the reservation record.
func (l *Layer) Release(reservationID, clientID string) bool {
	l.mu.Lock()
	res, ok := l.reservations[reservationID]
	if !ok || res.ClientID != clientID {
		l.mu.Unlock()
		return false
	}
	delete(l.reservations, reservationID)
	l.mu.Unlock()

	l.cfg.Pool.Release(res.PortName, res.SessionID)
	return true
}

// Extend updates expires_at atomically, provided the reservation is not
// already expired and clientID matches.
func (l *Layer) Extend(reservationID string, additional time.Duration, clientID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, ok := l.reservations[reservationID]
	if !ok || res.ClientID != clientID {
		return false
	}
	if !res.IsActive() {
		return false
	}

	res.ExpiresAt = res.ExpiresAt.Add(additional)
	if l.cfg.Metrics != nil {
		l.cfg.Metrics.ExtendedTotal.Inc()
	}
	return true
}

// ReleaseAllForClient releases every reservation owned by clientID,
// best-effort, returning the number released.
func (l *Layer) ReleaseAllForClient(clientID string) int {
	l.mu.Lock()
	var ids []string
	for id, res := range l.reservations {
		if res.ClientID == clientID {
			ids = append(ids, id)
		}
	}
	l.mu.Unlock()

	released := 0
	for _, id := range ids {
		if l.Release(id, clientID) {
			released++
		}
	}
	return released
}

// IsActive reports whether reservationID exists and has not expired. A
// missing reservation is not active.
func (l *Layer) IsActive(reservationID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	res, ok := l.reservations[reservationID]
	if !ok {
		return false
	}
	return res.IsActive()
}

func (l *Layer) count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.reservations)
}

// sweep releases all expired reservations, freeing their underlying
// allocations. Callers observe is_active=false as soon as now > expires_at,
// without waiting for this sweep; the sweep only reclaims the pool slot.
func (l *Layer) sweep() {
	l.mu.Lock()
	var expired []*PortReservation
	for id, res := range l.reservations {
		if !res.IsActive() {
			expired = append(expired, res)
			delete(l.reservations, id)
		}
	}
	l.mu.Unlock()

	for _, res := range expired {
		l.cfg.Pool.Release(res.PortName, res.SessionID)
		if l.cfg.Metrics != nil {
			l.cfg.Metrics.ExpiredTotal.Inc()
		}
	}

	if l.cfg.Metrics != nil {
		l.cfg.Metrics.ActiveReservations.Set(float64(l.count()))
	}
}
