// Package reservation layers lease semantics over the port pool: a
// PortReservation wraps a PortAllocation with a wall-clock expiry
// independent of any single operation's timeout.
package reservation

import (
	"time"

	"github.com/benchforge/portcore/internal/pool"
)

// Criteria selects candidates for a reservation and supplies the default
// lease duration when the caller doesn't specify one.
type Criteria struct {
	ValidationConfig pool.ValidationConfig
	DefaultDuration  time.Duration
}

// PortReservation is a lease over a PortAllocation.
type PortReservation struct {
	ID         string
	PortName   string
	SessionID  string
	ClientID   string
	Duration   time.Duration
	AcquiredAt time.Time
	ExpiresAt  time.Time
	Criteria   Criteria
}

// IsActive reports whether the reservation has not yet expired.
func (r *PortReservation) IsActive() bool {
	return time.Now().Before(r.ExpiresAt)
}
