// Package pool implements the thread-safe exclusive-allocation registry
// over discovered serial ports.
package pool

import "time"

// ValidationConfig filters enumerator candidates before allocation. A
// "strict client" config only accepts ports from AllowedChipFamilies; a
// permissive config accepts any descriptor the enumerator marked valid for
// pool use.
type ValidationConfig struct {
	Strict              bool
	AllowedChipFamilies []string
}

// Permissive returns a ValidationConfig that accepts any pool-valid
// descriptor regardless of chip family.
func Permissive() ValidationConfig {
	return ValidationConfig{Strict: false}
}

// StrictFor returns a ValidationConfig that only accepts the named chip
// families.
func StrictFor(chipFamilies ...string) ValidationConfig {
	return ValidationConfig{Strict: true, AllowedChipFamilies: chipFamilies}
}

// PortAllocation is an exclusive hold of a physical port.
type PortAllocation struct {
	SessionID       string
	ClientID        string
	PortName        string
	AcquiredAt      time.Time
	AllocatedTo     string
	ValidationScore int
	Metadata        map[string]interface{}
}
