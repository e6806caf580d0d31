package hardware

import (
	"context"
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"
)

// SystemPortEnumerator discovers serial ports actually attached to the host
// via go.bug.st/serial's USB descriptor walk. USB ports on FTDI, Silicon
// Labs or Prolific bridges are marked ValidForPool; anything else is
// reported but excluded from pool allocation by default.
type SystemPortEnumerator struct{}

// NewSystemPortEnumerator returns a PortEnumerator backed by the host's USB
// device list.
func NewSystemPortEnumerator() *SystemPortEnumerator {
	return &SystemPortEnumerator{}
}

var knownVendors = map[string]string{
	"0403": "FTDI",
	"10c4": "SiliconLabs",
	"067b": "Prolific",
}

var knownChipFamilies = map[string]string{
	"0403:6011": "FT4232H",
	"0403:6010": "FT2232H",
	"10c4:ea70": "CP2105",
	"10c4:ea71": "CP2108",
}

// Discover lists every serial port the host currently exposes.
func (e *SystemPortEnumerator) Discover(ctx context.Context) ([]PortDescriptor, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("hardware: enumerate serial ports: %w", err)
	}

	out := make([]PortDescriptor, 0, len(ports))
	for _, p := range ports {
		out = append(out, describePort(p))
	}
	return out, nil
}

// Info returns the descriptor for one named port, or nil if it is not
// currently attached.
func (e *SystemPortEnumerator) Info(ctx context.Context, portName string) (*PortDescriptor, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("hardware: enumerate serial ports: %w", err)
	}
	for _, p := range ports {
		if p.Name == portName {
			d := describePort(p)
			return &d, nil
		}
	}
	return nil, nil
}

func describePort(p *enumerator.PortDetails) PortDescriptor {
	vendor := strings.ToLower(p.VID)
	product := strings.ToLower(p.PID)
	key := vendor + ":" + product

	family, known := knownChipFamilies[key]
	_, validVendor := knownVendors[vendor]

	reason := "unrecognized vendor"
	if validVendor {
		reason = "recognized bridge vendor"
	}

	return PortDescriptor{
		PortName:         p.Name,
		DeviceIdentity:   key,
		VendorID:         vendor,
		ProductID:        product,
		ChipFamily:       family,
		BridgeSerial:     p.SerialNumber,
		FriendlyName:     p.Product,
		ValidForPool:     p.IsUSB && validVendor,
		ValidationScore:  validationScore(p.IsUSB, validVendor, known),
		ValidationReason: reason,
	}
}

func validationScore(isUSB, validVendor, knownChip bool) int {
	score := 0
	if isUSB {
		score += 40
	}
	if validVendor {
		score += 40
	}
	if knownChip {
		score += 20
	}
	return score
}
