package hardware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.bug.st/serial/enumerator"
)

func TestDescribePort_KnownFTDIChip(t *testing.T) {
	p := &enumerator.PortDetails{
		Name:         "/dev/ttyUSB0",
		IsUSB:        true,
		VID:          "0403",
		PID:          "6011",
		SerialNumber: "FT1234AB",
		Product:      "FT4232H",
	}

	d := describePort(p)

	assert.Equal(t, "/dev/ttyUSB0", d.PortName)
	assert.Equal(t, "0403:6011", d.DeviceIdentity)
	assert.Equal(t, "FT4232H", d.ChipFamily)
	assert.Equal(t, "FT1234AB", d.BridgeSerial)
	assert.True(t, d.ValidForPool)
	assert.Equal(t, "recognized bridge vendor", d.ValidationReason)
	assert.Equal(t, 100, d.ValidationScore)
}

func TestDescribePort_UnknownVendorNotValid(t *testing.T) {
	p := &enumerator.PortDetails{
		Name:  "/dev/ttyUSB9",
		IsUSB: true,
		VID:   "dead",
		PID:   "beef",
	}

	d := describePort(p)

	assert.False(t, d.ValidForPool)
	assert.Empty(t, d.ChipFamily)
	assert.Equal(t, "unrecognized vendor", d.ValidationReason)
	assert.Equal(t, 40, d.ValidationScore)
}

func TestDescribePort_VendorKnownButChipUnmapped(t *testing.T) {
	p := &enumerator.PortDetails{
		Name:  "/dev/ttyUSB1",
		IsUSB: true,
		VID:   "067b",
		PID:   "2303",
	}

	d := describePort(p)

	assert.True(t, d.ValidForPool)
	assert.Empty(t, d.ChipFamily)
	assert.Equal(t, 80, d.ValidationScore)
}

func TestDescribePort_NonUSBNeverValid(t *testing.T) {
	p := &enumerator.PortDetails{
		Name:  "/dev/ttyS0",
		IsUSB: false,
		VID:   "0403",
		PID:   "6011",
	}

	d := describePort(p)

	assert.False(t, d.ValidForPool)
	assert.Equal(t, 60, d.ValidationScore)
}

func TestDescribePort_VendorIDCaseInsensitive(t *testing.T) {
	p := &enumerator.PortDetails{
		Name:  "/dev/ttyUSB2",
		IsUSB: true,
		VID:   "10C4",
		PID:   "EA70",
	}

	d := describePort(p)
	assert.Equal(t, "10c4", d.VendorID)
	assert.Equal(t, "ea70", d.ProductID)
}

func TestValidationScore(t *testing.T) {
	assert.Equal(t, 100, validationScore(true, true, true))
	assert.Equal(t, 0, validationScore(false, false, false))
	assert.Equal(t, 40, validationScore(true, false, false))
	assert.Equal(t, 40, validationScore(false, true, false))
	assert.Equal(t, 20, validationScore(false, false, true))
}

func TestNewSystemPortEnumerator(t *testing.T) {
	e := NewSystemPortEnumerator()
	assert.NotNil(t, e)
}
