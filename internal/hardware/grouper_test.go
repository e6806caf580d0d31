package hardware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupDescriptors_VendorSerialKey(t *testing.T) {
	descriptors := []PortDescriptor{
		{PortName: "COM7", VendorID: "0403", BridgeSerial: "SN1", ChipFamily: "FT4232"},
		{PortName: "COM8", VendorID: "0403", BridgeSerial: "SN1", ChipFamily: "FT4232"},
	}

	groups := GroupDescriptors(descriptors, nil)
	require.Len(t, groups, 1)
	assert.Equal(t, "0403_SN1", groups[0].Key)
	assert.True(t, groups[0].MultiPort)
	assert.Len(t, groups[0].Descriptors, 2)
}

func TestGroupDescriptors_BaseDeviceIdentifierFallback(t *testing.T) {
	descriptors := []PortDescriptor{
		{PortName: "COM7", DeviceIdentity: "usb-1-2.3:1.0"},
		{PortName: "COM8", DeviceIdentity: "usb-1-2.3:1.1"},
	}

	groups := GroupDescriptors(descriptors, nil)
	require.Len(t, groups, 1)
	assert.Equal(t, "usb-1-2.3", groups[0].Key)
	assert.True(t, groups[0].MultiPort)
}

func TestGroupDescriptors_SinglePortFallback(t *testing.T) {
	descriptors := []PortDescriptor{
		{PortName: "COM9"},
	}

	groups := GroupDescriptors(descriptors, nil)
	require.Len(t, groups, 1)
	assert.Equal(t, "SINGLE_COM9", groups[0].Key)
	assert.False(t, groups[0].MultiPort)
}

func TestGroupDescriptors_ChipFamilyImpliesMultiPortEvenWhenAlone(t *testing.T) {
	descriptors := []PortDescriptor{
		{PortName: "COM7", VendorID: "0403", BridgeSerial: "SN1", ChipFamily: "FT4232"},
	}

	groups := GroupDescriptors(descriptors, nil)
	require.Len(t, groups, 1)
	assert.True(t, groups[0].MultiPort)
}

func TestGroupDescriptors_UnknownChipFamilyNotVendor(t *testing.T) {
	descriptors := []PortDescriptor{
		{PortName: "COM7", VendorID: "0000"},
	}

	groups := GroupDescriptors(descriptors, nil)
	require.Len(t, groups, 1)
	assert.Equal(t, "SINGLE_COM7", groups[0].Key)
}
