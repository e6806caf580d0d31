package hardware

import (
	"fmt"
	"log/slog"
	"strings"
)

// GroupDescriptors collects descriptors sharing a physical bridge into
// DeviceGroups, using a priority-ordered grouping key.
func GroupDescriptors(descriptors []PortDescriptor, logger *slog.Logger) []DeviceGroup {
	if logger == nil {
		logger = slog.Default()
	}

	byKey := make(map[string][]PortDescriptor)
	order := make([]string, 0, len(descriptors))

	for _, d := range descriptors {
		key := groupKey(d)
		if _, seen := byKey[key]; !seen {
			order = append(order, key)
		}
		byKey[key] = append(byKey[key], d)
	}

	groups := make([]DeviceGroup, 0, len(order))
	for _, key := range order {
		members := byKey[key]
		chipFamily := members[0].ChipFamily

		multiPort := len(members) > 1
		if expected, known := chipFamilyPortCounts[chipFamily]; known {
			multiPort = true
			if len(members) < expected {
				logger.Warn("chip family implies more ports than are present",
					"chip_family", chipFamily, "expected_ports", expected, "present_ports", len(members), "group_key", key)
			}
		}

		groups = append(groups, DeviceGroup{
			Key:         key,
			Descriptors: members,
			MultiPort:   multiPort,
			ChipFamily:  chipFamily,
		})
	}

	return groups
}

// groupKey computes the grouping key for one descriptor, following the
// priority order: vendor+serial, then base device identity, then a
// single-port fallback keyed by port name.
func groupKey(d PortDescriptor) string {
	if isGenuineVendorDevice(d) && d.BridgeSerial != "" {
		return fmt.Sprintf("%s_%s", d.VendorID, d.BridgeSerial)
	}
	if base := baseDeviceIdentifier(d.DeviceIdentity); base != "" {
		return base
	}
	return "SINGLE_" + d.PortName
}

// isGenuineVendorDevice reports whether a descriptor carries a recognizable
// vendor identity, as opposed to a synthetic or unidentified one.
func isGenuineVendorDevice(d PortDescriptor) bool {
	return d.VendorID != "" && d.VendorID != "0000"
}

// baseDeviceIdentifier extracts the first shell path segment after the bus
// prefix of a device identity string (e.g. "usb-1-2.3:1.0" → "usb-1-2.3").
func baseDeviceIdentifier(identity string) string {
	if identity == "" {
		return ""
	}
	segments := strings.SplitN(identity, ":", 2)
	return segments[0]
}
