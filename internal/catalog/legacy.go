package catalog

// DeviceMapping is the legacy per-device BIOS/hardware view projected from
// the unified catalog, preserved for callers that still expect the
// pre-unification shape (spec.md §4.2).
type DeviceMapping struct {
	DeviceTypeID string
	Vendor       string
	Motherboard  string
	CPUName      string
	CPUCores     int
	RAMGB        int
	BIOSSettings map[string]any
}

// DeviceMappingsView returns the legacy device-mappings projection. A
// missing/unloaded catalog yields an empty view, never an error, per
// spec.md §4.2's "adapters return empty views and log" failure semantics.
func (c *Catalog) DeviceMappingsView() []DeviceMapping {
	snap := c.snap.Load()
	if snap == nil {
		return nil
	}
	out := make([]DeviceMapping, 0, len(snap.byDeviceType))
	for id, dt := range snap.byDeviceType {
		out = append(out, DeviceMapping{
			DeviceTypeID: id,
			Vendor:       dt.Vendor,
			Motherboard:  dt.Motherboard,
			CPUName:      dt.HardwareSpecs.CPUName,
			CPUCores:     dt.HardwareSpecs.CPUCores,
			RAMGB:        dt.HardwareSpecs.RAMGB,
			BIOSSettings: dt.BIOSSettings,
		})
	}
	return out
}

// FirmwareRepositoryEntry is the legacy per-vendor, per-motherboard firmware
// pointer view.
type FirmwareRepositoryEntry struct {
	Vendor      string
	Motherboard string
	DeviceTypes []string
}

// FirmwareRepositoryView returns the legacy firmware-repository projection.
func (c *Catalog) FirmwareRepositoryView() []FirmwareRepositoryEntry {
	snap := c.snap.Load()
	if snap == nil {
		return nil
	}
	out := make([]FirmwareRepositoryEntry, 0)
	for vendorName, vendor := range snap.vendors {
		for mbName, mb := range vendor.Motherboards {
			ids := make([]string, 0, len(mb.DeviceTypes))
			for id := range mb.DeviceTypes {
				ids = append(ids, id)
			}
			out = append(out, FirmwareRepositoryEntry{Vendor: vendorName, Motherboard: mbName, DeviceTypes: ids})
		}
	}
	return out
}
