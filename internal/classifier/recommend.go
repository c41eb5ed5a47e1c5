package classifier

import (
	"context"

	"github.com/tinkerbell/hwprovisiond/internal/catalog"
	"github.com/tinkerbell/hwprovisiond/internal/sshadapter"
)

// RecommendDeviceType runs vendor detection followed by device-type
// classification restricted to that vendor's catalog entries, returning a
// single best-guess recommendation. This supplements spec.md with the
// recommend-device-type helper named in SPEC_FULL.md (grounded on
// original_source's device_selection.py), collapsing the two-stage C6
// pipeline into the one call a boarding workflow typically wants.
func RecommendDeviceType(facts sshadapter.HardwareFacts, cat *catalog.Catalog) (vendorProfile VendorProfile, top *DeviceMatch, alternates []DeviceMatch) {
	profile, _, err := DetectVendor(context.Background(), facts)
	if err != nil || profile.Name == "" {
		return VendorProfile{}, nil, nil
	}

	entries := cat.DeviceMappingsView()
	candidates := make([]catalog.DeviceType, 0, len(entries))
	for _, m := range entries {
		if m.Vendor == profile.Name {
			dt, lookupErr := cat.LookupDeviceType(m.DeviceTypeID)
			if lookupErr == nil {
				candidates = append(candidates, dt)
			}
		}
	}

	top, alternates = ClassifyDeviceType(facts, profile.Name, candidates)
	return profile, top, alternates
}
