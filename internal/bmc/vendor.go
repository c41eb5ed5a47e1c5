package bmc

import (
	"context"
	"strings"
)

// Vendor is the closed set of BMC dialects detected from `mc info` output
// (spec.md §4.4).
type Vendor string

const (
	VendorSupermicro Vendor = "supermicro"
	VendorHPiLO      Vendor = "hp_ilo"
	VendorDellIDRAC  Vendor = "dell_idrac"
	VendorUnknown    Vendor = "unknown"
)

var dialectSubstrings = map[Vendor][]string{
	VendorSupermicro: {"supermicro", "smc"},
	VendorHPiLO:      {"ilo", "hewlett", "hpe"},
	VendorDellIDRAC:  {"idrac", "dell"},
}

// DetectVendor scans `mc info` output for known substrings, falling back to
// a raw vendor-specific probe command when the first pass is inconclusive.
func (c *Client) DetectVendor(ctx context.Context) (Vendor, error) {
	info, err := c.run(ctx, "mc", "info")
	if err != nil {
		return VendorUnknown, err
	}
	lower := strings.ToLower(info)
	for vendor, substrings := range dialectSubstrings {
		for _, s := range substrings {
			if strings.Contains(lower, s) {
				return vendor, nil
			}
		}
	}

	// Fallback: vendor-specific raw command probe. A Supermicro BMC answers
	// OEM raw command group 0x30; a non-zero completion code or an error is
	// treated as "not this vendor" rather than a fatal error.
	if out, err := c.run(ctx, "raw", "0x30", "0x70"); err == nil && out != "" {
		return VendorSupermicro, nil
	}

	return VendorUnknown, nil
}

// VendorCapabilities describes what a detected vendor supports; the IPMI
// configuration stage uses it to derive the recorded kcs_status.
type VendorCapabilities struct {
	SupportsKCSControl       bool
	SupportsHostIfaceDisable bool
	SupportsIPMIOverLAN      bool
	SupportsRBSULogin        bool
	RequiresManualConfig     bool
}

// CapabilitiesFor returns the known capability set for a detected vendor.
// Unsupported combinations are reported via RequiresManualConfig rather than
// an error (spec.md §4.4: "reported as requires manual configuration").
func CapabilitiesFor(v Vendor) VendorCapabilities {
	switch v {
	case VendorSupermicro:
		return VendorCapabilities{SupportsKCSControl: true, SupportsHostIfaceDisable: true}
	case VendorHPiLO:
		return VendorCapabilities{SupportsIPMIOverLAN: true, SupportsRBSULogin: true}
	default:
		return VendorCapabilities{RequiresManualConfig: true}
	}
}
