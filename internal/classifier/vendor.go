// Package classifier is the vendor detector & device classifier (C6). It
// scores the facts C3 gathers against fixed pattern tables, and classifies
// against C2's device-type catalog (spec.md §4.6). Detection weights are
// grounded on original_source/src/hwautomation/hardware/enhanced_detection.py,
// which this package generalizes from sequential scoring into four
// concurrent scorers merged by maximum confidence (golang.org/x/sync/errgroup,
// grounded on the teacher's use of the same package for concurrent,
// cancellation-aware work).
package classifier

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tinkerbell/hwprovisiond/internal/catalog"
	"github.com/tinkerbell/hwprovisiond/internal/sshadapter"
)

// RedfishSupport is the closed set of Redfish capability levels a vendor
// entry carries.
type RedfishSupport string

const (
	RedfishNone    RedfishSupport = "none"
	RedfishLimited RedfishSupport = "limited"
	RedfishFull    RedfishSupport = "full"
)

// VendorProfile is one entry of the vendor characteristics table (spec.md
// §4.6).
type VendorProfile struct {
	Name                 string
	Redfish              RedfishSupport
	PreferredBIOSMethod   catalog.BIOSMethod
	DefaultBMCCredentials []string
}

var vendorProfiles = map[string]VendorProfile{
	"supermicro": {Name: "supermicro", Redfish: RedfishLimited, PreferredBIOSMethod: catalog.BIOSMethodVendorTool, DefaultBMCCredentials: []string{"ADMIN:ADMIN", "admin:smcipmi"}},
	"dell":       {Name: "dell", Redfish: RedfishFull, PreferredBIOSMethod: catalog.BIOSMethodRedfish, DefaultBMCCredentials: []string{"root:calvin"}},
	"hp":         {Name: "hp", Redfish: RedfishFull, PreferredBIOSMethod: catalog.BIOSMethodRedfish, DefaultBMCCredentials: []string{"Administrator:password"}},
}

var dmiPatterns = map[string][]string{
	"supermicro": {"supermicro", "smc"},
	"dell":       {"dell inc", "dell"},
	"hp":         {"hewlett", "hpe", "hp "},
}

var biosStringPatterns = map[string]*regexp.Regexp{
	"supermicro": regexp.MustCompile(`(?i)american megatrends.*supermicro`),
	"dell":       regexp.MustCompile(`(?i)dell\s+inc`),
	"hp":         regexp.MustCompile(`(?i)hewlett.packard|hpe`),
}

var generalHardwarePatterns = map[string][]string{
	"supermicro": {"x11", "x12", "h11", "h12"},
	"dell":       {"poweredge", "r640", "r740"},
	"hp":         {"proliant", "dl360", "dl380"},
}

var nicNamingHints = map[string]*regexp.Regexp{
	"dell": regexp.MustCompile(`^em\d+$`),
	"hp":   regexp.MustCompile(`^eno\d+$`),
}

// DetectVendorConfidence is the per-vendor confidence: the maximum score
// any of the four scoring methods gave that vendor.
type DetectVendorConfidence struct {
	Vendor     string
	Confidence float64
}

// DetectVendor runs all four scoring methods concurrently and merges by
// maximum confidence per vendor (spec.md §4.6).
func DetectVendor(ctx context.Context, facts sshadapter.HardwareFacts) (VendorProfile, []DetectVendorConfidence, error) {
	scores := make(map[string]float64)
	var mu scoreMutex

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		matches := 0
		var lastVendor string
		dmiBlob := strings.ToLower(strings.Join(mapValues(facts.DMI), " "))
		for vendor, patterns := range dmiPatterns {
			for _, p := range patterns {
				if strings.Contains(dmiBlob, p) {
					matches++
					lastVendor = vendor
				}
			}
		}
		if matches > 0 {
			score := 0.3
			if matches > 1 {
				score += 0.2
			}
			mu.addMax(scores, lastVendor, score)
		}
		_ = gctx
		return nil
	})

	g.Go(func() error {
		biosVendorStr := facts.DMI["bios-vendor"] + " " + facts.DMI["bios-version"]
		for vendor, re := range biosStringPatterns {
			if re.MatchString(biosVendorStr) {
				mu.addMax(scores, vendor, 0.4)
			}
		}
		return nil
	})

	g.Go(func() error {
		blob := strings.ToLower(facts.DMI["product-name"] + " " + facts.DMI["board-name"])
		for vendor, patterns := range generalHardwarePatterns {
			for _, p := range patterns {
				if strings.Contains(blob, p) {
					mu.addMax(scores, vendor, 0.2)
				}
			}
		}
		return nil
	})

	g.Go(func() error {
		for _, nic := range facts.NICNames {
			for vendor, re := range nicNamingHints {
				if re.MatchString(nic) {
					mu.addMax(scores, vendor, 0.3)
				}
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return VendorProfile{}, nil, err
	}

	ranked := make([]DetectVendorConfidence, 0, len(scores))
	for v, c := range scores {
		ranked = append(ranked, DetectVendorConfidence{Vendor: v, Confidence: c})
	}
	sortByConfidenceDesc(ranked)

	if len(ranked) == 0 {
		return VendorProfile{}, ranked, nil
	}
	return vendorProfiles[ranked[0].Vendor], ranked, nil
}

func mapValues(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

func sortByConfidenceDesc(items []DetectVendorConfidence) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].Confidence > items[j-1].Confidence; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}

// scoreMutex guards the shared scores map across the four concurrent
// scorers; a plain sync.Mutex embedded for addMax's compare-and-set.
type scoreMutex struct{ mu sync.Mutex }

func (s *scoreMutex) addMax(scores map[string]float64, vendor string, score float64) {
	if vendor == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := scores[vendor]; !ok || score > cur {
		scores[vendor] = score
	}
}
