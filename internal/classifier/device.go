package classifier

import (
	"regexp"
	"strings"

	"github.com/tinkerbell/hwprovisiond/internal/catalog"
	"github.com/tinkerbell/hwprovisiond/internal/sshadapter"
)

// DeviceMatch is one scored candidate device-type.
type DeviceMatch struct {
	DeviceType catalog.DeviceType
	Confidence float64
}

// minConfidence is the drop threshold below which a candidate is discarded
// (spec.md §4.6).
const minConfidence = 0.3

// ClassifyDeviceType scores every device-type in entries against facts and
// vendor, returning the top match (if any, at or above minConfidence) and
// all retained alternates, sorted best-first.
func ClassifyDeviceType(facts sshadapter.HardwareFacts, vendor string, entries []catalog.DeviceType) (top *DeviceMatch, alternates []DeviceMatch) {
	var matches []DeviceMatch

	for _, dt := range entries {
		var confidence float64

		if dt.HardwareSpecs.CPUName != "" {
			if re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(dt.HardwareSpecs.CPUName)); err == nil {
				if re.MatchString(facts.CPUModel) {
					confidence += 0.3
				}
			} else if strings.Contains(strings.ToLower(facts.CPUModel), strings.ToLower(dt.HardwareSpecs.CPUName)) {
				confidence += 0.3
			}
		}

		if dt.HardwareSpecs.CPUCores > 0 && facts.CPUCount > 0 {
			if withinRange(facts.CPUCount, dt.HardwareSpecs.CPUCores, 4) {
				confidence += 0.2
			}
		}

		if dt.HardwareSpecs.RAMGB > 0 && facts.MemoryGB > 0 {
			if withinRange(facts.MemoryGB, dt.HardwareSpecs.RAMGB, dt.HardwareSpecs.RAMGB/10+8) {
				confidence += 0.2
			}
		}

		if dt.HardwareSpecs.Vendor != "" && strings.EqualFold(dt.HardwareSpecs.Vendor, vendor) {
			confidence += 0.2
		}

		// Architecture weight: facts carry no explicit architecture field,
		// so 0.1 is added whenever the CPU model names a Xeon or EPYC part.
		// The device type's own architecture is not compared.
		if strings.Contains(strings.ToLower(facts.CPUModel), "xeon") || strings.Contains(strings.ToLower(facts.CPUModel), "epyc") {
			confidence += 0.1
		}

		if confidence >= minConfidence {
			matches = append(matches, DeviceMatch{DeviceType: dt, Confidence: confidence})
		}
	}

	sortMatchesDesc(matches)

	if len(matches) == 0 {
		return nil, nil
	}
	top = &matches[0]
	if len(matches) > 1 {
		alternates = matches[1:]
	}
	return top, alternates
}

func withinRange(actual, target, tolerance int) bool {
	low, high := target-tolerance, target+tolerance
	return actual >= low && actual <= high
}

func sortMatchesDesc(items []DeviceMatch) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].Confidence > items[j-1].Confidence; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}
