package firmware

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// estimatedDurations gives a rough per-type flash duration, reported in the
// dry-run plan so an operator can gauge a batch's total time before running
// it for real.
var estimatedDurations = map[ComponentType]time.Duration{
	ComponentBMC:     5 * time.Minute,
	ComponentBIOS:    10 * time.Minute,
	ComponentUEFI:    8 * time.Minute,
	ComponentNIC:     4 * time.Minute,
	ComponentStorage: 6 * time.Minute,
	ComponentCPLD:    3 * time.Minute,
}

// CheckComponent queries handler for one component's current/latest
// versions and derives UpdateRequired/Priority/RebootRequired, grounded on
// original_source's VersionChecker.check_firmware_version.
func CheckComponent(ctx context.Context, handler Handler, component ComponentType) (ComponentState, error) {
	current, latest, err := handler.Check(ctx, component)
	if err != nil {
		return ComponentState{}, err
	}

	state := ComponentState{
		Type:           component,
		CurrentVersion: current,
		LatestVersion:  latest,
		UpdateRequired: CompareVersions(current, latest),
		Priority:       DeterminePriority(component, current),
		RebootRequired: component == ComponentBIOS || component == ComponentUEFI || component == ComponentCPLD,
		EstimatedDuration: estimatedDurations[component],
	}
	return state, nil
}

// CompareVersions reports whether latest is newer than current, using a
// dotted/dashed numeric-segment comparison with a string-comparison
// fallback for non-numeric segments (original_source's _compare_versions).
// "unknown" on either side is treated as "no update" — an unreadable
// current version should not silently trigger an update.
func CompareVersions(current, latest string) bool {
	if current == "unknown" || latest == "unknown" || current == "" || latest == "" {
		return false
	}
	if current == latest {
		return false
	}

	currentParts := splitVersion(current)
	latestParts := splitVersion(latest)

	maxLen := len(currentParts)
	if len(latestParts) > maxLen {
		maxLen = len(latestParts)
	}
	for len(currentParts) < maxLen {
		currentParts = append(currentParts, "0")
	}
	for len(latestParts) < maxLen {
		latestParts = append(latestParts, "0")
	}

	for i := 0; i < maxLen; i++ {
		currNum, currErr := strconv.Atoi(currentParts[i])
		latestNum, latestErr := strconv.Atoi(latestParts[i])
		if currErr == nil && latestErr == nil {
			if latestNum > currNum {
				return true
			}
			if latestNum < currNum {
				return false
			}
			continue
		}
		if latestParts[i] > currentParts[i] {
			return true
		}
		if latestParts[i] < currentParts[i] {
			return false
		}
	}
	return false
}

func splitVersion(v string) []string {
	v = strings.ReplaceAll(v, "-", ".")
	return strings.Split(v, ".")
}

// DeterminePriority assigns a priority by component type, escalating to
// critical when the current version couldn't be determined at all
// (original_source's _determine_update_priority, escalated per spec.md
// §4.8's batch-abort semantics which need at least one critical/high tier
// to exercise the abort path for unreadable components).
func DeterminePriority(component ComponentType, current string) Priority {
	if current == "unknown" || current == "" {
		return PriorityCritical
	}
	switch component {
	case ComponentBMC:
		return PriorityHigh
	case ComponentBIOS:
		return PriorityNormal
	default:
		return PriorityLow
	}
}
