// Package firmware is the firmware manager (C8): computes per-component
// firmware state, builds an ordered update plan, and executes it with a
// dry-run mode (spec.md §4.8). The dry-run/real-flash split is grounded on
// original_source/src/hwautomation/hardware/firmware/operations/checker.py
// and updater.py (SPEC_FULL.md's Open Question #2 decision): dry-run is
// always available; real flashing goes through the Handler plug-point.
package firmware

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ComponentType is the closed set of firmware component types, in their
// mandated update order (spec.md §4.8).
type ComponentType string

const (
	ComponentBMC     ComponentType = "BMC"
	ComponentBIOS    ComponentType = "BIOS"
	ComponentUEFI    ComponentType = "UEFI"
	ComponentNIC     ComponentType = "NIC"
	ComponentStorage ComponentType = "STORAGE"
	ComponentCPLD    ComponentType = "CPLD"
)

// updateOrder fixes the batch ordering named in spec.md §4.8.
var updateOrder = []ComponentType{ComponentBMC, ComponentBIOS, ComponentUEFI, ComponentNIC, ComponentStorage, ComponentCPLD}

// Priority is the closed set of per-item priorities.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

var priorityOrder = map[Priority]int{PriorityCritical: 0, PriorityHigh: 1, PriorityNormal: 2, PriorityLow: 3}

// ComponentState is the computed version/update-required state for one
// firmware component.
type ComponentState struct {
	Type              ComponentType
	CurrentVersion    string
	LatestVersion     string
	UpdateRequired    bool
	Priority          Priority
	EstimatedDuration time.Duration
	RebootRequired    bool
}

// Handler is the plug-point interface for a per-type firmware update,
// resolving SPEC_FULL's Open Question #2: dry-run is always available via
// this package; a real flash delegates to a caller-supplied Handler (e.g.
// BMC-backed via internal/bmc, or a vendor flashing tool over SSH).
type Handler interface {
	// Check returns the current and latest known versions for one
	// component.
	Check(ctx context.Context, component ComponentType) (current, latest string, err error)
	// Update performs the real flash, returning whether a reboot is
	// required.
	Update(ctx context.Context, component ComponentType, targetVersion string) (rebootRequired bool, err error)
	// WaitReady polls for the host/BMC to come back after a reboot.
	WaitReady(ctx context.Context, timeout time.Duration) error
	// Reboot issues the reboot itself.
	Reboot(ctx context.Context) error
}

// PlanItem is one entry in the ordered batch plan.
type PlanItem struct {
	State ComponentState
}

// BuildPlan orders states per spec.md §4.8: by ComponentType in
// updateOrder, then by Priority within each type. Only update-required
// states are included.
func BuildPlan(states []ComponentState) []PlanItem {
	typeRank := make(map[ComponentType]int, len(updateOrder))
	for i, t := range updateOrder {
		typeRank[t] = i
	}

	var plan []PlanItem
	for _, s := range states {
		if s.UpdateRequired {
			plan = append(plan, PlanItem{State: s})
		}
	}

	for i := 1; i < len(plan); i++ {
		for j := i; j > 0 && less(plan[j], plan[j-1], typeRank); j-- {
			plan[j], plan[j-1] = plan[j-1], plan[j]
		}
	}
	return plan
}

func less(a, b PlanItem, typeRank map[ComponentType]int) bool {
	ra, rb := typeRank[a.State.Type], typeRank[b.State.Type]
	if ra != rb {
		return ra < rb
	}
	return priorityOrder[a.State.Priority] < priorityOrder[b.State.Priority]
}

// ItemResult is the typed result of executing one plan item.
type ItemResult struct {
	Type           ComponentType
	OldVersion     string
	NewVersion     string
	Elapsed        time.Duration
	RebootRequired bool
	DryRun         bool
	Error          error
}

// BatchResult is the outcome of executing an entire plan.
type BatchResult struct {
	Items   []ItemResult
	Aborted bool
}

// Execute walks the plan. In dry-run mode every step is simulated; real
// steps delegate to handler. On a critical/high item's failure the batch
// aborts; a successful reboot-required item triggers a reboot sequence
// (issue reboot, wait ~30s, poll readiness up to 5 minutes), per spec.md
// §4.8.
func Execute(ctx context.Context, plan []PlanItem, handler Handler, dryRun bool) BatchResult {
	result := BatchResult{}

	for _, item := range plan {
		start := time.Now()
		var itemResult ItemResult
		itemResult.Type = item.State.Type
		itemResult.OldVersion = item.State.CurrentVersion
		itemResult.NewVersion = item.State.LatestVersion
		itemResult.DryRun = dryRun

		if dryRun {
			itemResult.Elapsed = item.State.EstimatedDuration
			itemResult.RebootRequired = item.State.RebootRequired
		} else {
			rebootRequired, err := handler.Update(ctx, item.State.Type, item.State.LatestVersion)
			itemResult.Elapsed = time.Since(start)
			itemResult.RebootRequired = rebootRequired
			itemResult.Error = err

			if err == nil && rebootRequired {
				if rebootErr := runRebootSequence(ctx, handler); rebootErr != nil {
					itemResult.Error = fmt.Errorf("post-update reboot sequence: %w", rebootErr)
				}
			}
		}

		result.Items = append(result.Items, itemResult)

		if itemResult.Error != nil && (item.State.Priority == PriorityCritical || item.State.Priority == PriorityHigh) {
			result.Aborted = true
			break
		}
	}

	return result
}

// rebootSettleDelay is the pause between issuing a reboot and polling for
// readiness (spec.md §4.8: "wait ~30s"). Overridable in tests.
var rebootSettleDelay = 30 * time.Second

// runRebootSequence issues a reboot, waits ~30s, then polls readiness up to
// 5 minutes using an exponential backoff bounded by that cap (spec.md
// §4.8). backoff.v5 gives this a distinct home from retry-go's use
// elsewhere in the module (DESIGN.md).
func runRebootSequence(ctx context.Context, handler Handler) error {
	if err := handler.Reboot(ctx); err != nil {
		return fmt.Errorf("issuing reboot: %w", err)
	}

	select {
	case <-time.After(rebootSettleDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, handler.WaitReady(ctx, 10*time.Second)
	}, backoff.WithMaxElapsedTime(5*time.Minute), backoff.WithBackOff(backoff.NewExponentialBackOff()))
	return err
}
