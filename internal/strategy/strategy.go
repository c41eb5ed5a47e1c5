// Package strategy is the provisioning strategy & stage-handler layer
// (C11): it orders the high-level stages of a provisioning run and carries
// each stage's timeout/retry defaults (spec.md §4.11). Only the modular
// stage/handler design is implemented — spec.md §9's redesign note retires
// the source's monolithic alternative outright.
package strategy

import (
	"time"

	"github.com/tinkerbell/hwprovisiond/internal/workflow"
)

// Stage is the closed set of stage tags a Strategy can order.
type Stage string

const (
	StageCommissioning     Stage = "commissioning"
	StageNetworkSetup      Stage = "network-setup"
	StageHardwareDiscovery Stage = "hardware-discovery"
	StageBIOSConfiguration Stage = "bios-configuration"
	StageIPMIConfiguration Stage = "ipmi-configuration"
	StageFirmware          Stage = "firmware"
	StageFinalization      Stage = "finalization"
)

// StageDefaults is the per-stage timeout/retry budget named in spec.md
// §4.11's table.
type StageDefaults struct {
	Timeout time.Duration
	Retries int
}

// defaults is spec.md §4.11's table verbatim. StageFirmware is a
// SPEC_FULL.md supplement (the firmware-first strategy's extra stage); it
// gets the same budget as bios-configuration since both are disruptive,
// reboot-bearing stages.
var defaults = map[Stage]StageDefaults{
	StageCommissioning:     {Timeout: 1800 * time.Second, Retries: 2},
	StageNetworkSetup:      {Timeout: 300 * time.Second, Retries: 3},
	StageHardwareDiscovery: {Timeout: 600 * time.Second, Retries: 2},
	StageBIOSConfiguration: {Timeout: 600 * time.Second, Retries: 2},
	StageIPMIConfiguration: {Timeout: 300 * time.Second, Retries: 3},
	StageFirmware:          {Timeout: 600 * time.Second, Retries: 2},
	StageFinalization:      {Timeout: 180 * time.Second, Retries: 1},
}

// DefaultsFor returns the timeout/retry budget for a stage.
func DefaultsFor(stage Stage) StageDefaults {
	return defaults[stage]
}

// SkipPredicate decides whether a stage should be skipped for a given
// workflow context.
type SkipPredicate func(wfCtx *workflow.Context) bool

// Strategy orders stages and decides which ones to skip.
type Strategy interface {
	Stages() []Stage
	ShouldSkip(stage Stage, wfCtx *workflow.Context) bool
}

// bmcIPKey is the workflow.Context data-map key a stage handler stashes the
// target BMC IP under, once hardware discovery or the catalog resolves it.
const bmcIPKey = "bmc_ip"

func hasTargetBMCIP(wfCtx *workflow.Context) bool {
	v, ok := wfCtx.Get(bmcIPKey)
	if !ok {
		return false
	}
	ip, ok := v.(string)
	return ok && ip != ""
}

// StandardStrategy is the default ordering: commission, bring up the
// network, discover hardware, configure BIOS, configure IPMI, finalize. It
// skips ipmi-configuration when no target BMC IP is known (spec.md §4.11).
type StandardStrategy struct{}

func (StandardStrategy) Stages() []Stage {
	return []Stage{
		StageCommissioning,
		StageNetworkSetup,
		StageHardwareDiscovery,
		StageBIOSConfiguration,
		StageIPMIConfiguration,
		StageFinalization,
	}
}

func (StandardStrategy) ShouldSkip(stage Stage, wfCtx *workflow.Context) bool {
	if stage == StageIPMIConfiguration {
		return !hasTargetBMCIP(wfCtx)
	}
	return false
}

// FirmwareFirstStrategy reorders IPMI configuration earlier (so firmware
// updates can use it) and inserts a firmware stage ahead of BIOS
// configuration (spec.md §4.11: "firmware-first strategy reorders to
// commission->network->discovery->IPMI(early)->firmware->BIOS->finalize").
type FirmwareFirstStrategy struct{}

func (FirmwareFirstStrategy) Stages() []Stage {
	return []Stage{
		StageCommissioning,
		StageNetworkSetup,
		StageHardwareDiscovery,
		StageIPMIConfiguration,
		StageFirmware,
		StageBIOSConfiguration,
		StageFinalization,
	}
}

func (FirmwareFirstStrategy) ShouldSkip(stage Stage, wfCtx *workflow.Context) bool {
	if stage == StageIPMIConfiguration || stage == StageFirmware {
		return !hasTargetBMCIP(wfCtx)
	}
	return false
}
