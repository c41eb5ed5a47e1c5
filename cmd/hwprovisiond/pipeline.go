package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tinkerbell/hwprovisiond/internal/bios"
	"github.com/tinkerbell/hwprovisiond/internal/bmc"
	"github.com/tinkerbell/hwprovisiond/internal/boarding"
	"github.com/tinkerbell/hwprovisiond/internal/catalog"
	"github.com/tinkerbell/hwprovisiond/internal/classifier"
	"github.com/tinkerbell/hwprovisiond/internal/firmware"
	"github.com/tinkerbell/hwprovisiond/internal/fleet"
	"github.com/tinkerbell/hwprovisiond/internal/sshadapter"
	"github.com/tinkerbell/hwprovisiond/internal/store"
	"github.com/tinkerbell/hwprovisiond/internal/strategy"
	"github.com/tinkerbell/hwprovisiond/internal/workflow"
)

// BuildSteps assembles one workflow.Step per stage in s.Stages(), wrapping
// each stage's body as a RetryableStep gated by s.ShouldSkip and budgeted by
// strategy.DefaultsFor, the way cmd/tinkerbell/cmd.go assembles one errgroup
// goroutine per enabled service.
func BuildSteps(c *Components, s strategy.Strategy, deviceTypeID string) []workflow.Step {
	var steps []workflow.Step
	for _, stage := range s.Stages() {
		steps = append(steps, stageStep(c, s, stage, deviceTypeID))
	}
	return steps
}

// stageStep wraps one stage's body as a RetryableStep budgeted by
// strategy.DefaultsFor, so §4.11's per-stage retry counts (commissioning's 2,
// network-setup's 3, ...) are actually honored rather than dropped on the
// floor. The strategy's skip gate is folded into the body itself: a skipped
// stage returns Skip() on its first (and only) attempt, since RetryableStep
// only loops while the body keeps returning StatusRetry.
func stageStep(c *Components, s strategy.Strategy, stage strategy.Stage, deviceTypeID string) workflow.Step {
	budget := strategy.DefaultsFor(stage)
	body := stageBody(c, stage, deviceTypeID)

	gated := func(ctx context.Context, wfCtx *workflow.Context) workflow.StepExecutionResult {
		if s.ShouldSkip(stage, wfCtx) {
			return workflow.Skip(fmt.Sprintf("stage %q skipped: condition not met", stage))
		}
		return body(ctx, wfCtx)
	}

	// spec.md §8's boundary behavior defines "retries=N" as N retries beyond
	// the first attempt (N+1 total invocations for an always-failing body).
	return &workflow.RetryableStep{
		StepName:        string(stage),
		StepDescription: fmt.Sprintf("provisioning stage %q", stage),
		StepTimeout:     budget.Timeout,
		Policy:          workflow.RetryPolicy{MaxAttempts: budget.Retries + 1, BaseDelay: time.Second},
		Body:            retryOnContinuableFailure(gated),
	}
}

// retryOnContinuableFailure converts a continuable failure (ShouldContinue
// true) into a StatusRetry result so RetryableStep's attempt loop consumes
// it; a terminal failure (ShouldContinue false) still propagates straight
// through on the first attempt, since no retry count can fix it.
func retryOnContinuableFailure(body workflow.PlainStepFunc) workflow.PlainStepFunc {
	return func(ctx context.Context, wfCtx *workflow.Context) workflow.StepExecutionResult {
		result := body(ctx, wfCtx)
		if result.Status == workflow.StatusFailure && result.ShouldContinue {
			return workflow.Retry(result.Message)
		}
		return result
	}
}

func stageBody(c *Components, stage strategy.Stage, deviceTypeID string) workflow.PlainStepFunc {
	switch stage {
	case strategy.StageCommissioning:
		return commissioningBody(c)
	case strategy.StageNetworkSetup:
		return networkSetupBody(c)
	case strategy.StageHardwareDiscovery:
		return hardwareDiscoveryBody(c, deviceTypeID)
	case strategy.StageBIOSConfiguration:
		return biosConfigurationBody(c, deviceTypeID)
	case strategy.StageIPMIConfiguration:
		return ipmiConfigurationBody(c)
	case strategy.StageFirmware:
		return firmwareBody(c)
	case strategy.StageFinalization:
		return finalizationBody(c)
	default:
		return func(ctx context.Context, wfCtx *workflow.Context) workflow.StepExecutionResult {
			return workflow.Failure(fmt.Sprintf("unknown stage %q", stage), false)
		}
	}
}

func commissioningBody(c *Components) workflow.PlainStepFunc {
	h := &strategy.CommissioningHandler{Fleet: c.Fleet, Store: c.Store, Creds: c.SSHCreds}
	return func(ctx context.Context, wfCtx *workflow.Context) workflow.StepExecutionResult {
		return h.Handle(ctx, wfCtx, wfCtx.ServerID)
	}
}

func networkSetupBody(c *Components) workflow.PlainStepFunc {
	return func(ctx context.Context, wfCtx *workflow.Context) workflow.StepExecutionResult {
		machine, err := c.Fleet.GetMachine(ctx, wfCtx.ServerID)
		if err != nil {
			return workflow.Failure(fmt.Sprintf("failed to read machine %s: %v", wfCtx.ServerID, err), true)
		}
		ips := fleet.ExtractWorkingIPs(*machine)
		if len(ips) == 0 {
			return workflow.Failure("no working IP reported by fleet controller", true)
		}
		wfCtx.TargetIP = ips[0]
		wfCtx.AppendSubTask("network-setup", fmt.Sprintf("assigned working IP %s", ips[0]))
		return workflow.Success("network available", map[string]any{"target_ip": ips[0]})
	}
}

func hardwareDiscoveryBody(c *Components, deviceTypeID string) workflow.PlainStepFunc {
	return func(ctx context.Context, wfCtx *workflow.Context) workflow.StepExecutionResult {
		if wfCtx.TargetIP == "" {
			return workflow.Failure("hardware discovery requires a target IP", true)
		}
		sess, err := sshadapter.Dial(wfCtx.TargetIP, 22, c.SSHCreds)
		if err != nil {
			return workflow.Failure(fmt.Sprintf("SSH dial failed: %v", err), true)
		}
		defer sess.Close()

		facts := sess.GatherHardwareFacts()
		profile, _, err := classifier.DetectVendor(ctx, facts)
		if err != nil {
			return workflow.Failure(fmt.Sprintf("vendor detection failed: %v", err), true)
		}

		wfCtx.Hardware = &workflow.HardwareSnapshot{
			CPUModel: facts.CPUModel,
			CPUCount: facts.CPUCount,
			RAMGB:    facts.MemoryGB,
			NICNames: facts.NICNames,
			Raw:      facts.DMI,
		}

		var entries []catalog.DeviceType
		if deviceTypeID != "" {
			if dt, derr := c.Catalog.LookupDeviceType(deviceTypeID); derr == nil {
				entries = append(entries, dt)
			}
		}
		match, _ := classifier.ClassifyDeviceType(facts, profile.Name, entries)
		if match != nil {
			wfCtx.AppendSubTask("hardware-discovery", fmt.Sprintf("classified as %s (confidence %.2f)", match.DeviceType.ID, match.Confidence))
		} else {
			// No device type was pinned by the operator: fall back to a
			// whole-catalog advisory recommendation so the run log still
			// records a best guess, even though nothing downstream acts on it.
			if _, top, _ := classifier.RecommendDeviceType(facts, c.Catalog); top != nil {
				wfCtx.AppendSubTask("hardware-discovery", fmt.Sprintf("advisory recommendation: %s (confidence %.2f)", top.DeviceType.ID, top.Confidence))
			}
		}
		return workflow.Success("hardware discovered", map[string]any{"vendor": profile.Name})
	}
}

func biosOverlay(dt catalog.DeviceType) map[string]string {
	overlay := make(map[string]string, len(dt.BIOSSettings))
	for k, v := range dt.BIOSSettings {
		overlay[k] = fmt.Sprintf("%v", v)
	}
	return overlay
}

func biosConfigurationBody(c *Components, deviceTypeID string) workflow.PlainStepFunc {
	return func(ctx context.Context, wfCtx *workflow.Context) workflow.StepExecutionResult {
		if deviceTypeID == "" {
			return workflow.Skip("no device type known, skipping BIOS configuration")
		}
		dt, err := c.Catalog.LookupDeviceType(deviceTypeID)
		if err != nil {
			return workflow.Failure(fmt.Sprintf("unknown device type %s: %v", deviceTypeID, err), true)
		}
		if wfCtx.TargetIP == "" {
			return workflow.Failure("BIOS configuration requires a target IP", true)
		}
		sess, err := sshadapter.Dial(wfCtx.TargetIP, 22, c.SSHCreds)
		if err != nil {
			return workflow.Failure(fmt.Sprintf("SSH dial failed: %v", err), true)
		}
		defer sess.Close()

		vendor := dt.Vendor
		current, err := c.BIOS.PullCurrent(ctx, vendor, sess)
		if err != nil {
			return workflow.Failure(fmt.Sprintf("BIOS pull failed: %v", err), true)
		}
		modified, diffs, applied := c.BIOS.Modify(current, biosOverlay(dt))
		if modified.Note != "" {
			// Unsupported vendor: nothing to push, so the stage reports skipped
			// and bios_verified stays unset (a boarding warning, not a failure).
			wfCtx.AppendSubTask("bios-configuration", applied[0])
			return workflow.Skip(applied[0])
		}
		if len(applied) == 0 {
			wfCtx.Set("bios_verified", true)
			return workflow.Success("no BIOS changes required", nil)
		}
		rebootRequired, err := c.BIOS.Push(ctx, vendor, sess, modified)
		if err != nil {
			return workflow.Failure(fmt.Sprintf("BIOS push failed: %v", err), true)
		}
		verifyErr := c.BIOS.Verify(ctx, vendor, sess, diffs)
		wfCtx.Set("bios_verified", verifyErr == nil)
		if verifyErr != nil {
			return workflow.Failure(fmt.Sprintf("BIOS verification failed: %v", verifyErr), true)
		}
		return workflow.Success("BIOS configured", map[string]any{"reboot_required": rebootRequired})
	}
}

// defaultIPMINetmask is used when no "bmc_netmask" override is stashed in
// the workflow context's data map (spec.md §4.4 names the operation's
// arguments but not a default; /24 is the common BMC-LAN convention).
const defaultIPMINetmask = "255.255.255.0"

// ipmiConfigurationBody detects the BMC vendor dialect, sets the LAN static
// IP on channel 1, provisions user slot 2, and finishes with the required
// VerifyPower post-condition (spec.md §4.4), persisting the result to C1.
// For KCS it only records a kcs_status label derived from the vendor's
// capabilities; it sends no KCS or host-interface command to the BMC.
func ipmiConfigurationBody(c *Components) workflow.PlainStepFunc {
	return func(ctx context.Context, wfCtx *workflow.Context) workflow.StepExecutionResult {
		v, ok := wfCtx.Get("bmc_ip")
		bmcIP, _ := v.(string)
		if !ok || bmcIP == "" {
			return workflow.Skip("no target BMC IP known")
		}
		creds := c.IPMICreds
		creds.Host = bmcIP
		client := bmc.NewClient(creds, c.IPMITimeout)
		if err := client.Authenticate(ctx); err != nil {
			return workflow.Failure(fmt.Sprintf("IPMI authentication failed: %v", err), true)
		}

		vendor, err := client.DetectVendor(ctx)
		if err != nil {
			return workflow.Failure(fmt.Sprintf("BMC vendor detection failed: %v", err), true)
		}
		caps := bmc.CapabilitiesFor(vendor)

		netmask := defaultIPMINetmask
		if nv, ok := wfCtx.Get("bmc_netmask"); ok {
			if s, ok := nv.(string); ok && s != "" {
				netmask = s
			}
		}

		if err := client.SetLAN(ctx, bmcIP, netmask, wfCtx.Gateway); err != nil {
			return workflow.Failure(fmt.Sprintf("IPMI LAN configuration failed: %v", err), true)
		}
		if err := client.SetUser(ctx, 2, c.IPMICreds.User, c.IPMICreds.Password); err != nil {
			return workflow.Failure(fmt.Sprintf("IPMI user configuration failed: %v", err), true)
		}

		kcsStatus := "Requires Manual Configuration"
		if caps.SupportsKCSControl {
			kcsStatus = "Configured"
		} else if caps.RequiresManualConfig {
			kcsStatus = "Requires Manual Configuration"
		} else {
			kcsStatus = "Not Supported"
		}

		if err := client.VerifyPower(ctx, bmc.PowerOn); err != nil {
			return workflow.Failure(fmt.Sprintf("IPMI power verification failed: %v", err), true)
		}

		c.Store.UpdateServer(ctx, wfCtx.ServerID, store.FieldIPMIAddress, bmcIP)
		c.Store.UpdateServer(ctx, wfCtx.ServerID, store.FieldKCSStatus, kcsStatus)

		wfCtx.IPMI = &workflow.IPMISnapshot{Vendor: string(vendor)}
		wfCtx.AppendSubTask("ipmi-configuration", fmt.Sprintf("LAN configured, kcs_status=%s", kcsStatus))
		return workflow.Success("IPMI configured", map[string]any{"kcs_status": kcsStatus})
	}
}

// bmcFirmwareHandler implements firmware.Handler on top of C4's ipmitool
// client: reboot and readiness-polling go through the BMC (DESIGN.md's C8
// entry), the way original_source's updater.py drives a reboot through the
// same BMC session it used to flash. Real flashing is not wired — §4.8's
// dry-run path is always available and is the only mode this stage uses;
// an operator-triggered maintenance window is expected to supply a real
// vendor flash tool as a different Handler implementation.
type bmcFirmwareHandler struct {
	client *bmc.Client
}

func (h *bmcFirmwareHandler) Check(ctx context.Context, component firmware.ComponentType) (current, latest string, err error) {
	if component != firmware.ComponentBMC {
		// No firmware-repository integration is wired for non-BMC
		// components; "unknown" makes CompareVersions report no update
		// required rather than fabricating a version to diff against.
		return "unknown", "unknown", nil
	}
	info, err := h.client.BMCInfo(ctx)
	if err != nil {
		return "", "", err
	}
	current = parseFirmwareRevision(info)
	return current, current, nil
}

func (h *bmcFirmwareHandler) Update(_ context.Context, component firmware.ComponentType, _ string) (bool, error) {
	return false, fmt.Errorf("real firmware flashing for %s is not wired; run in dry-run mode", component)
}

func (h *bmcFirmwareHandler) WaitReady(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if err := h.client.PingTest(ctx); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("BMC did not become ready within %s", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
}

func (h *bmcFirmwareHandler) Reboot(ctx context.Context) error {
	_, err := h.client.Power(ctx, bmc.PowerCycle)
	return err
}

func parseFirmwareRevision(info string) string {
	for _, line := range strings.Split(info, "\n") {
		if strings.Contains(strings.ToLower(line), "firmware revision") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				return strings.TrimSpace(parts[1])
			}
		}
	}
	return "unknown"
}

// firmwareChecks is the set of components this stage evaluates; a real
// firmware-repository integration would extend this with UEFI/NIC/STORAGE/
// CPLD once a source of truth for "latest" exists for them.
var firmwareChecks = []firmware.ComponentType{firmware.ComponentBMC, firmware.ComponentBIOS}

// firmwareBody builds a per-component state for firmwareChecks, orders any
// update-required components into a plan (spec.md §4.8), and evaluates that
// plan in dry-run mode.
func firmwareBody(c *Components) workflow.PlainStepFunc {
	return func(ctx context.Context, wfCtx *workflow.Context) workflow.StepExecutionResult {
		v, ok := wfCtx.Get("bmc_ip")
		bmcIP, _ := v.(string)
		if !ok || bmcIP == "" {
			return workflow.Skip("no target BMC IP known, skipping firmware")
		}

		creds := c.IPMICreds
		creds.Host = bmcIP
		client := bmc.NewClient(creds, c.IPMITimeout)
		handler := &bmcFirmwareHandler{client: client}

		var states []firmware.ComponentState
		for _, ct := range firmwareChecks {
			state, err := firmware.CheckComponent(ctx, handler, ct)
			if err != nil {
				return workflow.Failure(fmt.Sprintf("firmware check failed for %s: %v", ct, err), true)
			}
			states = append(states, state)
		}

		plan := firmware.BuildPlan(states)
		if len(plan) == 0 {
			return workflow.Success("firmware up to date", nil)
		}

		result := firmware.Execute(ctx, plan, handler, true)
		if result.Aborted {
			return workflow.Failure("firmware plan aborted on a critical/high-priority item", true)
		}
		wfCtx.AppendSubTask("firmware", fmt.Sprintf("dry-run plan: %d component(s) pending update", len(plan)))
		return workflow.Success("firmware plan evaluated (dry-run)", map[string]any{"pending_components": len(plan)})
	}
}

func finalizationBody(c *Components) workflow.PlainStepFunc {
	handlers := map[boarding.Category]boarding.Handler{
		boarding.CategoryConnectivity:  boarding.ConnectivityHandler{Creds: c.SSHCreds},
		boarding.CategoryHardware:      boarding.HardwareHandler{},
		boarding.CategoryNetwork:       boarding.NetworkHandler{},
		boarding.CategoryBIOS:          boarding.BIOSHandler{},
		boarding.CategoryConfiguration: boarding.ConfigurationHandler{},
	}
	return func(ctx context.Context, wfCtx *workflow.Context) workflow.StepExecutionResult {
		report := boarding.Validate(ctx, wfCtx, handlers)
		c.Store.UpdateServer(ctx, wfCtx.ServerID, store.FieldCommissioningStatus, string(report.OverallStatus))
		if report.OverallStatus == boarding.StatusFail {
			return workflow.Failure("boarding validation failed", false)
		}
		return workflow.Success("boarding validation complete", map[string]any{"boarding_status": string(report.OverallStatus)})
	}
}
