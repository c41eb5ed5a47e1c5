package boarding

import (
	"context"
	"strings"
	"time"

	"github.com/tinkerbell/hwprovisiond/internal/bmc"
	"github.com/tinkerbell/hwprovisiond/internal/sshadapter"
	"github.com/tinkerbell/hwprovisiond/internal/workflow"
)

// ConnectivityHandler validates that the server's SSH endpoint is reachable
// (spec.md §4.12 category "connectivity"): the pipeline's root, with no
// prerequisites.
type ConnectivityHandler struct {
	Creds sshadapter.Credentials
}

func (ConnectivityHandler) Category() Category                   { return CategoryConnectivity }
func (ConnectivityHandler) GetRequiredPrerequisites() []Category { return nil }

func (h ConnectivityHandler) Validate(ctx context.Context, wfCtx *workflow.Context) []Result {
	if wfCtx.TargetIP == "" {
		return []Result{{CheckName: "ssh_reachable", Status: StatusFail, Message: "no target IP known for server"}}
	}
	probe := sshadapter.Probe(wfCtx.TargetIP, 22, h.Creds, 3*time.Second)
	if !probe.SSHWorks {
		return []Result{{CheckName: "ssh_reachable", Status: StatusFail, Message: "SSH did not respond", Remediation: "verify commissioning completed and enable_ssh was set"}}
	}
	return []Result{{CheckName: "ssh_reachable", Status: StatusPass, Message: "SSH responded"}}
}

// HardwareHandler validates that discovered hardware facts are present and
// plausible; requires connectivity to have passed.
type HardwareHandler struct{}

func (HardwareHandler) Category() Category                   { return CategoryHardware }
func (HardwareHandler) GetRequiredPrerequisites() []Category { return []Category{CategoryConnectivity} }

func (HardwareHandler) Validate(ctx context.Context, wfCtx *workflow.Context) []Result {
	hw := wfCtx.Hardware
	if hw == nil || hw.CPUModel == "" {
		return []Result{{CheckName: "hardware_facts", Status: StatusFail, Message: "no hardware facts gathered"}}
	}
	var results []Result
	results = append(results, Result{CheckName: "cpu_model", Status: StatusPass, Message: hw.CPUModel})
	if hw.RAMGB <= 0 {
		results = append(results, Result{CheckName: "memory", Status: StatusWarning, Message: "memory size not reported"})
	} else {
		results = append(results, Result{CheckName: "memory", Status: StatusPass, Message: "memory reported"})
	}
	return results
}

// IPMIHandler exercises the BMC over ipmitool: authentication, then power
// status as an extended check. On an authentication failure the extended
// checks are skipped with the literal message required by spec.md §8's
// boarding scenario, rather than failing the whole category outright.
type IPMIHandler struct {
	Client *bmc.Client
}

func (IPMIHandler) Category() Category                   { return CategoryIPMI }
func (IPMIHandler) GetRequiredPrerequisites() []Category { return []Category{CategoryConnectivity} }

func (h IPMIHandler) Validate(ctx context.Context, wfCtx *workflow.Context) []Result {
	if err := h.Client.Authenticate(ctx); err != nil {
		if strings.Contains(err.Error(), "authentication failure") {
			return []Result{
				{CheckName: "ipmi_auth", Status: StatusFail, Message: "IPMI authentication failed"},
				{CheckName: "ipmi_extended", Status: StatusSkip, Message: "Skipping extended IPMI tests due to authentication failure"},
			}
		}
		return []Result{{CheckName: "ipmi_auth", Status: StatusFail, Message: err.Error()}}
	}

	results := []Result{{CheckName: "ipmi_auth", Status: StatusPass, Message: "authenticated"}}
	if err := h.Client.VerifyPower(ctx, bmc.PowerOn); err != nil {
		results = append(results, Result{CheckName: "ipmi_power_status", Status: StatusWarning, Message: err.Error()})
	} else {
		results = append(results, Result{CheckName: "ipmi_power_status", Status: StatusPass, Message: "power on"})
	}
	return results
}

// BIOSHandler checks that the device-type's BIOS overlay settings were
// actually applied, sourced from the workflow context's data map (the BIOS
// configuration stage stores its verification outcome under "bios_verified").
type BIOSHandler struct{}

func (BIOSHandler) Category() Category                   { return CategoryBIOS }
func (BIOSHandler) GetRequiredPrerequisites() []Category { return []Category{CategoryHardware} }

func (BIOSHandler) Validate(ctx context.Context, wfCtx *workflow.Context) []Result {
	v, ok := wfCtx.Get("bios_verified")
	if !ok {
		return []Result{{CheckName: "bios_settings", Status: StatusWarning, Message: "no BIOS verification result recorded"}}
	}
	if verified, _ := v.(bool); verified {
		return []Result{{CheckName: "bios_settings", Status: StatusPass, Message: "BIOS settings verified"}}
	}
	return []Result{{CheckName: "bios_settings", Status: StatusFail, Message: "BIOS settings verification failed"}}
}

// NetworkHandler checks that a working IP was recorded on the context
// (TargetIP is non-empty); it does not compare that IP against any other
// expected address.
type NetworkHandler struct{}

func (NetworkHandler) Category() Category                   { return CategoryNetwork }
func (NetworkHandler) GetRequiredPrerequisites() []Category { return []Category{CategoryConnectivity} }

func (NetworkHandler) Validate(ctx context.Context, wfCtx *workflow.Context) []Result {
	if wfCtx.TargetIP == "" {
		return []Result{{CheckName: "ip_assignment", Status: StatusFail, Message: "no working IP recorded"}}
	}
	return []Result{{CheckName: "ip_assignment", Status: StatusPass, Message: wfCtx.TargetIP}}
}

// ConfigurationHandler is the terminal category: it runs only once its
// hardware and network prerequisites passed, and then always reports a
// single pass result without inspecting the other categories' results.
type ConfigurationHandler struct{}

func (ConfigurationHandler) Category() Category { return CategoryConfiguration }
func (ConfigurationHandler) GetRequiredPrerequisites() []Category {
	return []Category{CategoryHardware, CategoryNetwork}
}

func (ConfigurationHandler) Validate(ctx context.Context, wfCtx *workflow.Context) []Result {
	return []Result{{CheckName: "configuration_complete", Status: StatusPass, Message: "boarding pipeline completed"}}
}
