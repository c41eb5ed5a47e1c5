package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tinkerbell/hwprovisiond/internal/fleet"
	"github.com/tinkerbell/hwprovisiond/internal/provisionerrors"
	"github.com/tinkerbell/hwprovisiond/internal/sshadapter"
	"github.com/tinkerbell/hwprovisiond/internal/store"
	"github.com/tinkerbell/hwprovisiond/internal/workflow"
)

// CommissioningHandler implements spec.md §4.11's commissioning decision
// tree: already-usable (skip after an SSH probe succeeds), force-recommission
// (Failed commissioning / Broken / Ready-without-SSH), or a normal
// commission — with every transition persisted through internal/store.
type CommissioningHandler struct {
	Fleet *fleet.Client
	Store *store.Store
	Creds sshadapter.Credentials
}

// Handle runs the decision tree for one server and returns a
// workflow.StepExecutionResult suitable for a commissioning PlainStep body.
func (h *CommissioningHandler) Handle(ctx context.Context, wfCtx *workflow.Context, systemID string) workflow.StepExecutionResult {
	machine, err := h.Fleet.GetMachine(ctx, systemID)
	if err != nil {
		return workflow.Failure(fmt.Sprintf("fetching machine %s: %v", systemID, err), false)
	}

	onProgress := func(status fleet.StatusName) {
		wfCtx.AppendSubTask("commissioning", fmt.Sprintf("fleet status: %s", status))
	}

	switch {
	case machine.StatusName == fleet.StatusReady:
		ips := fleet.ExtractWorkingIPs(*machine)
		if probeAnyReachable(ips, h.Creds) {
			// Already usable: skip straight past commissioning.
			h.recordTransition(ctx, wfCtx, systemID, "already-usable")
			return workflow.Success("already commissioned and reachable", map[string]any{"target_ip": firstOrEmpty(ips)})
		}
		// Ready without working SSH: force a recommission.
		if err := h.Fleet.ForceCommission(ctx, systemID, onProgress); err != nil {
			if isTimeout(err) {
				return workflow.Failure(provisionerrors.NewCommissioningTimeout(wfCtx.ServerID).Reason, false)
			}
			return workflow.Failure(fmt.Sprintf("force-recommissioning %s: %v", systemID, err), false)
		}
		h.recordTransition(ctx, wfCtx, systemID, "force-recommissioned")

	case machine.StatusName == fleet.StatusFailedCommission || machine.StatusName == fleet.StatusBroken:
		if err := h.Fleet.ForceCommission(ctx, systemID, onProgress); err != nil {
			if isTimeout(err) {
				return workflow.Failure(provisionerrors.NewCommissioningTimeout(wfCtx.ServerID).Reason, false)
			}
			return workflow.Failure(fmt.Sprintf("force-recommissioning %s: %v", systemID, err), false)
		}
		h.recordTransition(ctx, wfCtx, systemID, "force-recommissioned")

	default:
		if err := h.Fleet.Commission(ctx, systemID, true); err != nil {
			return workflow.Failure(fmt.Sprintf("commissioning %s: %v", systemID, err), false)
		}
		if _, err := h.Fleet.PollForStatus(ctx, systemID, []fleet.StatusName{fleet.StatusCommissioned, fleet.StatusReady}, onProgress); err != nil {
			if isTimeout(err) {
				return workflow.Failure(provisionerrors.NewCommissioningTimeout(wfCtx.ServerID).Reason, false)
			}
			return workflow.Failure(fmt.Sprintf("commissioning %s: %v", systemID, err), false)
		}
		h.recordTransition(ctx, wfCtx, systemID, "commissioned")
	}

	final, err := h.Fleet.GetMachine(ctx, systemID)
	if err != nil {
		return workflow.Failure(fmt.Sprintf("fetching machine %s after commissioning: %v", systemID, err), false)
	}
	ips := fleet.ExtractWorkingIPs(*final)
	return workflow.Success("commissioning complete", map[string]any{"target_ip": firstOrEmpty(ips)})
}

func (h *CommissioningHandler) recordTransition(ctx context.Context, wfCtx *workflow.Context, systemID, note string) {
	wfCtx.AppendSubTask("commissioning", note)
	h.Store.UpdateServer(ctx, wfCtx.ServerID, store.FieldCommissioningStatus, note)
}

func probeAnyReachable(ips []string, creds sshadapter.Credentials) bool {
	for _, ip := range ips {
		if sshadapter.Probe(ip, 22, creds, 3*time.Second).SSHWorks {
			return true
		}
	}
	return false
}

func firstOrEmpty(ips []string) string {
	if len(ips) == 0 {
		return ""
	}
	return ips[0]
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
