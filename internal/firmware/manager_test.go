package firmware

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPlanOrdersByTypeThenPriority(t *testing.T) {
	states := []ComponentState{
		{Type: ComponentNIC, UpdateRequired: true, Priority: PriorityNormal},
		{Type: ComponentBIOS, UpdateRequired: true, Priority: PriorityHigh},
		{Type: ComponentBIOS, UpdateRequired: true, Priority: PriorityCritical},
		{Type: ComponentBMC, UpdateRequired: false, Priority: PriorityCritical},
		{Type: ComponentStorage, UpdateRequired: true, Priority: PriorityLow},
	}

	plan := BuildPlan(states)
	require.Len(t, plan, 4)
	assert.Equal(t, ComponentBIOS, plan[0].State.Type)
	assert.Equal(t, PriorityCritical, plan[0].State.Priority)
	assert.Equal(t, ComponentBIOS, plan[1].State.Type)
	assert.Equal(t, PriorityHigh, plan[1].State.Priority)
	assert.Equal(t, ComponentNIC, plan[2].State.Type)
	assert.Equal(t, ComponentStorage, plan[3].State.Type)
}

func TestBuildPlanExcludesStatesNotRequiringUpdate(t *testing.T) {
	states := []ComponentState{
		{Type: ComponentBMC, UpdateRequired: false},
		{Type: ComponentCPLD, UpdateRequired: true, Priority: PriorityNormal},
	}
	plan := BuildPlan(states)
	require.Len(t, plan, 1)
	assert.Equal(t, ComponentCPLD, plan[0].State.Type)
}

type fakeHandler struct {
	updateErr      error
	rebootRequired bool
	waitReadyErr   error
	rebootCalled   int
	updateCalled   int
	checkCurrent   string
	checkLatest    string
}

func (f *fakeHandler) Check(ctx context.Context, component ComponentType) (string, string, error) {
	if f.checkCurrent == "" && f.checkLatest == "" {
		return "1.0", "2.0", nil
	}
	return f.checkCurrent, f.checkLatest, nil
}

func (f *fakeHandler) Update(ctx context.Context, component ComponentType, targetVersion string) (bool, error) {
	f.updateCalled++
	return f.rebootRequired, f.updateErr
}

func (f *fakeHandler) WaitReady(ctx context.Context, timeout time.Duration) error {
	return f.waitReadyErr
}

func (f *fakeHandler) Reboot(ctx context.Context) error {
	f.rebootCalled++
	return nil
}

func TestExecuteDryRunNeverCallsHandler(t *testing.T) {
	handler := &fakeHandler{}
	plan := []PlanItem{{State: ComponentState{Type: ComponentBMC, UpdateRequired: true, Priority: PriorityNormal, EstimatedDuration: 2 * time.Minute}}}

	result := Execute(context.Background(), plan, handler, true)
	require.Len(t, result.Items, 1)
	assert.True(t, result.Items[0].DryRun)
	assert.Equal(t, 0, handler.updateCalled)
	assert.False(t, result.Aborted)
}

func TestExecuteCriticalFailureAbortsBatch(t *testing.T) {
	handler := &fakeHandler{updateErr: errors.New("flash failed")}
	plan := []PlanItem{
		{State: ComponentState{Type: ComponentBMC, UpdateRequired: true, Priority: PriorityCritical}},
		{State: ComponentState{Type: ComponentBIOS, UpdateRequired: true, Priority: PriorityNormal}},
	}

	result := Execute(context.Background(), plan, handler, false)
	require.Len(t, result.Items, 1)
	assert.True(t, result.Aborted)
	assert.Error(t, result.Items[0].Error)
}

func TestExecuteLowPriorityFailureDoesNotAbort(t *testing.T) {
	handler := &fakeHandler{updateErr: errors.New("flash failed")}
	plan := []PlanItem{
		{State: ComponentState{Type: ComponentNIC, UpdateRequired: true, Priority: PriorityLow}},
		{State: ComponentState{Type: ComponentStorage, UpdateRequired: true, Priority: PriorityLow}},
	}

	result := Execute(context.Background(), plan, handler, false)
	require.Len(t, result.Items, 2)
	assert.False(t, result.Aborted)
}

func TestExecuteRebootRequiredRunsSequence(t *testing.T) {
	original := rebootSettleDelay
	rebootSettleDelay = time.Millisecond
	defer func() { rebootSettleDelay = original }()

	handler := &fakeHandler{rebootRequired: true}
	plan := []PlanItem{{State: ComponentState{Type: ComponentBIOS, UpdateRequired: true, Priority: PriorityNormal}}}

	result := Execute(context.Background(), plan, handler, false)
	require.Len(t, result.Items, 1)
	assert.Equal(t, 1, handler.rebootCalled)
	assert.NoError(t, result.Items[0].Error)
}
