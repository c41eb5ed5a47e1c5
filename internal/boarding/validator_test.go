package boarding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinkerbell/hwprovisiond/internal/workflow"
)

type fakeHandler struct {
	cat       Category
	prereqs   []Category
	results   []Result
	callCount int
}

func (f *fakeHandler) Category() Category                   { return f.cat }
func (f *fakeHandler) GetRequiredPrerequisites() []Category { return f.prereqs }
func (f *fakeHandler) Validate(ctx context.Context, wfCtx *workflow.Context) []Result {
	f.callCount++
	return f.results
}

func TestValidateRunsInDependencyOrder(t *testing.T) {
	var seen []Category
	recording := func(cat Category, prereqs []Category, status Status) *fakeHandler {
		return &fakeHandler{
			cat:     cat,
			prereqs: prereqs,
			results: []Result{{CheckName: string(cat), Status: status}},
		}
	}

	handlers := map[Category]Handler{
		CategoryConnectivity:  recording(CategoryConnectivity, nil, StatusPass),
		CategoryHardware:      recording(CategoryHardware, []Category{CategoryConnectivity}, StatusPass),
		CategoryIPMI:          recording(CategoryIPMI, []Category{CategoryConnectivity}, StatusPass),
		CategoryBIOS:          recording(CategoryBIOS, []Category{CategoryHardware}, StatusPass),
		CategoryNetwork:       recording(CategoryNetwork, []Category{CategoryConnectivity}, StatusPass),
		CategoryConfiguration: recording(CategoryConfiguration, []Category{CategoryHardware, CategoryNetwork}, StatusPass),
	}

	wfCtx := workflow.NewContext("wf-1", "srv-1", "dt-1", nil)
	report := Validate(context.Background(), wfCtx, handlers)

	require.Len(t, report.Results, 6)
	for _, r := range report.Results {
		seen = append(seen, Category(r.CheckName))
	}
	assert.Equal(t, order, seen)
	assert.Equal(t, StatusPass, report.OverallStatus)
}

func TestValidateSkipsWhenPrerequisiteCategoryFailed(t *testing.T) {
	handlers := map[Category]Handler{
		CategoryConnectivity: &fakeHandler{cat: CategoryConnectivity, results: []Result{{CheckName: "connectivity", Status: StatusFail}}},
		CategoryHardware:     &fakeHandler{cat: CategoryHardware, prereqs: []Category{CategoryConnectivity}, results: []Result{{CheckName: "hardware", Status: StatusPass}}},
	}
	wfCtx := workflow.NewContext("wf-2", "srv-2", "dt-1", nil)
	report := Validate(context.Background(), wfCtx, handlers)

	require.Len(t, report.Results, 2)
	assert.Equal(t, StatusSkip, report.Results[1].Status)
	assert.Equal(t, StatusFail, report.OverallStatus)
}

func TestValidateIPMISkipMessageMatchesExactScenarioString(t *testing.T) {
	ipmi := &fakeHandler{cat: CategoryIPMI, prereqs: []Category{CategoryConnectivity}}
	handlers := map[Category]Handler{
		CategoryConnectivity: &fakeHandler{cat: CategoryConnectivity, results: []Result{{CheckName: "connectivity", Status: StatusFail}}},
		CategoryIPMI:         ipmi,
	}
	wfCtx := workflow.NewContext("wf-3", "srv-3", "dt-1", nil)
	report := Validate(context.Background(), wfCtx, handlers)

	require.Len(t, report.Results, 2)
	assert.Equal(t, "Skipping extended IPMI tests due to authentication failure", report.Results[1].Message)
	assert.Equal(t, 0, ipmi.callCount)
}

func TestAggregateAnyWarningWithoutFailIsWarning(t *testing.T) {
	results := []Result{{Status: StatusPass}, {Status: StatusWarning}, {Status: StatusPass}}
	assert.Equal(t, StatusWarning, aggregate(results))
}

func TestAggregateAllPassIsPass(t *testing.T) {
	results := []Result{{Status: StatusPass}, {Status: StatusPass}}
	assert.Equal(t, StatusPass, aggregate(results))
}
