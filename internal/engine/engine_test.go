package engine

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinkerbell/hwprovisiond/internal/store"
	"github.com/tinkerbell/hwprovisiond/internal/workflow"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:", logr.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func plainStep(name string, body workflow.PlainStepFunc) *workflow.PlainStep {
	return &workflow.PlainStep{StepName: name, StepDescription: name, Body: body}
}

func TestExecuteHappyPathRunsAllStepsInOrder(t *testing.T) {
	st := openTestStore(t)
	var order []string

	steps := []workflow.Step{
		plainStep("first", func(ctx context.Context, wfCtx *workflow.Context) workflow.StepExecutionResult {
			order = append(order, "first")
			return workflow.Success("ok", map[string]any{"a": 1})
		}),
		plainStep("second", func(ctx context.Context, wfCtx *workflow.Context) workflow.StepExecutionResult {
			order = append(order, "second")
			v, _ := wfCtx.Get("a")
			assert.Equal(t, 1, v)
			return workflow.Success("ok", nil)
		}),
	}

	e := New(steps, st, logr.Discard())
	wfCtx := workflow.NewContext("wf-1", "srv-1", "dt-1", nil)
	outcome := e.Execute(context.Background(), wfCtx)

	assert.Equal(t, store.WorkflowSuccess, outcome.Status)
	assert.Equal(t, 2, outcome.StepsCompleted)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestExecuteStopsOnTerminalFailure(t *testing.T) {
	st := openTestStore(t)
	var ran []string

	steps := []workflow.Step{
		plainStep("boom", func(ctx context.Context, wfCtx *workflow.Context) workflow.StepExecutionResult {
			ran = append(ran, "boom")
			return workflow.Failure("it broke", false)
		}),
		plainStep("never", func(ctx context.Context, wfCtx *workflow.Context) workflow.StepExecutionResult {
			ran = append(ran, "never")
			return workflow.Success("", nil)
		}),
	}

	e := New(steps, st, logr.Discard())
	wfCtx := workflow.NewContext("wf-2", "srv-2", "dt-1", nil)
	outcome := e.Execute(context.Background(), wfCtx)

	assert.Equal(t, store.WorkflowFailed, outcome.Status)
	assert.Equal(t, "it broke", outcome.ErrorMessage)
	assert.Equal(t, []string{"boom"}, ran)
}

func TestExecuteContinuesPastFailureWhenShouldContinue(t *testing.T) {
	st := openTestStore(t)
	steps := []workflow.Step{
		plainStep("soft-fail", func(ctx context.Context, wfCtx *workflow.Context) workflow.StepExecutionResult {
			return workflow.Failure("non-fatal", true)
		}),
		plainStep("continues", func(ctx context.Context, wfCtx *workflow.Context) workflow.StepExecutionResult {
			return workflow.Success("", nil)
		}),
	}
	e := New(steps, st, logr.Discard())
	wfCtx := workflow.NewContext("wf-3", "srv-3", "dt-1", nil)
	outcome := e.Execute(context.Background(), wfCtx)

	assert.Equal(t, store.WorkflowSuccess, outcome.Status)
	assert.Equal(t, 2, outcome.StepsCompleted)
}

func TestExecutePrerequisiteFailureShortCircuits(t *testing.T) {
	st := openTestStore(t)
	called := false
	steps := []workflow.Step{
		&workflow.PlainStep{
			StepName:      "gated",
			Prerequisites: func(wfCtx *workflow.Context) bool { return false },
			Body: func(ctx context.Context, wfCtx *workflow.Context) workflow.StepExecutionResult {
				called = true
				return workflow.Success("", nil)
			},
		},
	}
	e := New(steps, st, logr.Discard())
	wfCtx := workflow.NewContext("wf-4", "srv-4", "dt-1", nil)
	outcome := e.Execute(context.Background(), wfCtx)

	assert.False(t, called)
	assert.Equal(t, store.WorkflowFailed, outcome.Status)
}

func TestExecuteCancelledBeforeStartReturnsCancelled(t *testing.T) {
	st := openTestStore(t)
	steps := []workflow.Step{
		plainStep("noop", func(ctx context.Context, wfCtx *workflow.Context) workflow.StepExecutionResult {
			return workflow.Success("", nil)
		}),
	}
	e := New(steps, st, logr.Discard())
	wfCtx := workflow.NewContext("wf-5", "srv-5", "dt-1", nil)
	wfCtx.Cancel()
	outcome := e.Execute(context.Background(), wfCtx)

	assert.Equal(t, store.WorkflowCancelled, outcome.Status)
	assert.Equal(t, 0, outcome.StepsCompleted)
}

func TestExecuteForwardOnlyNextStepJumpIsHonored(t *testing.T) {
	st := openTestStore(t)
	var ran []string
	steps := []workflow.Step{
		plainStep("a", func(ctx context.Context, wfCtx *workflow.Context) workflow.StepExecutionResult {
			ran = append(ran, "a")
			r := workflow.Success("", nil)
			r.NextStep = "c"
			return r
		}),
		plainStep("b", func(ctx context.Context, wfCtx *workflow.Context) workflow.StepExecutionResult {
			ran = append(ran, "b")
			return workflow.Success("", nil)
		}),
		plainStep("c", func(ctx context.Context, wfCtx *workflow.Context) workflow.StepExecutionResult {
			ran = append(ran, "c")
			return workflow.Success("", nil)
		}),
	}
	e := New(steps, st, logr.Discard())
	wfCtx := workflow.NewContext("wf-6", "srv-6", "dt-1", nil)
	outcome := e.Execute(context.Background(), wfCtx)

	assert.Equal(t, store.WorkflowSuccess, outcome.Status)
	assert.Equal(t, []string{"a", "c"}, ran)
}

func TestExecuteBackwardNextStepJumpIsIgnored(t *testing.T) {
	st := openTestStore(t)
	var ran []string
	steps := []workflow.Step{
		plainStep("a", func(ctx context.Context, wfCtx *workflow.Context) workflow.StepExecutionResult {
			ran = append(ran, "a")
			return workflow.Success("", nil)
		}),
		plainStep("b", func(ctx context.Context, wfCtx *workflow.Context) workflow.StepExecutionResult {
			ran = append(ran, "b")
			r := workflow.Success("", nil)
			r.NextStep = "a" // backward jump, must be ignored
			return r
		}),
	}
	e := New(steps, st, logr.Discard())
	wfCtx := workflow.NewContext("wf-7", "srv-7", "dt-1", nil)
	outcome := e.Execute(context.Background(), wfCtx)

	assert.Equal(t, store.WorkflowSuccess, outcome.Status)
	assert.Equal(t, []string{"a", "b"}, ran)
}

func TestExecuteCleanupAlwaysRunsEvenOnFailure(t *testing.T) {
	st := openTestStore(t)
	cleaned := false
	steps := []workflow.Step{
		&workflow.PlainStep{
			StepName: "fails",
			Body: func(ctx context.Context, wfCtx *workflow.Context) workflow.StepExecutionResult {
				return workflow.Failure("nope", false)
			},
			CleanupFunc: func(wfCtx *workflow.Context) { cleaned = true },
		},
	}
	e := New(steps, st, logr.Discard())
	wfCtx := workflow.NewContext("wf-8", "srv-8", "dt-1", nil)
	e.Execute(context.Background(), wfCtx)

	assert.True(t, cleaned)
}

func TestExecuteAllRunsConcurrentWorkflowsIndependently(t *testing.T) {
	st := openTestStore(t)
	steps := []workflow.Step{
		plainStep("only", func(ctx context.Context, wfCtx *workflow.Context) workflow.StepExecutionResult {
			time.Sleep(time.Millisecond)
			return workflow.Success("", nil)
		}),
	}

	e1 := New(steps, st, logr.Discard())
	e2 := New(steps, st, logr.Discard())
	wfCtx1 := workflow.NewContext("wf-9a", "srv-9a", "dt-1", nil)
	wfCtx2 := workflow.NewContext("wf-9b", "srv-9b", "dt-1", nil)

	outcomes, err := ExecuteAll(context.Background(), []*Engine{e1, e2}, []*workflow.Context{wfCtx1, wfCtx2})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, store.WorkflowSuccess, outcomes[0].Status)
	assert.Equal(t, store.WorkflowSuccess, outcomes[1].Status)
}
