package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextAppendOnly(t *testing.T) {
	c := NewContext("wf-1", "srv-1", "s2.c2.large", nil)
	c.AppendSubTask("discover", "probing dmi")
	c.AppendSubTask("discover", "probing cpu")
	c.AppendError("transient probe failure")

	require.Equal(t, []string{"probing dmi", "probing cpu"}, c.SubTasks())
	require.Equal(t, []string{"transient probe failure"}, c.Errors())

	// Reading back must never mutate the stored slices (append-only guarantee).
	snap := c.SubTasks()
	snap[0] = "tampered"
	assert.Equal(t, "probing dmi", c.SubTasks()[0])
}

func TestContextMergeAndGet(t *testing.T) {
	c := NewContext("wf-1", "srv-1", "s2.c2.large", nil)
	c.Merge(map[string]any{"discovered_ip": "10.0.0.5"})
	v, ok := c.Get("discovered_ip")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.5", v)
}

func TestRetryableStepExhaustsExactlyNPlusOneAttempts(t *testing.T) {
	calls := 0
	step := &RetryableStep{
		StepName: "flaky",
		Policy:   RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond},
		Body: func(ctx context.Context, wfCtx *Context) StepExecutionResult {
			calls++
			return Retry("not ready yet")
		},
	}
	wfCtx := NewContext("wf-1", "srv-1", "s2.c2.large", nil)
	result := step.Execute(context.Background(), wfCtx)

	assert.Equal(t, 3, calls)
	assert.Equal(t, StatusFailure, result.Status)
}

func TestRetryableStepSucceedsPartway(t *testing.T) {
	calls := 0
	step := &RetryableStep{
		StepName: "eventually-ok",
		Policy:   RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond},
		Body: func(ctx context.Context, wfCtx *Context) StepExecutionResult {
			calls++
			if calls < 3 {
				return Retry("waiting")
			}
			return Success("done", nil)
		},
	}
	wfCtx := NewContext("wf-1", "srv-1", "s2.c2.large", nil)
	result := step.Execute(context.Background(), wfCtx)

	assert.Equal(t, 3, calls)
	assert.Equal(t, StatusSuccess, result.Status)
}

func TestConditionalStepSkipsWithoutInvokingBody(t *testing.T) {
	invoked := false
	step := &ConditionalStep{
		StepName:      "ipmi-config",
		ShouldExecute: func(wfCtx *Context) bool { return false },
		Body: func(ctx context.Context, wfCtx *Context) StepExecutionResult {
			invoked = true
			return Success("", nil)
		},
	}
	wfCtx := NewContext("wf-1", "srv-1", "s2.c2.large", nil)
	result := step.Execute(context.Background(), wfCtx)

	assert.False(t, invoked)
	assert.Equal(t, StatusSkip, result.Status)
}

func TestPlainStepRecoversPanicAsFailure(t *testing.T) {
	step := &PlainStep{
		StepName: "boom",
		Body: func(ctx context.Context, wfCtx *Context) StepExecutionResult {
			panic("invariant violated")
		},
	}
	wfCtx := NewContext("wf-1", "srv-1", "s2.c2.large", nil)
	result := step.Execute(context.Background(), wfCtx)

	assert.Equal(t, StatusFailure, result.Status)
	assert.Contains(t, result.Message, "invariant violated")
	assert.False(t, result.ShouldContinue)
}

func TestCancelledRetryableStepStopsPromptly(t *testing.T) {
	wfCtx := NewContext("wf-1", "srv-1", "s2.c2.large", nil)
	wfCtx.Cancel()

	calls := 0
	step := &RetryableStep{
		StepName: "cancel-aware",
		Policy:   RetryPolicy{MaxAttempts: 10, BaseDelay: time.Second},
		Body: func(ctx context.Context, wfCtx *Context) StepExecutionResult {
			calls++
			return Retry("still waiting")
		},
	}
	result := step.Execute(context.Background(), wfCtx)

	assert.Equal(t, 0, calls)
	assert.Equal(t, StatusFailure, result.Status)
}
