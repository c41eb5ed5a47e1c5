// Package engine is the workflow execution engine (C10): it drives an
// ordered list of internal/workflow.Step values to completion, persisting
// progress through internal/store at each boundary (spec.md §4.10).
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/tinkerbell/hwprovisiond/internal/store"
	"github.com/tinkerbell/hwprovisiond/internal/workflow"
)

// Outcome is the terminal result of one Execute call.
type Outcome struct {
	Status         store.WorkflowStatus
	StepsCompleted int
	TotalSteps     int
	ErrorMessage   string
}

// Engine runs one ordered step list against one workflow.Context.
type Engine struct {
	steps []workflow.Step
	st    *store.Store
	log   logr.Logger
}

// New builds an Engine for the given ordered steps.
func New(steps []workflow.Step, st *store.Store, log logr.Logger) *Engine {
	registerMetrics()
	return &Engine{steps: steps, st: st, log: log}
}

// Execute runs the step list to completion or cancellation (spec.md §4.10).
// Step bodies never see the retry mechanism directly: a RetryableStep
// exhausts its own attempts before ever returning to this loop, so "retry"
// is invisible here, exactly as spec.md §4.9/§9 require.
func (e *Engine) Execute(ctx context.Context, wfCtx *workflow.Context) Outcome {
	start := time.Now()
	total := len(e.steps)

	if err := e.st.RecordWorkflowStart(ctx, wfCtx.WorkflowID, wfCtx.ServerID, wfCtx.DeviceType, total); err != nil {
		// Migration/persistence-layer failure recording workflow start is
		// fatal to this run: without a row there's nowhere to persist
		// progress or a terminal status (spec.md §4.1).
		return e.finish(ctx, wfCtx, store.WorkflowFailed, 0, total, start, fmt.Sprintf("recording workflow start: %v", err))
	}

	index := 0
	metadata := &store.WorkflowMetadata{SchemaVersion: 1}

	for index < len(e.steps) {
		step := e.steps[index]

		if wfCtx.Cancelled() {
			return e.finish(ctx, wfCtx, store.WorkflowCancelled, index, total, start, "")
		}

		wfCtx.Progress(workflow.ProgressEvent{
			WorkflowID: wfCtx.WorkflowID,
			Step:       index,
			TotalSteps: total,
			StepName:   step.Name(),
			Status:     "running",
		})

		stepRecord := store.StepProgress{Name: step.Name(), Status: "running", StartedAt: time.Now().UTC()}

		if !step.ValidatePrerequisites(wfCtx) {
			stepRecord.Status = "failed"
			stepRecord.Error = fmt.Sprintf("prerequisites not satisfied for step %s", step.Name())
			stepRecord.CompletedAt = time.Now().UTC()
			metadata.Steps = append(metadata.Steps, stepRecord)
			e.st.UpdateWorkflowProgress(ctx, wfCtx.WorkflowID, index, metadata)
			stepOutcomes.WithLabelValues(step.Name(), "prerequisite_failed").Inc()
			runCleanup(step, wfCtx)
			return e.finish(ctx, wfCtx, store.WorkflowFailed, index, total, start, stepRecord.Error)
		}

		subTasksBefore := len(wfCtx.SubTasks())

		stepCtx, cancel := wfCtx.WithTimeout(ctx, step.Timeout())
		result := step.Execute(stepCtx, wfCtx)
		cancel()

		wfCtx.Merge(result.Data)
		stepRecord.SubTasks = append(stepRecord.SubTasks, wfCtx.SubTasks()[subTasksBefore:]...)

		stepRecord.CompletedAt = time.Now().UTC()
		stepRecord.Status = string(result.Status)
		if result.Status == workflow.StatusFailure {
			stepRecord.Error = result.Message
			wfCtx.AppendError(fmt.Sprintf("%s: %s", step.Name(), result.Message))
		}
		metadata.Steps = append(metadata.Steps, stepRecord)
		stepOutcomes.WithLabelValues(step.Name(), string(result.Status)).Inc()

		runCleanup(step, wfCtx)

		index++
		e.st.UpdateWorkflowProgress(ctx, wfCtx.WorkflowID, index, metadata)

		if result.Status == workflow.StatusFailure && !result.ShouldContinue {
			return e.finish(ctx, wfCtx, store.WorkflowFailed, index, total, start, result.Message)
		}

		if result.NextStep != "" {
			if target := e.indexOf(result.NextStep); target > index {
				// Forward-only jump (spec.md §8 boundary behavior: a
				// backward next_step is ignored).
				index = target
			}
		}
	}

	return e.finish(ctx, wfCtx, store.WorkflowSuccess, index, total, start, "")
}

// runCleanup always runs a step's Cleanup; any error it surfaces through
// logging is the step's own concern, never promoted into the engine loop
// (spec.md §4.10: "cleanup always runs").
func runCleanup(step workflow.Step, wfCtx *workflow.Context) {
	defer func() { _ = recover() }()
	step.Cleanup(wfCtx)
}

func (e *Engine) indexOf(name string) int {
	for i, s := range e.steps {
		if s.Name() == name {
			return i
		}
	}
	return -1
}

func (e *Engine) finish(ctx context.Context, wfCtx *workflow.Context, status store.WorkflowStatus, stepsCompleted, total int, start time.Time, errMsg string) Outcome {
	if err := e.st.RecordWorkflowEnd(ctx, wfCtx.WorkflowID, wfCtx.ServerID, status, errMsg); err != nil {
		e.log.Error(err, "recording workflow end", "workflow_id", wfCtx.WorkflowID)
	}
	workflowDuration.WithLabelValues(string(status)).Observe(time.Since(start).Seconds())
	wfCtx.Progress(workflow.ProgressEvent{
		WorkflowID: wfCtx.WorkflowID,
		Step:       stepsCompleted,
		TotalSteps: total,
		Status:     string(status),
		Error:      errMsg,
	})
	return Outcome{Status: status, StepsCompleted: stepsCompleted, TotalSteps: total, ErrorMessage: errMsg}
}

// ExecuteAll runs multiple independent workflows concurrently, fanning out
// with errgroup and waiting for all to reach a terminal status (spec.md §5:
// "many concurrent workflows per process"). Any per-workflow panic is
// recovered by Execute's own step-level recovery; ExecuteAll itself never
// fails the group, it simply collects outcomes.
func ExecuteAll(ctx context.Context, engines []*Engine, wfCtxs []*workflow.Context) ([]Outcome, error) {
	if len(engines) != len(wfCtxs) {
		return nil, fmt.Errorf("engine/context slice length mismatch: %d vs %d", len(engines), len(wfCtxs))
	}
	outcomes := make([]Outcome, len(engines))
	g, gctx := errgroup.WithContext(ctx)
	for i := range engines {
		i := i
		g.Go(func() error {
			outcomes[i] = engines[i].Execute(gctx, wfCtxs[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}
