package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kandev/agentengine/internal/common/logger"
	"github.com/kandev/agentengine/internal/task"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Runner executes one task attempt and blocks until it reaches a terminal
// outcome; the orchestrator submits every step through this (normally the
// resilience layer's Resilient runner, so steps get retries and circuit
// breaking for free).
type Runner interface {
	Run(ctx context.Context, t task.Task) task.Result
}

// LifecycleHook is notified once per Execution's terminal outcome. Errors it
// returns are logged, never propagated (§4.6: "Cleanup errors are caught and
// logged, never propagated").
type LifecycleHook interface {
	CleanupExecution(ctx context.Context, executionID string) error
}

// StartOptions tunes a single startWorkflow call.
type StartOptions struct {
	ExecutionID string // caller-supplied id; a uuid is generated if empty
}

// Orchestrator runs Definitions step by step over a Runner.
type Orchestrator struct {
	runner    Runner
	lifecycle LifecycleHook
	log       *logger.Logger

	mu         sync.Mutex
	executions map[string]*executionHandle
}

type executionHandle struct {
	mu        sync.Mutex
	exec      Execution
	cancelled bool
}

// New constructs an Orchestrator. lifecycle may be nil.
func New(runner Runner, lifecycle LifecycleHook, log *logger.Logger) *Orchestrator {
	return &Orchestrator{runner: runner, lifecycle: lifecycle, log: log, executions: make(map[string]*executionHandle)}
}

// StartWorkflow runs def's steps in order over baseWorkDir and returns the
// execution id immediately; the chain itself runs asynchronously (§4.6).
func (o *Orchestrator) StartWorkflow(ctx context.Context, def Definition, baseWorkDir string, opts StartOptions) (string, error) {
	if len(def.Steps) == 0 {
		return "", fmt.Errorf("workflow: definition %q has no steps", def.ID)
	}

	executionID := opts.ExecutionID
	if executionID == "" {
		executionID = uuid.NewString()
	}

	h := &executionHandle{
		exec: Execution{
			ID:          executionID,
			WorkflowID:  def.ID,
			BaseWorkDir: baseWorkDir,
			Status:      StatusRunning,
			Data:        make(map[string]any),
			StartedAt:   time.Now(),
		},
	}

	o.mu.Lock()
	o.executions[executionID] = h
	o.mu.Unlock()

	go o.run(ctx, def, h)

	return executionID, nil
}

// CancelWorkflow sets a flag checked between steps (§4.6: "never mid-step").
func (o *Orchestrator) CancelWorkflow(executionID string) error {
	o.mu.Lock()
	h, ok := o.executions[executionID]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("workflow: unknown execution %q", executionID)
	}
	h.mu.Lock()
	h.cancelled = true
	h.mu.Unlock()
	return nil
}

// Execution returns a snapshot of executionID's current state.
func (o *Orchestrator) Execution(executionID string) (Execution, bool) {
	o.mu.Lock()
	h, ok := o.executions[executionID]
	o.mu.Unlock()
	if !ok {
		return Execution{}, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exec, true
}

func (o *Orchestrator) run(ctx context.Context, def Definition, h *executionHandle) {
	finalStatus := StatusCompleted

	for _, step := range def.Steps {
		if o.isCancelled(h) {
			finalStatus = StatusCancelled
			break
		}

		result, err := o.runStep(ctx, h, step)
		o.recordStep(h, step, result, err)

		if err != nil || !result.Success {
			if !step.ContinueOnStepFailure {
				finalStatus = StatusFailed
				break
			}
		}
	}

	o.finish(ctx, h, finalStatus)
}

// runStep executes step and, if it declares Parallel siblings, runs all of
// them concurrently alongside it via errgroup before the chain advances
// (§3.9). The step's own result drives chain continuation; sibling failures
// are logged but don't affect it — the chain stays linear over one position.
func (o *Orchestrator) runStep(ctx context.Context, h *executionHandle, step Step) (task.Result, error) {
	if len(step.Parallel) == 0 {
		return o.submitStep(ctx, h, step)
	}

	var (
		g             errgroup.Group
		primaryResult task.Result
		primaryErr    error
	)
	g.Go(func() error {
		primaryResult, primaryErr = o.submitStep(ctx, h, step)
		return nil
	})
	for _, sibling := range step.Parallel {
		sibling := sibling
		g.Go(func() error {
			res, err := o.submitStep(ctx, h, sibling)
			if err != nil || !res.Success {
				o.log.Warn("parallel sibling step failed",
					zap.String("step", sibling.Name), zap.String("error", res.Error))
			}
			o.recordStep(h, sibling, res, err)
			return nil
		})
	}
	_ = g.Wait()
	return primaryResult, primaryErr
}

func (o *Orchestrator) submitStep(ctx context.Context, h *executionHandle, step Step) (task.Result, error) {
	h.mu.Lock()
	data := make(map[string]any, len(h.exec.Data))
	for k, v := range h.exec.Data {
		data[k] = v
	}
	execID := h.exec.ID
	workDir := h.exec.BaseWorkDir
	h.mu.Unlock()

	prompt := ""
	if step.Render != nil {
		prompt = step.Render(data)
	}

	t := task.Task{
		ID:      execID + ":" + step.Name,
		Type:    step.TaskType,
		Prompt:  prompt,
		WorkDir: workDir,
	}

	result := o.runner.Run(ctx, t)
	return result, nil
}

func (o *Orchestrator) recordStep(h *executionHandle, step Step, result task.Result, err error) {
	sr := StepResult{StepName: step.Name, Success: result.Success, Output: result.Output, EndedAt: time.Now()}
	if err != nil {
		sr.Error = err.Error()
	} else {
		sr.Error = result.Error
	}

	h.mu.Lock()
	h.exec.StepResults = append(h.exec.StepResults, sr)
	if result.Success && result.Output != "" {
		h.exec.Data[step.Name] = result.Output
	}
	h.mu.Unlock()
}

func (o *Orchestrator) isCancelled(h *executionHandle) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

// finish runs the cleanup hook before publishing the terminal status, so an
// observer that sees the terminal status also sees cleanup done.
func (o *Orchestrator) finish(ctx context.Context, h *executionHandle, status Status) {
	h.mu.Lock()
	executionID := h.exec.ID
	h.mu.Unlock()

	if o.lifecycle != nil {
		if err := o.lifecycle.CleanupExecution(ctx, executionID); err != nil {
			o.log.Warn("workflow cleanup failed", zap.String("execution_id", executionID), zap.Error(err))
		}
	}

	h.mu.Lock()
	if h.cancelled && status != StatusFailed {
		status = StatusCancelled
	}
	h.exec.Status = status
	h.exec.EndedAt = time.Now()
	h.mu.Unlock()
}
