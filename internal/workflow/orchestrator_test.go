package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kandev/agentengine/internal/common/logger"
	"github.com/kandev/agentengine/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func newRecordingRunner() *recordingRunner {
	return &recordingRunner{fail: make(map[string]bool)}
}

func (r *recordingRunner) Run(ctx context.Context, t task.Task) task.Result {
	r.mu.Lock()
	r.calls = append(r.calls, t.Type)
	r.mu.Unlock()

	if r.fail[t.Type] {
		return task.Result{TaskID: t.ID, Success: false, Error: "boom"}
	}
	return task.Result{TaskID: t.ID, Success: true, Output: t.Type + "-out"}
}

type recordingLifecycle struct {
	mu      sync.Mutex
	cleaned []string
}

func (l *recordingLifecycle) CleanupExecution(ctx context.Context, executionID string) error {
	l.mu.Lock()
	l.cleaned = append(l.cleaned, executionID)
	l.mu.Unlock()
	return nil
}

func waitFor(t *testing.T, o *Orchestrator, id string, status Status) Execution {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		exec, ok := o.Execution(id)
		if ok && exec.Status == status {
			return exec
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("execution %s did not reach status %s", id, status)
	return Execution{}
}

func TestStartWorkflowRunsStepsInOrder(t *testing.T) {
	runner := newRecordingRunner()
	lifecycle := &recordingLifecycle{}
	o := New(runner, lifecycle, logger.Default())

	def := Definition{
		ID: "wf-1",
		Steps: []Step{
			{Name: "step1", TaskType: "issue"},
			{Name: "step2", TaskType: "spec"},
		},
	}

	id, err := o.StartWorkflow(context.Background(), def, "/tmp/work", StartOptions{})
	require.NoError(t, err)

	exec := waitFor(t, o, id, StatusCompleted)
	require.Len(t, exec.StepResults, 2)
	assert.Equal(t, "step1", exec.StepResults[0].StepName)
	assert.Equal(t, "step2", exec.StepResults[1].StepName)
	assert.Equal(t, []string{"issue", "spec"}, runner.calls)

	lifecycle.mu.Lock()
	defer lifecycle.mu.Unlock()
	assert.Equal(t, []string{id}, lifecycle.cleaned)
}

func TestStartWorkflowStopsOnFailureByDefault(t *testing.T) {
	runner := newRecordingRunner()
	runner.fail["spec"] = true
	o := New(runner, nil, logger.Default())

	def := Definition{
		ID: "wf-1",
		Steps: []Step{
			{Name: "step1", TaskType: "issue"},
			{Name: "step2", TaskType: "spec"},
			{Name: "step3", TaskType: "custom"},
		},
	}

	id, err := o.StartWorkflow(context.Background(), def, "/tmp/work", StartOptions{})
	require.NoError(t, err)

	exec := waitFor(t, o, id, StatusFailed)
	require.Len(t, exec.StepResults, 2)
	assert.Equal(t, []string{"issue", "spec"}, runner.calls)
}

func TestStartWorkflowContinuesOnStepFailureWhenFlagged(t *testing.T) {
	runner := newRecordingRunner()
	runner.fail["spec"] = true
	o := New(runner, nil, logger.Default())

	def := Definition{
		ID: "wf-1",
		Steps: []Step{
			{Name: "step1", TaskType: "issue"},
			{Name: "step2", TaskType: "spec", ContinueOnStepFailure: true},
			{Name: "step3", TaskType: "custom"},
		},
	}

	id, err := o.StartWorkflow(context.Background(), def, "/tmp/work", StartOptions{})
	require.NoError(t, err)

	exec := waitFor(t, o, id, StatusCompleted)
	require.Len(t, exec.StepResults, 3)
	assert.Equal(t, []string{"issue", "spec", "custom"}, runner.calls)
}

func TestCancelWorkflowAcceptsRunningExecution(t *testing.T) {
	runner := newRecordingRunner()
	o := New(runner, nil, logger.Default())

	def := Definition{
		ID: "wf-1",
		Steps: []Step{
			{Name: "step1", TaskType: "issue"},
			{Name: "step2", TaskType: "spec"},
		},
	}

	id, err := o.StartWorkflow(context.Background(), def, "/tmp/work", StartOptions{})
	require.NoError(t, err)
	require.NoError(t, o.CancelWorkflow(id))

	exec, ok := o.Execution(id)
	require.True(t, ok)
	_ = exec
}

func TestCancelUnknownExecution(t *testing.T) {
	o := New(newRecordingRunner(), nil, logger.Default())
	err := o.CancelWorkflow("does-not-exist")
	assert.Error(t, err)
}
