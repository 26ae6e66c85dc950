package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/kandev/agentengine/internal/common/logger"
	"github.com/kandev/agentengine/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRunner struct {
	result func(task.Task) task.Result
}

func (r *stubRunner) Run(ctx context.Context, t task.Task) task.Result {
	if r.result != nil {
		return r.result(t)
	}
	return task.Result{TaskID: t.ID, Success: true}
}

func newTestScheduler(runner Runner) *Scheduler {
	return New(Config{MaxConcurrent: 2}, runner, logger.Default(), nil)
}

func TestSubmitAndWaitForTaskSucceeds(t *testing.T) {
	s := newTestScheduler(&stubRunner{})
	defer s.Shutdown()

	id, err := s.SubmitTask(task.Task{ID: "t1", Type: "demo"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, err := s.WaitForTask(ctx, id)
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestSubmitTaskRejectsDuplicateID(t *testing.T) {
	s := newTestScheduler(&stubRunner{})
	defer s.Shutdown()

	_, err := s.SubmitTask(task.Task{ID: "dup"})
	require.NoError(t, err)

	_, err = s.SubmitTask(task.Task{ID: "dup"})
	assert.ErrorIs(t, err, ErrTaskExists)
}

func TestWaitForUnknownTask(t *testing.T) {
	s := newTestScheduler(&stubRunner{})
	defer s.Shutdown()

	_, err := s.WaitForTask(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUnknownTask)
}

func TestSubmitTasksReturnsAllIDs(t *testing.T) {
	s := newTestScheduler(&stubRunner{})
	defer s.Shutdown()

	ids, err := s.SubmitTasks([]task.Task{{ID: "a"}, {ID: "b"}, {ID: "c"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestWaitForTasksReturnsResultsInOrder(t *testing.T) {
	s := newTestScheduler(&stubRunner{})
	defer s.Shutdown()

	ids, err := s.SubmitTasks([]task.Task{{ID: "a"}, {ID: "b"}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	results, err := s.WaitForTasks(ctx, ids)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].TaskID)
	assert.Equal(t, "b", results[1].TaskID)
}

func TestOnTaskCompleteAndOnTaskFailedHandlersFire(t *testing.T) {
	completed := make(chan task.Result, 1)
	failed := make(chan task.Result, 1)

	s := newTestScheduler(&stubRunner{result: func(t task.Task) task.Result {
		if t.ID == "bad" {
			return task.Result{TaskID: t.ID, Success: false, Error: "boom"}
		}
		return task.Result{TaskID: t.ID, Success: true}
	}})
	defer s.Shutdown()

	s.OnTaskComplete(func(r task.Result) { completed <- r })
	s.OnTaskFailed(func(r task.Result) { failed <- r })

	_, err := s.SubmitTask(task.Task{ID: "good", Config: task.Config{MaxRetries: 0}})
	require.NoError(t, err)
	_, err = s.SubmitTask(task.Task{ID: "bad", Config: task.Config{MaxRetries: 0}})
	require.NoError(t, err)

	select {
	case r := <-completed:
		assert.Equal(t, "good", r.TaskID)
	case <-time.After(time.Second):
		t.Fatal("OnTaskComplete handler did not fire")
	}

	select {
	case r := <-failed:
		assert.Equal(t, "bad", r.TaskID)
	case <-time.After(time.Second):
		t.Fatal("OnTaskFailed handler did not fire")
	}
}

func TestGetTaskStatusUnknown(t *testing.T) {
	s := newTestScheduler(&stubRunner{})
	defer s.Shutdown()
	assert.Nil(t, s.GetTaskStatus("ghost"))
}

func TestCancelTaskRemovesQueuedTask(t *testing.T) {
	s := newTestScheduler(&stubRunner{})
	defer s.Shutdown()

	// Fill every slot with a blocking task so the next submission stays queued.
	block := make(chan struct{})
	s2 := New(Config{MaxConcurrent: 1}, &stubRunner{result: func(t task.Task) task.Result {
		<-block
		return task.Result{TaskID: t.ID, Success: true}
	}}, logger.Default(), nil)
	defer func() { close(block); s2.Shutdown() }()

	_, err := s2.SubmitTask(task.Task{ID: "running"})
	require.NoError(t, err)

	_, err = s2.SubmitTask(task.Task{ID: "queued"})
	require.NoError(t, err)

	assert.True(t, s2.CancelTask("queued"))
	assert.False(t, s2.CancelTask("ghost"))
}

func TestShutdownIsIdempotentAndRejectsFurtherSubmits(t *testing.T) {
	s := newTestScheduler(&stubRunner{})
	s.Shutdown()
	s.Shutdown()

	_, err := s.SubmitTask(task.Task{ID: "late"})
	assert.ErrorIs(t, err, ErrAlreadyShutdown)
}

func TestGetMetricsReflectsCompletedTask(t *testing.T) {
	s := newTestScheduler(&stubRunner{})
	defer s.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	id, err := s.SubmitTask(task.Task{ID: "t1"})
	require.NoError(t, err)
	_, err = s.WaitForTask(ctx, id)
	require.NoError(t, err)

	m := s.GetMetrics()
	assert.Equal(t, 1, m.Completed)
}
