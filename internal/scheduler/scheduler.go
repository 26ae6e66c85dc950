package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kandev/agentengine/internal/common/logger"
	"github.com/kandev/agentengine/internal/events"
	"github.com/kandev/agentengine/internal/events/bus"
	"github.com/kandev/agentengine/internal/metrics"
	"github.com/kandev/agentengine/internal/task"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/kandev/agentengine/internal/scheduler"

const eventSource = "scheduler"

// publish fires subject on the bus with result's task id and error, if a bus
// is configured. The engine's own state transitions never depend on this
// succeeding — it is an observability fan-out (§3.13).
func (s *Scheduler) publish(subject string, taskID string, result task.Result) {
	if s.bus == nil {
		return
	}
	evt := bus.NewEvent(subject, eventSource, map[string]interface{}{
		"taskId":  taskID,
		"success": result.Success,
		"error":   result.Error,
	})
	if err := s.bus.Publish(context.Background(), subject, evt); err != nil {
		s.log.Warn("event publish failed", zap.String("subject", subject), zap.Error(err))
	}
}

var (
	ErrUnknownTask     = errors.New("scheduler: unknown task id")
	ErrAlreadyShutdown = errors.New("scheduler: already shut down")
)

// Runner executes one task attempt and blocks until it reaches a terminal
// outcome or ctx is cancelled. It is implemented by the Process Manager (§4.1)
// wired through an executor; the scheduler itself is agent-protocol agnostic.
type Runner interface {
	Run(ctx context.Context, t task.Task) task.Result
}

// Config holds the Scheduling Engine's tunables (§4.2, §6).
type Config struct {
	MaxConcurrent int
	MaxRetries    int // default applied when a task's own Config.MaxRetries is unset (<0)
}

// Metrics is a defensive snapshot returned by GetMetrics — caller mutation
// must never affect the engine (§4.2).
type Metrics struct {
	Running   int
	Queued    int
	Completed int
	Failed    int
	Cancelled int
}

// Scheduler is the Scheduling Engine described in §4.2.
type Scheduler struct {
	cfg    Config
	runner Runner
	log    *logger.Logger
	bus    bus.EventBus
	mx     *metrics.Instruments
	tracer trace.Tracer

	mu          sync.Mutex
	queue       *taskQueue
	records     map[string]*task.Record
	results     map[string]task.Result
	successIDs  map[string]bool
	attempts    map[string]int
	cancelFuncs map[string]context.CancelFunc
	waiters     map[string][]chan task.Result

	onComplete []func(task.Result)
	onFailed   []func(task.Result)

	shutdownOnce sync.Once
	isShutdown   bool
}

// New constructs a Scheduler. bus may be nil, in which case lifecycle events
// are not published (handlers registered via OnTaskComplete/OnTaskFailed
// still fire).
func New(cfg Config, runner Runner, log *logger.Logger, eventBus bus.EventBus) *Scheduler {
	mx, err := metrics.New()
	if err != nil {
		log.Warn("metrics instruments unavailable, continuing without them", zap.Error(err))
		mx = nil
	}
	return &Scheduler{
		cfg:         cfg,
		runner:      runner,
		log:         log.WithFields(zap.String("component", "scheduler")),
		bus:         eventBus,
		mx:          mx,
		tracer:      otel.Tracer(tracerName),
		queue:       newTaskQueue(),
		records:     make(map[string]*task.Record),
		results:     make(map[string]task.Result),
		successIDs:  make(map[string]bool),
		attempts:    make(map[string]int),
		cancelFuncs: make(map[string]context.CancelFunc),
		waiters:     make(map[string][]chan task.Result),
	}
}

// SubmitTask enqueues t and returns its id. Pumps immediately so a free slot
// is used without waiting for an external tick.
func (s *Scheduler) SubmitTask(t task.Task) (string, error) {
	s.mu.Lock()
	if s.isShutdown {
		s.mu.Unlock()
		return "", ErrAlreadyShutdown
	}
	if _, exists := s.records[t.ID]; exists {
		s.mu.Unlock()
		return "", ErrTaskExists
	}
	s.records[t.ID] = &task.Record{Task: t, Status: task.StatusQueued}
	s.mu.Unlock()

	if err := s.queue.push(t); err != nil {
		s.mu.Lock()
		delete(s.records, t.ID)
		s.mu.Unlock()
		return "", err
	}

	s.mx.AdjustQueueDepth(context.Background(), 1)
	s.log.Info("task queued", zap.String("task_id", t.ID), zap.Int("priority", t.Priority))
	s.pump()
	return t.ID, nil
}

// SubmitTasks submits every task, in order, returning their ids. A failure
// partway through still returns the ids successfully submitted so far,
// alongside the error.
func (s *Scheduler) SubmitTasks(tasks []task.Task) ([]string, error) {
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		id, err := s.SubmitTask(t)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// CancelTask removes a queued task (no event) or terminates a running one
// (fires a failure event with reason "cancelled").
func (s *Scheduler) CancelTask(id string) bool {
	s.mu.Lock()
	rec, exists := s.records[id]
	if !exists {
		s.mu.Unlock()
		return false
	}

	if s.queue.remove(id) {
		rec.Status = task.StatusCancelled
		s.mu.Unlock()
		s.mx.AdjustQueueDepth(context.Background(), -1)
		return true
	}

	cancel, running := s.cancelFuncs[id]
	s.mu.Unlock()
	if !running {
		return false
	}
	cancel()
	return true
}

// GetTaskStatus returns the status of id, or nil if unknown.
func (s *Scheduler) GetTaskStatus(id string) *task.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, exists := s.records[id]
	if !exists {
		return nil
	}
	st := rec.Status
	return &st
}

// WaitForTask blocks until id reaches a terminal state, then returns its result.
func (s *Scheduler) WaitForTask(ctx context.Context, id string) (task.Result, error) {
	s.mu.Lock()
	if res, done := s.results[id]; done {
		s.mu.Unlock()
		return res, nil
	}
	if _, exists := s.records[id]; !exists {
		s.mu.Unlock()
		return task.Result{}, ErrUnknownTask
	}
	ch := make(chan task.Result, 1)
	s.waiters[id] = append(s.waiters[id], ch)
	s.mu.Unlock()

	select {
	case res := <-ch:
		return res, nil
	case <-ctx.Done():
		return task.Result{}, ctx.Err()
	}
}

// WaitForTasks waits for every id and returns results in the same order.
func (s *Scheduler) WaitForTasks(ctx context.Context, ids []string) ([]task.Result, error) {
	results := make([]task.Result, len(ids))
	for i, id := range ids {
		res, err := s.WaitForTask(ctx, id)
		if err != nil {
			return results, err
		}
		results[i] = res
	}
	return results, nil
}

// OnTaskComplete registers a handler invoked after a task's successful
// terminal outcome.
func (s *Scheduler) OnTaskComplete(handler func(task.Result)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onComplete = append(s.onComplete, handler)
}

// OnTaskFailed registers a handler invoked after a task's final (non-retryable
// or retry-exhausted) failure.
func (s *Scheduler) OnTaskFailed(handler func(task.Result)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFailed = append(s.onFailed, handler)
}

// GetMetrics returns a defensive snapshot.
func (s *Scheduler) GetMetrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := Metrics{Queued: s.queue.len()}
	for _, rec := range s.records {
		switch rec.Status {
		case task.StatusRunning:
			m.Running++
		case task.StatusCompleted:
			m.Completed++
		case task.StatusFailed:
			m.Failed++
		case task.StatusCancelled:
			m.Cancelled++
		}
	}
	return m
}

// Shutdown clears the queue, terminates running tasks, clears results and
// handlers, and is idempotent. No event fires for tasks dropped this way.
func (s *Scheduler) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		s.isShutdown = true
		s.queue.clear()
		cancels := make([]context.CancelFunc, 0, len(s.cancelFuncs))
		for _, c := range s.cancelFuncs {
			cancels = append(cancels, c)
		}
		s.results = make(map[string]task.Result)
		s.successIDs = make(map[string]bool)
		s.onComplete = nil
		s.onFailed = nil
		waiters := s.waiters
		s.waiters = make(map[string][]chan task.Result)
		s.mu.Unlock()

		for _, cancel := range cancels {
			cancel()
		}
		for _, chans := range waiters {
			for _, ch := range chans {
				close(ch)
			}
		}
		s.log.Info("scheduler shut down")
	})
}

// pump drains ready tasks from the queue until slots fill or the queue
// exhausts. Called after every dispatch and every terminal outcome.
func (s *Scheduler) pump() {
	for {
		s.mu.Lock()
		if s.isShutdown {
			s.mu.Unlock()
			return
		}
		running := 0
		for _, rec := range s.records {
			if rec.Status == task.StatusRunning {
				running++
			}
		}
		if running >= s.cfg.MaxConcurrent {
			s.mu.Unlock()
			return
		}
		done := make(map[string]bool, len(s.successIDs))
		for id := range s.successIDs {
			done[id] = true
		}
		s.mu.Unlock()

		t, ok := s.queue.popReady(done)
		if !ok {
			return
		}
		s.mx.AdjustQueueDepth(context.Background(), -1)
		s.dispatch(t)
	}
}

func (s *Scheduler) dispatch(t task.Task) {
	s.mu.Lock()
	rec := s.records[t.ID]
	rec.Status = task.StatusRunning
	rec.StartedAt = time.Now()
	rec.Attempts = s.attempts[t.ID] + 1

	ctx, cancel := context.WithCancel(context.Background())
	if t.Config.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, t.Config.Timeout)
	}
	s.cancelFuncs[t.ID] = cancel
	s.mu.Unlock()

	ctx, span := s.tracer.Start(ctx, "task.execute", trace.WithAttributes(
		attribute.String("task.id", t.ID), attribute.String("task.type", t.Type)))

	s.mx.RecordDispatch(ctx, t.Type)
	s.publish(events.TaskStarted, t.ID, task.Result{TaskID: t.ID, Success: true})
	s.log.Info("task dispatched", zap.String("task_id", t.ID), zap.Int("attempt", rec.Attempts))

	go func() {
		result := s.runner.Run(ctx, t)
		cancelled := errors.Is(ctx.Err(), context.Canceled)
		cancel()
		if !result.Success {
			span.RecordError(errors.New(result.Error))
		}
		span.End()
		s.onAttemptDone(t, result, cancelled)
	}()
}

func (s *Scheduler) onAttemptDone(t task.Task, result task.Result, cancelled bool) {
	s.mu.Lock()
	rec := s.records[t.ID]
	delete(s.cancelFuncs, t.ID)

	if result.Success {
		rec.Status = task.StatusCompleted
		rec.CompletedAt = time.Now()
		s.results[t.ID] = result
		s.successIDs[t.ID] = true
		delete(s.attempts, t.ID)
		waiters := s.waiters[t.ID]
		delete(s.waiters, t.ID)
		s.mu.Unlock()

		s.log.Info("task completed", zap.String("task_id", t.ID))
		s.publish(events.TaskCompleted, t.ID, result)
		for _, h := range s.snapshotHandlers(true) {
			h(result)
		}
		notify(waiters, result)
		s.pump()
		return
	}

	if cancelled {
		rec.Status = task.StatusCancelled
		rec.CompletedAt = time.Now()
		rec.LastError = "cancelled"
		result.Error = "cancelled"
		s.results[t.ID] = result
		delete(s.attempts, t.ID)
		waiters := s.waiters[t.ID]
		delete(s.waiters, t.ID)
		s.mu.Unlock()

		s.log.Info("task cancelled", zap.String("task_id", t.ID))
		s.publish(events.TaskCancelled, t.ID, result)
		for _, h := range s.snapshotHandlers(false) {
			h(result)
		}
		notify(waiters, result)
		s.pump()
		return
	}

	maxRetries := t.Config.MaxRetries
	if maxRetries < 0 {
		maxRetries = s.cfg.MaxRetries
	}
	attempt := s.attempts[t.ID] + 1
	rec.LastError = result.Error

	if attempt < maxRetries+1 {
		s.attempts[t.ID] = attempt
		rec.Status = task.StatusQueued
		s.mu.Unlock()

		s.log.Warn("task failed, retrying", zap.String("task_id", t.ID), zap.Int("attempt", attempt), zap.String("error", result.Error))
		s.mx.RecordRetry(context.Background(), t.Type)
		s.mx.AdjustQueueDepth(context.Background(), 1)
		_ = s.queue.pushFront(t)
		s.pump()
		return
	}

	rec.Status = task.StatusFailed
	rec.CompletedAt = time.Now()
	s.results[t.ID] = result
	delete(s.attempts, t.ID)
	waiters := s.waiters[t.ID]
	delete(s.waiters, t.ID)
	s.mu.Unlock()

	s.mx.RecordFailure(context.Background(), t.Type)
	s.log.Error("task failed permanently", zap.String("task_id", t.ID), zap.String("error", result.Error))
	s.publish(events.TaskFailed, t.ID, result)
	for _, h := range s.snapshotHandlers(false) {
		h(result)
	}
	notify(waiters, result)
	s.pump()
}

func (s *Scheduler) snapshotHandlers(success bool) []func(task.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if success {
		out := make([]func(task.Result), len(s.onComplete))
		copy(out, s.onComplete)
		return out
	}
	out := make([]func(task.Result), len(s.onFailed))
	copy(out, s.onFailed)
	return out
}

func notify(chans []chan task.Result, result task.Result) {
	for _, ch := range chans {
		ch <- result
		close(ch)
	}
}
