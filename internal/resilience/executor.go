package resilience

import (
	"context"
	"time"

	"github.com/kandev/agentengine/internal/common/logger"
	"github.com/kandev/agentengine/internal/task"
	"go.uber.org/zap"
)

// Runner executes one task attempt; implemented by the scheduling engine's
// underlying process-manager-backed runner. Resilient wraps a Runner to add
// retries and circuit breaking without either side knowing about the other.
type Runner interface {
	Run(ctx context.Context, t task.Task) task.Result
}

// Resilient wraps an inner Runner with retry-with-backoff and a per-task-type
// circuit breaker (§4.5). It itself satisfies Runner, so it can be wired in
// wherever a scheduler.Runner is expected.
type Resilient struct {
	inner    Runner
	policy   RetryPolicy
	breakers *Breakers
	log      *logger.Logger
}

// New constructs a Resilient runner wrapping inner.
func New(inner Runner, policy RetryPolicy, breakerCfg BreakerConfig, log *logger.Logger) *Resilient {
	return &Resilient{inner: inner, policy: policy, breakers: NewBreakers(breakerCfg), log: log}
}

// Run executes t, retrying per policy and honoring the breaker for t.Type.
// The returned task.Result reflects only the final attempt; call RunDetailed
// for the full per-attempt ledger.
func (r *Resilient) Run(ctx context.Context, t task.Task) task.Result {
	result, _ := r.RunDetailed(ctx, t)
	return result
}

// RunDetailed executes t and returns both the task.Result the scheduler
// cares about and the full ResilientExecutionResult ledger (§4.5).
func (r *Resilient) RunDetailed(ctx context.Context, t task.Task) (task.Result, ResilientExecutionResult) {
	if !r.breakers.CanExecute(t.Type) {
		r.log.Warn("circuit breaker open, skipping execution", zap.String("taskType", t.Type), zap.String("taskId", t.ID))
		msg := "circuit breaker open for task type " + t.Type
		result := task.Result{TaskID: t.ID, Success: false, Error: msg, CircuitBreakerTriggered: true}
		return result, ResilientExecutionResult{CircuitBreakerTriggered: true, FinalError: msg}
	}

	maxAttempts := r.policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var (
		attempts []ExecutionAttempt
		last     task.Result
	)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		startedAt := time.Now()
		last = r.inner.Run(ctx, t)

		if last.Success {
			r.breakers.RecordResult(t.Type, true)
			attempts = append(attempts, ExecutionAttempt{
				AttemptNumber: attempt,
				StartedAt:     startedAt,
				Success:       true,
			})
			return last, ResilientExecutionResult{Success: true, Attempts: attempts}
		}

		r.breakers.RecordResult(t.Type, false)

		exitCode := exitCodeFromResult(last)
		retryable := r.policy.IsRetryable(exitCode, last.Error)
		willRetry := retryable && attempt < maxAttempts && ctx.Err() == nil

		attempts = append(attempts, ExecutionAttempt{
			AttemptNumber: attempt,
			StartedAt:     startedAt,
			Success:       false,
			Error:         last.Error,
			WillRetry:     willRetry,
		})

		if !willRetry {
			break
		}

		delay := r.policy.DelayFor(attempt)
		r.log.Info("retrying failed task",
			zap.String("taskId", t.ID), zap.Int("attempt", attempt), zap.Duration("delay", delay))

		select {
		case <-ctx.Done():
			last.Error = ctx.Err().Error()
			attempts[len(attempts)-1].Error = last.Error
			attempts[len(attempts)-1].WillRetry = false
			return last, ResilientExecutionResult{Success: false, Attempts: attempts, FinalError: last.Error}
		case <-time.After(delay):
		}
	}

	return last, ResilientExecutionResult{Success: false, Attempts: attempts, FinalError: last.Error}
}

// exitCodeFromResult reads the exit code an underlying process runner
// recorded on the result; zero (non-matching against most retryable-code
// policies) when the runner behind t never launched a process.
func exitCodeFromResult(r task.Result) int {
	return r.ExitCode
}
