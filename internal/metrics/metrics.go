// Package metrics wires the engine's OpenTelemetry instruments: task
// dispatch/retry counters, queue depth, and circuit-breaker state, all
// no-ops until the caller configures a real MeterProvider via otel.SetMeterProvider
// (matching go.opentelemetry.io/otel's own noop-by-default behavior).
package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/kandev/agentengine"

// Instruments holds every instrument the engine emits to.
type Instruments struct {
	TasksDispatched metric.Int64Counter
	TasksRetried    metric.Int64Counter
	TasksFailed     metric.Int64Counter
	QueueDepth      metric.Int64UpDownCounter
	CircuitBreaker  metric.Int64Gauge
}

// New creates Instruments bound to the currently configured global
// MeterProvider (otel.GetMeterProvider()). With no provider configured this
// resolves to OTel's noop meter, so every call below is a safe no-op.
func New() (*Instruments, error) {
	return newWithMeter(otel.GetMeterProvider().Meter(scopeName))
}

// newWithMeter builds Instruments against an explicit meter, letting tests
// bind a manual reader instead of the process-global provider.
func newWithMeter(meter metric.Meter) (*Instruments, error) {
	dispatched, err := meter.Int64Counter("tasks_dispatched_total",
		metric.WithDescription("Tasks handed to the scheduling engine's runner"))
	if err != nil {
		return nil, err
	}
	retried, err := meter.Int64Counter("tasks_retried_total",
		metric.WithDescription("Task attempts retried by the resilience layer"))
	if err != nil {
		return nil, err
	}
	failed, err := meter.Int64Counter("tasks_failed_total",
		metric.WithDescription("Tasks that reached a terminal failed state"))
	if err != nil {
		return nil, err
	}
	depth, err := meter.Int64UpDownCounter("queue_depth",
		metric.WithDescription("Tasks currently queued, not yet dispatched"))
	if err != nil {
		return nil, err
	}
	breaker, err := meter.Int64Gauge("circuit_breaker_state",
		metric.WithDescription("0=closed 1=half_open 2=open, per task type"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		TasksDispatched: dispatched,
		TasksRetried:    retried,
		TasksFailed:     failed,
		QueueDepth:      depth,
		CircuitBreaker:  breaker,
	}, nil
}

// RecordDispatch increments the dispatched counter for taskType.
func (i *Instruments) RecordDispatch(ctx context.Context, taskType string) {
	if i == nil {
		return
	}
	i.TasksDispatched.Add(ctx, 1, metric.WithAttributes(typeAttr(taskType)))
}

// RecordRetry increments the retried counter for taskType.
func (i *Instruments) RecordRetry(ctx context.Context, taskType string) {
	if i == nil {
		return
	}
	i.TasksRetried.Add(ctx, 1, metric.WithAttributes(typeAttr(taskType)))
}

// RecordFailure increments the failed counter for taskType.
func (i *Instruments) RecordFailure(ctx context.Context, taskType string) {
	if i == nil {
		return
	}
	i.TasksFailed.Add(ctx, 1, metric.WithAttributes(typeAttr(taskType)))
}

// AdjustQueueDepth applies delta (positive on enqueue, negative on dequeue).
func (i *Instruments) AdjustQueueDepth(ctx context.Context, delta int64) {
	if i == nil {
		return
	}
	i.QueueDepth.Add(ctx, delta)
}

// RecordBreakerState publishes the current breaker state for taskType as a
// gauge value (0=closed, 1=half_open, 2=open).
func (i *Instruments) RecordBreakerState(ctx context.Context, taskType string, state int64) {
	if i == nil {
		return
	}
	i.CircuitBreaker.Record(ctx, state, metric.WithAttributes(typeAttr(taskType)))
}

func typeAttr(taskType string) attribute.KeyValue {
	return attribute.String("task_type", taskType)
}
