// Package task defines the unit of work submitted to the engine and its
// engine-internal mutable wrapper.
package task

import "time"

// Status is a TaskRecord's lifecycle state.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Config carries per-task execution settings.
type Config struct {
	Timeout     time.Duration
	MaxRetries  int
	Env         map[string]string
	Metadata    map[string]any
}

// Task is the immutable unit of work a caller submits to the engine.
type Task struct {
	ID           string
	Type         string // open set: "issue", "spec", "custom", ...
	Prompt       string
	WorkDir      string
	Priority     int
	Dependencies []string
	CreatedAt    time.Time
	Config       Config
}

// Result is the terminal outcome of a task's execution.
type Result struct {
	TaskID  string
	Success bool
	Output  string
	Error   string
	// ExitCode is the underlying process's exit code, when the runner that
	// produced this Result launched one. Zero when not applicable.
	ExitCode int
	// CircuitBreakerTriggered is set by the resilience layer when a task was
	// short-circuited without ever reaching the scheduling engine.
	CircuitBreakerTriggered bool
}

// Record is the engine-internal, mutable wrapper around a Task.
//
// Invariant: a task is, at any instant, in exactly one of the queue, the
// running set, or the terminal results map — never two.
type Record struct {
	Task        Task
	Status      Status
	Attempts    int
	StartedAt   time.Time
	CompletedAt time.Time
	ProcessID   string
	LastError   string
}
