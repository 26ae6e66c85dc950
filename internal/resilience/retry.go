package resilience

import (
	"math/rand"
	"strings"
	"time"
)

// BackoffKind selects how RetryPolicy spaces attempts.
type BackoffKind string

const (
	BackoffFixed       BackoffKind = "fixed"
	BackoffExponential BackoffKind = "exponential"
)

// RetryPolicy governs how many attempts a task gets and how long to wait
// between them (§4.5).
type RetryPolicy struct {
	MaxAttempts int
	Backoff     BackoffKind
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool // full jitter, per AWS's "full jitter" backoff shape

	// RetryableExitCodes and RetryableSubstrings classify a failed attempt
	// as retryable; an attempt that matches neither is terminal regardless
	// of attempts remaining.
	RetryableExitCodes  []int
	RetryableSubstrings []string
}

// DefaultRetryPolicy matches the defaults named in §4.5.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:         3,
		Backoff:             BackoffExponential,
		BaseDelay:           time.Second,
		MaxDelay:            30 * time.Second,
		Jitter:              true,
		RetryableExitCodes:  []int{1},
		RetryableSubstrings: []string{"timeout", "ECONNREFUSED"},
	}
}

// IsRetryable reports whether a failed attempt with the given exit code and
// error text qualifies for another attempt.
func (p RetryPolicy) IsRetryable(exitCode int, errText string) bool {
	for _, c := range p.RetryableExitCodes {
		if c == exitCode {
			return true
		}
	}
	lower := strings.ToLower(errText)
	for _, s := range p.RetryableSubstrings {
		if s != "" && strings.Contains(lower, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

// DelayFor returns the backoff delay before attempt number n (1-indexed: the
// delay that precedes attempt n+1).
func (p RetryPolicy) DelayFor(n int) time.Duration {
	var d time.Duration
	switch p.Backoff {
	case BackoffFixed:
		d = p.BaseDelay
	default: // exponential
		d = p.BaseDelay
		for i := 1; i < n; i++ {
			d *= 2
			if d >= p.MaxDelay {
				d = p.MaxDelay
				break
			}
		}
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter && d > 0 {
		d = time.Duration(rand.Int63n(int64(d) + 1))
	}
	return d
}

// ExecutionAttempt records the outcome of one retry attempt (§4.5).
type ExecutionAttempt struct {
	AttemptNumber int
	StartedAt     time.Time
	Success       bool
	Error         string
	WillRetry     bool
}

// ResilientExecutionResult aggregates every attempt made for one task
// execution, plus whether the breaker tripped instead of running at all.
type ResilientExecutionResult struct {
	Success                 bool
	Attempts                []ExecutionAttempt
	CircuitBreakerTriggered bool
	FinalError              string
}
