// Package resilience implements the retry and circuit-breaking layer that
// wraps task execution (§4.5): a per-task-type circuit breaker guards
// against hammering a consistently failing agent, and a retry policy with
// backoff governs how individual attempts are spaced.
package resilience

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker's state machine position.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// BreakerConfig tunes a single circuit breaker instance.
type BreakerConfig struct {
	FailureThreshold int           // consecutive failures before opening
	SuccessThreshold int           // consecutive half-open successes before closing
	OpenTimeout      time.Duration // how long the breaker stays open before probing
}

// DefaultBreakerConfig matches the defaults named in §4.5.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      60 * time.Second,
	}
}

// breaker is a single circuit breaker for one task type.
type breaker struct {
	mu sync.Mutex

	cfg BreakerConfig

	state       BreakerState
	failures    int
	successes   int
	openedAt    time.Time
	halfOpenHit bool
}

func newBreaker(cfg BreakerConfig) *breaker {
	return &breaker{cfg: cfg, state: StateClosed}
}

// canExecute reports whether an attempt may proceed, and transitions
// open -> half-open once cfg.OpenTimeout has elapsed (§4.5).
func (b *breaker) canExecute(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if now.Sub(b.openedAt) < b.cfg.OpenTimeout {
			return false
		}
		b.state = StateHalfOpen
		b.halfOpenHit = true
		b.successes = 0
		return true
	case StateHalfOpen:
		// Only the first probe after the timeout elapsed is allowed through;
		// subsequent callers wait for that probe to resolve.
		if b.halfOpenHit {
			return false
		}
		b.halfOpenHit = true
		return true
	default:
		return true
	}
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
		}
		b.halfOpenHit = false
	case StateClosed:
		b.failures = 0
	}
}

func (b *breaker) recordFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.state = StateOpen
		b.openedAt = now
		b.halfOpenHit = false
		b.successes = 0
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.state = StateOpen
			b.openedAt = now
		}
	}
}

func (b *breaker) currentState() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Breakers is a registry of circuit breakers keyed by task type, each with
// independent state (§4.5: "circuit breaker keyed by task-type").
type Breakers struct {
	mu     sync.Mutex
	cfg    BreakerConfig
	byType map[string]*breaker
}

// NewBreakers constructs a registry using cfg for every task type it creates
// a breaker for.
func NewBreakers(cfg BreakerConfig) *Breakers {
	return &Breakers{cfg: cfg, byType: make(map[string]*breaker)}
}

func (r *Breakers) get(taskType string) *breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byType[taskType]
	if !ok {
		b = newBreaker(r.cfg)
		r.byType[taskType] = b
	}
	return b
}

// CanExecute reports whether taskType's breaker currently admits an attempt.
func (r *Breakers) CanExecute(taskType string) bool {
	return r.get(taskType).canExecute(time.Now())
}

// RecordResult feeds an attempt outcome back into taskType's breaker.
func (r *Breakers) RecordResult(taskType string, success bool) {
	b := r.get(taskType)
	if success {
		b.recordSuccess()
	} else {
		b.recordFailure(time.Now())
	}
}

// State reports taskType's current breaker state, mainly for diagnostics.
func (r *Breakers) State(taskType string) BreakerState {
	return r.get(taskType).currentState()
}
