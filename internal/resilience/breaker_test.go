package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := newBreaker(BreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, OpenTimeout: time.Hour})

	assert.True(t, b.canExecute(time.Now()))
	b.recordFailure(time.Now())
	assert.Equal(t, StateClosed, b.currentState())

	b.recordFailure(time.Now())
	assert.Equal(t, StateOpen, b.currentState())
	assert.False(t, b.canExecute(time.Now()))
}

func TestBreakerHalfOpenAfterTimeout(t *testing.T) {
	b := newBreaker(BreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, OpenTimeout: time.Millisecond})
	b.recordFailure(time.Now())
	assert.Equal(t, StateOpen, b.currentState())

	later := time.Now().Add(10 * time.Millisecond)
	assert.True(t, b.canExecute(later))
	assert.Equal(t, StateHalfOpen, b.currentState())

	// A second caller while the probe is outstanding is rejected.
	assert.False(t, b.canExecute(later))
}

func TestBreakerClosesAfterSuccessThreshold(t *testing.T) {
	b := newBreaker(BreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, OpenTimeout: time.Millisecond})
	b.recordFailure(time.Now())
	later := time.Now().Add(10 * time.Millisecond)
	require := assert.New(t)
	require.True(b.canExecute(later))

	b.recordSuccess()
	require.Equal(StateHalfOpen, b.currentState())

	require.True(b.canExecute(later))
	b.recordSuccess()
	require.Equal(StateClosed, b.currentState())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := newBreaker(BreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, OpenTimeout: time.Millisecond})
	b.recordFailure(time.Now())
	later := time.Now().Add(10 * time.Millisecond)
	assert.True(t, b.canExecute(later))
	b.recordFailure(later)
	assert.Equal(t, StateOpen, b.currentState())
}

func TestBreakersRegistryIsolatesTaskTypes(t *testing.T) {
	r := NewBreakers(BreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, OpenTimeout: time.Hour})
	r.RecordResult("issue", false)
	assert.Equal(t, StateOpen, r.State("issue"))
	assert.Equal(t, StateClosed, r.State("spec"))
}
