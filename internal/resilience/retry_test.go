package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryableBySubstring(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.True(t, p.IsRetryable(0, "dial tcp: connection refused ECONNREFUSED"))
	assert.True(t, p.IsRetryable(0, "request timeout exceeded"))
	assert.False(t, p.IsRetryable(0, "invalid prompt"))
}

func TestIsRetryableByExitCode(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.True(t, p.IsRetryable(1, ""))
	assert.False(t, p.IsRetryable(2, ""))
}

func TestDelayForFixed(t *testing.T) {
	p := RetryPolicy{Backoff: BackoffFixed, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Jitter: false}
	assert.Equal(t, 100*time.Millisecond, p.DelayFor(1))
	assert.Equal(t, 100*time.Millisecond, p.DelayFor(5))
}

func TestDelayForExponentialCapsAtMax(t *testing.T) {
	p := RetryPolicy{Backoff: BackoffExponential, BaseDelay: time.Second, MaxDelay: 4 * time.Second, Jitter: false}
	assert.Equal(t, time.Second, p.DelayFor(1))
	assert.Equal(t, 2*time.Second, p.DelayFor(2))
	assert.Equal(t, 4*time.Second, p.DelayFor(3))
	assert.Equal(t, 4*time.Second, p.DelayFor(10))
}

func TestDelayForJitterStaysInBounds(t *testing.T) {
	p := RetryPolicy{Backoff: BackoffFixed, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Jitter: true}
	for i := 0; i < 20; i++ {
		d := p.DelayFor(1)
		assert.True(t, d >= 0 && d <= 100*time.Millisecond)
	}
}
