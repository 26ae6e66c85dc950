package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := LoadWithPath(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Process.MaxSlots)
	assert.Equal(t, 4, cfg.Scheduler.MaxConcurrent)
	assert.Equal(t, 3, cfg.Resilience.MaxAttempts)
	assert.Equal(t, "exponential", cfg.Resilience.BackoffKind)
	assert.True(t, cfg.Resilience.Jitter)
	assert.Equal(t, 20, cfg.Session.ResumeReplayN)
	assert.False(t, cfg.Docker.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadReadsEnvironmentOverride(t *testing.T) {
	os.Setenv("AGENTENGINE_PROCESS_MAXSLOTS", "9")
	defer os.Unsetenv("AGENTENGINE_PROCESS_MAXSLOTS")

	cfg, err := LoadWithPath(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Process.MaxSlots)
}

func TestValidateRejectsNonPositiveMaxSlots(t *testing.T) {
	cfg := &Config{
		Process:    ProcessConfig{MaxSlots: 0},
		Scheduler:  SchedulerConfig{MaxConcurrent: 1},
		Resilience: ResilienceConfig{MaxAttempts: 1, BackoffKind: "fixed", FailureThreshold: 1, SuccessThreshold: 1},
		Logging:    LoggingConfig{Level: "info", Format: "json"},
	}
	err := validate(cfg)
	assert.ErrorContains(t, err, "process.maxSlots")
}

func TestValidateRejectsBadBackoffKind(t *testing.T) {
	cfg := &Config{
		Process:    ProcessConfig{MaxSlots: 1},
		Scheduler:  SchedulerConfig{MaxConcurrent: 1},
		Resilience: ResilienceConfig{MaxAttempts: 1, BackoffKind: "linear", FailureThreshold: 1, SuccessThreshold: 1},
		Logging:    LoggingConfig{Level: "info", Format: "json"},
	}
	err := validate(cfg)
	assert.ErrorContains(t, err, "backoffKind")
}

func TestValidateRejectsBadLoggingLevel(t *testing.T) {
	cfg := &Config{
		Process:    ProcessConfig{MaxSlots: 1},
		Scheduler:  SchedulerConfig{MaxConcurrent: 1},
		Resilience: ResilienceConfig{MaxAttempts: 1, BackoffKind: "fixed", FailureThreshold: 1, SuccessThreshold: 1},
		Logging:    LoggingConfig{Level: "verbose", Format: "json"},
	}
	err := validate(cfg)
	assert.ErrorContains(t, err, "logging.level")
}

func TestBreakerTimeoutConvertsSecondsToDuration(t *testing.T) {
	r := ResilienceConfig{BreakerTimeoutSeconds: 45}
	assert.Equal(t, 45*time.Second, r.BreakerTimeout())
}
