// Package config provides configuration management for the engine.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for the engine.
type Config struct {
	Process    ProcessConfig    `mapstructure:"process"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Resilience ResilienceConfig `mapstructure:"resilience"`
	Workflow   WorkflowConfig   `mapstructure:"workflow"`
	Session    SessionConfig    `mapstructure:"session"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Events     EventsConfig     `mapstructure:"events"`
	Docker     DockerConfig     `mapstructure:"docker"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ProcessConfig holds Process Manager defaults (§4.1).
type ProcessConfig struct {
	MaxSlots       int `mapstructure:"maxSlots"`
	DefaultTimeout int `mapstructure:"defaultTimeout"` // seconds, 0 = no timeout
	IdleTimeout    int `mapstructure:"idleTimeout"`    // seconds; accepted but not enforced by the process manager
}

// SchedulerConfig holds Scheduling Engine defaults (§4.2).
type SchedulerConfig struct {
	MaxConcurrent int `mapstructure:"maxConcurrent"`
	MaxRetries    int `mapstructure:"maxRetries"`
}

// ResilienceConfig holds the default RetryPolicy and CircuitBreaker settings (§4.5, §6).
type ResilienceConfig struct {
	MaxAttempts           int      `mapstructure:"maxAttempts"`
	BackoffKind           string   `mapstructure:"backoffKind"` // fixed | exponential
	BaseDelayMs           int      `mapstructure:"baseDelayMs"`
	MaxDelayMs            int      `mapstructure:"maxDelayMs"`
	Jitter                bool     `mapstructure:"jitter"`
	RetryableErrors       []string `mapstructure:"retryableErrors"`
	RetryableExitCodes    []int    `mapstructure:"retryableExitCodes"`
	FailureThreshold      int      `mapstructure:"failureThreshold"`
	SuccessThreshold      int      `mapstructure:"successThreshold"`
	BreakerTimeoutSeconds int      `mapstructure:"breakerTimeoutSeconds"`
}

// WorkflowConfig holds Linear Orchestrator defaults (§4.6).
type WorkflowConfig struct {
	CheckpointIntervalSteps int  `mapstructure:"checkpointIntervalSteps"`
	ContinueOnStepFailure   bool `mapstructure:"continueOnStepFailure"`
}

// SessionConfig holds session-store defaults (§4.4.d, §6).
type SessionConfig struct {
	Namespace     string `mapstructure:"namespace"`
	BaseDir       string `mapstructure:"baseDir"` // empty selects <home>/.agentengine/sessions
	ResumeReplayN int    `mapstructure:"resumeReplayN"`
}

// NATSConfig holds NATS messaging configuration, used only when set (otherwise
// the in-memory event bus is used).
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// EventsConfig holds event bus namespace configuration.
type EventsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

// DockerConfig holds Docker client configuration for the optional containerized
// process-launch path (internal/process/dockerproc).
type DockerConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	APIVersion     string `mapstructure:"apiVersion"`
	DefaultNetwork string `mapstructure:"defaultNetwork"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// BreakerTimeout returns the breaker's open-state cooldown as a time.Duration.
func (r *ResilienceConfig) BreakerTimeout() time.Duration {
	return time.Duration(r.BreakerTimeoutSeconds) * time.Second
}

// setDefaults configures default values matching §6's stated defaults.
func setDefaults(v *viper.Viper) {
	v.SetDefault("process.maxSlots", 4)
	v.SetDefault("process.defaultTimeout", 0)
	v.SetDefault("process.idleTimeout", 0)

	v.SetDefault("scheduler.maxConcurrent", 4)
	v.SetDefault("scheduler.maxRetries", 0)

	v.SetDefault("resilience.maxAttempts", 3)
	v.SetDefault("resilience.backoffKind", "exponential")
	v.SetDefault("resilience.baseDelayMs", 1000)
	v.SetDefault("resilience.maxDelayMs", 30000)
	v.SetDefault("resilience.jitter", true)
	v.SetDefault("resilience.retryableErrors", []string{"timeout", "ECONNREFUSED"})
	v.SetDefault("resilience.retryableExitCodes", []int{1})
	v.SetDefault("resilience.failureThreshold", 5)
	v.SetDefault("resilience.successThreshold", 2)
	v.SetDefault("resilience.breakerTimeoutSeconds", 60)

	v.SetDefault("workflow.checkpointIntervalSteps", 1)
	v.SetDefault("workflow.continueOnStepFailure", false)

	v.SetDefault("session.namespace", "default")
	v.SetDefault("session.baseDir", "")
	v.SetDefault("session.resumeReplayN", 20)

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "agentengine-client")
	v.SetDefault("nats.maxReconnects", 10)

	v.SetDefault("events.namespace", "")

	v.SetDefault("docker.enabled", false)
	v.SetDefault("docker.apiVersion", "1.41")
	v.SetDefault("docker.defaultNetwork", "agentengine-network")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables, config file, and
// defaults. Environment variables use the prefix AGENTENGINE_.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("AGENTENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/agentengine/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks invariants the rest of the engine relies on.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Process.MaxSlots <= 0 {
		errs = append(errs, "process.maxSlots must be positive")
	}
	if cfg.Scheduler.MaxConcurrent <= 0 {
		errs = append(errs, "scheduler.maxConcurrent must be positive")
	}
	if cfg.Resilience.MaxAttempts <= 0 {
		errs = append(errs, "resilience.maxAttempts must be positive")
	}
	if cfg.Resilience.BackoffKind != "fixed" && cfg.Resilience.BackoffKind != "exponential" {
		errs = append(errs, "resilience.backoffKind must be one of: fixed, exponential")
	}
	if cfg.Resilience.FailureThreshold <= 0 {
		errs = append(errs, "resilience.failureThreshold must be positive")
	}
	if cfg.Resilience.SuccessThreshold <= 0 {
		errs = append(errs, "resilience.successThreshold must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text, console")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
