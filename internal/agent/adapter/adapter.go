// Package adapter defines the per-agent config/argv builder and validator
// (§4.3).
package adapter

import "github.com/kandev/agentengine/internal/process"

// Mode is one operating mode an agent supports (e.g. "code", "chat").
type Mode string

// Metadata is the static description every adapter carries.
type Metadata struct {
	Name                     string
	DisplayName              string
	SupportedModes           []Mode
	SupportsStreaming        bool
	SupportsStructuredOutput bool
}

// AgentConfig is the caller-supplied, partial configuration for one agent
// invocation; adapters interpret its keys according to their own schema.
type AgentConfig map[string]any

// Adapter builds and validates the launch configuration for one agent.
type Adapter interface {
	Metadata() Metadata

	// BuildProcessConfig turns agentConfig into a ready-to-spawn process.Config.
	BuildProcessConfig(agentConfig AgentConfig) (process.Config, error)

	// ValidateConfig accumulates every validation error found; it never stops
	// at the first one, so the caller can report all of them together (§4.3).
	ValidateConfig(agentConfig AgentConfig) []error

	// GetDefaultConfig returns the adapter's own baseline, which callers may
	// overlay with their own overrides.
	GetDefaultConfig() AgentConfig
}

// ConflictRule encodes an "incompatible flags" constraint checked during
// validation (§4.3: "flag A is incompatible with flag B").
type ConflictRule struct {
	FlagA, FlagB string
}

// CheckConflicts accumulates one error per violated rule found in cfg.
func CheckConflicts(cfg AgentConfig, rules []ConflictRule) []error {
	var errs []error
	for _, r := range rules {
		_, hasA := cfg[r.FlagA]
		_, hasB := cfg[r.FlagB]
		if hasA && hasB {
			errs = append(errs, conflictError{r})
		}
	}
	return errs
}

type conflictError struct{ rule ConflictRule }

func (e conflictError) Error() string {
	return "flag " + e.rule.FlagA + " is incompatible with flag " + e.rule.FlagB
}
