package main

import (
	"fmt"
	"os"

	"github.com/kandev/agentengine/internal/agent/adapter"
	"github.com/kandev/agentengine/internal/process"
)

// echoAdapter is a demo adapter.Adapter wired to the mock-agent binary; it
// exists so cmd/engine can exercise a full task run without a real agent
// binary installed.
type echoAdapter struct {
	binaryPath string
}

func newEchoAdapter(binaryPath string) *echoAdapter {
	return &echoAdapter{binaryPath: binaryPath}
}

func (a *echoAdapter) Metadata() adapter.Metadata {
	return adapter.Metadata{
		Name:                     "echo",
		DisplayName:              "Echo (demo)",
		SupportedModes:           []adapter.Mode{"code"},
		SupportsStreaming:        true,
		SupportsStructuredOutput: true,
	}
}

func (a *echoAdapter) BuildProcessConfig(agentConfig adapter.AgentConfig) (process.Config, error) {
	if errs := a.ValidateConfig(agentConfig); len(errs) > 0 {
		return process.Config{}, fmt.Errorf("echo adapter: %v", errs[0])
	}
	return process.Config{
		Executable: a.binaryPath,
		Env:        os.Environ(),
	}, nil
}

func (a *echoAdapter) ValidateConfig(agentConfig adapter.AgentConfig) []error {
	var errs []error
	if _, err := os.Stat(a.binaryPath); err != nil {
		errs = append(errs, fmt.Errorf("mock-agent binary not found at %q: %w", a.binaryPath, err))
	}
	return errs
}

func (a *echoAdapter) GetDefaultConfig() adapter.AgentConfig {
	return adapter.AgentConfig{}
}

// copilotAdapter builds the argv for a Copilot CLI running in --server mode
// (internal/agent/copilot). The binary is located via PATH lookup, same as a
// real deployment would find any agent CLI it doesn't vendor.
type copilotAdapter struct {
	binaryPath string
}

func newCopilotAdapter(binaryPath string) *copilotAdapter {
	return &copilotAdapter{binaryPath: binaryPath}
}

func (a *copilotAdapter) Metadata() adapter.Metadata {
	return adapter.Metadata{
		Name:                     "copilot",
		DisplayName:              "GitHub Copilot CLI",
		SupportedModes:           []adapter.Mode{"code", "chat"},
		SupportsStreaming:        true,
		SupportsStructuredOutput: true,
	}
}

func (a *copilotAdapter) BuildProcessConfig(agentConfig adapter.AgentConfig) (process.Config, error) {
	if errs := a.ValidateConfig(agentConfig); len(errs) > 0 {
		return process.Config{}, fmt.Errorf("copilot adapter: %v", errs[0])
	}
	args := []string{"--banner"}
	if agentConfig["server"] == true {
		args = append(args, "--server")
	}
	return process.Config{
		Executable: a.binaryPath,
		Args:       args,
		Env:        os.Environ(),
	}, nil
}

func (a *copilotAdapter) ValidateConfig(agentConfig adapter.AgentConfig) []error {
	var errs []error
	if a.binaryPath == "" {
		errs = append(errs, fmt.Errorf("copilot CLI not found on PATH"))
	}
	return errs
}

func (a *copilotAdapter) GetDefaultConfig() adapter.AgentConfig {
	return adapter.AgentConfig{"server": true}
}
