// Package executor defines the unified, protocol-agnostic operations every
// agent executor implements (§4.4), plus the capability descriptor used for
// feature gating across the system (§6).
package executor

import (
	"context"

	"github.com/kandev/agentengine/internal/event"
	"github.com/kandev/agentengine/internal/process"
	"github.com/kandev/agentengine/internal/task"
)

// Protocol tags the wire format an executor speaks (§4.4, §6).
type Protocol string

const (
	ProtocolStreamJSON Protocol = "stream-json"
	ProtocolJSONL      Protocol = "jsonl"
	ProtocolACP        Protocol = "acp"
	ProtocolCopilot    Protocol = "copilot"
	ProtocolCustom     Protocol = "custom"
)

// Capabilities is the descriptor returned by getCapabilities(); it drives
// feature gating across the system. Calls to unsupported operations fail
// with an explicit error rather than silently no-opping (§6).
type Capabilities struct {
	SupportsSessionResume        bool
	RequiresSetup                bool
	SupportsApprovals            bool
	SupportsMcp                  bool
	Protocol                     Protocol
	SupportsMidExecutionMessages bool
}

// SpawnedChild is the handle returned by executeTask/resumeTask: the
// underlying process plus an optional signal the caller should watch for an
// abnormal exit.
type SpawnedChild struct {
	Process    *process.ManagedProcess
	ExitSignal <-chan struct{}
}

// ApprovalDecision is the outcome of a permission request (§4.4).
type ApprovalDecision string

const (
	ApprovalApproved ApprovalDecision = "approved"
	ApprovalDenied   ApprovalDecision = "denied"
	ApprovalTimeout  ApprovalDecision = "timeout"
)

// ApprovalRequest describes one permission prompt raised by the agent.
type ApprovalRequest struct {
	ToolCallID string
	ToolName   string
	Options    []string
}

// ApprovalService is a capability slot: at most one is held by an executor.
// Its absence means auto-approve (§9).
type ApprovalService interface {
	RequestApproval(ctx context.Context, req ApprovalRequest) (ApprovalDecision, error)
}

// ErrUnsupported is returned by operations an executor's capabilities don't
// support (e.g. resumeTask without SupportsSessionResume).
var ErrUnsupported = unsupportedError{}

type unsupportedError struct{}

func (unsupportedError) Error() string { return "executor: operation not supported by this agent" }

// Executor is the unified operation set every protocol-specific executor
// implements (§4.4).
type Executor interface {
	ExecuteTask(ctx context.Context, t task.Task) (SpawnedChild, error)
	ResumeTask(ctx context.Context, t task.Task, sessionID string) (SpawnedChild, error)

	// SendMessage and Interrupt are optional, capability-gated operations;
	// implementations that don't support them return ErrUnsupported.
	SendMessage(ctx context.Context, child SpawnedChild, text string) error
	Interrupt(ctx context.Context, child SpawnedChild) error

	NormalizeOutput(child SpawnedChild, workDir string) (<-chan event.NormalizedEntry, error)

	GetCapabilities() Capabilities
	CheckAvailability(ctx context.Context) bool
	SetApprovalService(svc ApprovalService)
}

// AutoApprove implements ApprovalService by always approving the first
// option (§4.4: "When unset, requestApproval auto-approves").
type AutoApprove struct{}

func (AutoApprove) RequestApproval(ctx context.Context, req ApprovalRequest) (ApprovalDecision, error) {
	return ApprovalApproved, nil
}
