// Package acp holds reusable, protocol-shaped DTOs for the bidirectional
// ACP-style RPC executor (§4.4.b). It is kept outside internal/ so a future
// CLI or client package can describe ACP sessions without importing the
// executor internals.
package acp

// SessionState is the session-lifecycle state machine described in §4.4.b:
// initializing -> ready -> prompting -> (ready|cancelled|closed).
type SessionState string

const (
	StateInitializing SessionState = "initializing"
	StateReady        SessionState = "ready"
	StatePrompting    SessionState = "prompting"
	StateCancelled    SessionState = "cancelled"
	StateClosed       SessionState = "closed"
)

// CanPrompt reports whether a prompt call is legal from s (§4.4.b: "prompt
// is rejected unless state is ready").
func (s SessionState) CanPrompt() bool { return s == StateReady }

// CanCancel reports whether a cancel call is a no-op from s (§4.4.b: "cancel
// is a no-op unless state is prompting").
func (s SessionState) CanCancel() bool { return s == StatePrompting }

// PermissionPolicy is the host-side decision rule for requestPermission
// (§4.4.b). AutoApprove selects the first allow_once option (falling back to
// the first option of any kind); otherwise the configured approval service
// (executor.ApprovalService) is consulted.
type PermissionPolicy struct {
	AutoApprove bool
}

// ApprovalOutcome is the normalized result of resolving one permission
// request, independent of the SDK's own outcome union.
type ApprovalOutcome string

const (
	OutcomeAllowOnce  ApprovalOutcome = "allow_once"
	OutcomeRejectOnce ApprovalOutcome = "reject_once"
	OutcomeCancelled  ApprovalOutcome = "cancelled"
)

// Descriptor summarizes an agent's ACP capabilities for display/debugging,
// independent of the SDK's own AgentCapabilities struct.
type Descriptor struct {
	AgentName     string
	AgentVersion  string
	LoadSession   bool
	PromptCapable bool
}
