package acprpc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/coder/acp-go-sdk"
	"github.com/kandev/agentengine/internal/agent/executor"
	"github.com/kandev/agentengine/internal/common/logger"
	"github.com/kandev/agentengine/internal/event"
	"github.com/kandev/agentengine/internal/session"
	"go.uber.org/zap"
)

// hostClient implements the SDK's acp.Client interface: every method here is
// a request the agent makes of the host (permission prompts, session
// updates, and the fs/terminal operations an agent may not run itself).
type hostClient struct {
	session   *Session
	workDir   string
	approvals executor.ApprovalService
	out       chan<- event.NormalizedEntry
	log       *logger.Logger
	norm      *notifier
	store     *session.Store
}

var _ acp.Client = (*hostClient)(nil)

// RequestPermission resolves one tool-call approval per the configured
// ApprovalService (§4.4.b, §9): executor.AutoApprove picks the first
// allow_once option (falling back to the first option of any kind); an
// explicit approve/deny decision maps to allow_once/reject_once; with no
// autoApprove and no service configured, the default is reject_once, not
// auto-approval; a missing matching option cancels the request.
func (c *hostClient) RequestPermission(ctx context.Context, p acp.RequestPermissionRequest) (acp.RequestPermissionResponse, error) {
	if len(p.Options) == 0 {
		return cancelledOutcome(), nil
	}

	if _, ok := c.approvals.(executor.AutoApprove); ok {
		return autoApprove(p.Options), nil
	}

	if c.approvals == nil {
		return rejectOutcome(p.Options), nil
	}

	title := ""
	if p.ToolCall.Title != nil {
		title = *p.ToolCall.Title
	}
	decision, err := c.approvals.RequestApproval(ctx, executor.ApprovalRequest{
		ToolCallID: string(p.ToolCall.ToolCallId),
		ToolName:   title,
		Options:    optionIDs(p.Options),
	})
	if err != nil {
		c.log.Warn("approval service failed, cancelling", zap.Error(err))
		return cancelledOutcome(), nil
	}

	wantKind := acp.PermissionOptionKindAllowOnce
	if decision == executor.ApprovalDenied || decision == executor.ApprovalTimeout {
		wantKind = acp.PermissionOptionKindRejectOnce
	}
	for _, opt := range p.Options {
		if opt.Kind == wantKind {
			return selectedOutcome(opt.OptionId), nil
		}
	}
	return cancelledOutcome(), nil
}

func optionIDs(opts []acp.PermissionOption) []string {
	ids := make([]string, len(opts))
	for i, o := range opts {
		ids[i] = string(o.OptionId)
	}
	return ids
}

func autoApprove(opts []acp.PermissionOption) acp.RequestPermissionResponse {
	for _, opt := range opts {
		if opt.Kind == acp.PermissionOptionKindAllowOnce {
			return selectedOutcome(opt.OptionId)
		}
	}
	return selectedOutcome(opts[0].OptionId)
}

func selectedOutcome(id acp.PermissionOptionId) acp.RequestPermissionResponse {
	return acp.RequestPermissionResponse{
		Outcome: acp.RequestPermissionOutcome{Selected: &acp.RequestPermissionOutcomeSelected{OptionId: id}},
	}
}

// rejectOutcome picks the reject_once option, per spec default behavior
// when no approval service is configured.
func rejectOutcome(opts []acp.PermissionOption) acp.RequestPermissionResponse {
	for _, opt := range opts {
		if opt.Kind == acp.PermissionOptionKindRejectOnce {
			return selectedOutcome(opt.OptionId)
		}
	}
	return cancelledOutcome()
}

func cancelledOutcome() acp.RequestPermissionResponse {
	return acp.RequestPermissionResponse{
		Outcome: acp.RequestPermissionOutcome{Cancelled: &acp.RequestPermissionOutcomeCancelled{}},
	}
}

// SessionUpdate is the agent's streaming push of one session notification;
// it is translated to zero or more NormalizedEntry values and forwarded on
// c.out (§4.7).
func (c *hostClient) SessionUpdate(ctx context.Context, n acp.SessionNotification) error {
	for _, entry := range c.norm.feed(n) {
		c.out <- entry
		c.persist(entry)
	}
	return nil
}

// persist appends entry to the session store, if one is configured and the
// entry has a persisted analog (§4.4.d). Store failures are logged, never
// propagated — losing a history line must not interrupt the live stream.
func (c *hostClient) persist(entry event.NormalizedEntry) {
	if c.store == nil {
		return
	}
	evt, ok := session.FromNormalizedEntry(entry)
	if !ok {
		return
	}
	sessionID := c.session.currentSessionID()
	if sessionID == "" {
		return
	}
	if err := c.store.Append(sessionID, evt); err != nil {
		c.log.Warn("failed to persist session event", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// resolvePath keeps file operations confined to the task's working
// directory, same constraint the teacher's own ACP client enforces.
func (c *hostClient) resolvePath(reqPath string) (string, error) {
	var resolved string
	if filepath.IsAbs(reqPath) {
		resolved = filepath.Clean(reqPath)
	} else {
		resolved = filepath.Join(c.workDir, reqPath)
	}
	root := filepath.Clean(c.workDir) + string(filepath.Separator)
	if resolved != filepath.Clean(c.workDir) && !strings.HasPrefix(resolved, root) {
		return "", fmt.Errorf("acprpc: path %q resolves outside work dir %q", reqPath, c.workDir)
	}
	return resolved, nil
}

func (c *hostClient) ReadTextFile(ctx context.Context, p acp.ReadTextFileRequest) (acp.ReadTextFileResponse, error) {
	path, err := c.resolvePath(p.Path)
	if err != nil {
		return acp.ReadTextFileResponse{}, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return acp.ReadTextFileResponse{}, err
	}
	content := string(b)
	if p.Line != nil || p.Limit != nil {
		lines := strings.Split(content, "\n")
		start := 0
		if p.Line != nil && *p.Line > 0 {
			start = *p.Line - 1
			if start > len(lines) {
				start = len(lines)
			}
		}
		end := len(lines)
		if p.Limit != nil && *p.Limit > 0 && start+*p.Limit < end {
			end = start + *p.Limit
		}
		content = strings.Join(lines[start:end], "\n")
	}
	return acp.ReadTextFileResponse{Content: content}, nil
}

func (c *hostClient) WriteTextFile(ctx context.Context, p acp.WriteTextFileRequest) (acp.WriteTextFileResponse, error) {
	path, err := c.resolvePath(p.Path)
	if err != nil {
		return acp.WriteTextFileResponse{}, err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return acp.WriteTextFileResponse{}, err
		}
	}
	return acp.WriteTextFileResponse{}, os.WriteFile(path, []byte(p.Content), 0o644)
}

// Terminal operations are not wired to the process manager yet; the engine's
// own process.Manager handles the agent's own child, and no adapter this
// repo supports has requested host-managed sub-terminals. Stubbed with
// harmless responses so a well-behaved agent's request completes rather
// than hangs.
func (c *hostClient) CreateTerminal(ctx context.Context, p acp.CreateTerminalRequest) (acp.CreateTerminalResponse, error) {
	return acp.CreateTerminalResponse{TerminalId: "unsupported"}, nil
}

func (c *hostClient) KillTerminalCommand(ctx context.Context, p acp.KillTerminalCommandRequest) (acp.KillTerminalCommandResponse, error) {
	return acp.KillTerminalCommandResponse{}, nil
}

func (c *hostClient) TerminalOutput(ctx context.Context, p acp.TerminalOutputRequest) (acp.TerminalOutputResponse, error) {
	return acp.TerminalOutputResponse{Output: "", Truncated: false}, nil
}

func (c *hostClient) ReleaseTerminal(ctx context.Context, p acp.ReleaseTerminalRequest) (acp.ReleaseTerminalResponse, error) {
	return acp.ReleaseTerminalResponse{}, nil
}

func (c *hostClient) WaitForTerminalExit(ctx context.Context, p acp.WaitForTerminalExitRequest) (acp.WaitForTerminalExitResponse, error) {
	code := 0
	return acp.WaitForTerminalExitResponse{ExitCode: &code}, nil
}
