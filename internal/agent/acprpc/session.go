// Package acprpc implements the bidirectional ACP-style RPC executor
// (§4.4.b): the host and child are peers over NDJSON on stdio, with the
// coder/acp-go-sdk supplying the framing and wire types while this package
// owns the session state machine, permission policy, and event translation.
package acprpc

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/coder/acp-go-sdk"
	"github.com/kandev/agentengine/internal/agent/executor"
	"github.com/kandev/agentengine/internal/agent/mcpconfig"
	"github.com/kandev/agentengine/internal/common/logger"
	"github.com/kandev/agentengine/internal/event"
	"github.com/kandev/agentengine/internal/session"
	pkgacp "github.com/kandev/agentengine/pkg/acp"
	"go.uber.org/zap"
)

var clientInfo = acp.Implementation{Name: "agentengine", Version: "0.1.0"}

// Session owns one ACP connection's state machine (§4.4.b, §9: "executor owns
// session map; session holds a reference to the connection; connection owns
// the child").
type Session struct {
	conn   *acp.ClientSideConnection
	client *hostClient
	log    *logger.Logger
	outCh  chan event.NormalizedEntry

	mu        sync.Mutex
	state     pkgacp.SessionState
	sessionID string
}

// newSession wires a fresh ACP connection over stdin/stdout and performs the
// initialize handshake. store may be nil, in which case session events are
// streamed to out but never persisted.
func newSession(ctx context.Context, stdin io.Writer, stdout io.Reader, workDir string, svc executor.ApprovalService, log *logger.Logger, out chan event.NormalizedEntry, store *session.Store) (*Session, error) {
	s := &Session{log: log, state: pkgacp.StateInitializing, outCh: out}
	s.client = &hostClient{session: s, workDir: workDir, approvals: svc, out: out, log: log, norm: newNotifier(), store: store}

	s.conn = acp.NewClientSideConnection(s.client, stdin, stdout)

	resp, err := s.conn.Initialize(ctx, acp.InitializeRequest{
		ProtocolVersion: acp.ProtocolVersionNumber,
		ClientInfo:      &clientInfo,
	})
	if err != nil {
		return nil, fmt.Errorf("acprpc: initialize: %w", err)
	}
	s.log.Info("acp initialize complete", zap.Bool("load_session", resp.AgentCapabilities.LoadSession))

	s.mu.Lock()
	s.state = pkgacp.StateReady
	s.mu.Unlock()
	return s, nil
}

// newSessionForTask opens a brand-new session.
func (s *Session) newSessionForTask(ctx context.Context, cwd string, servers []mcpconfig.Server) error {
	resp, err := s.conn.NewSession(ctx, acp.NewSessionRequest{
		Cwd:        cwd,
		McpServers: toACPMcpServers(servers),
	})
	if err != nil {
		return fmt.Errorf("acprpc: newSession: %w", err)
	}
	s.mu.Lock()
	s.sessionID = string(resp.SessionId)
	s.mu.Unlock()
	return nil
}

// loadSessionForTask resumes an existing session id.
func (s *Session) loadSessionForTask(ctx context.Context, cwd, sessionID string, servers []mcpconfig.Server) error {
	_, err := s.conn.LoadSession(ctx, acp.LoadSessionRequest{
		Cwd:        cwd,
		SessionId:  acp.SessionId(sessionID),
		McpServers: toACPMcpServers(servers),
	})
	if err != nil {
		return fmt.Errorf("acprpc: loadSession (resume not supported or failed): %w", err)
	}
	s.mu.Lock()
	s.sessionID = sessionID
	s.mu.Unlock()
	return nil
}

// prompt sends a user turn and blocks for its stop reason. Rejected unless
// the session is ready (§4.4.b).
func (s *Session) prompt(ctx context.Context, text string) (acp.StopReason, error) {
	s.mu.Lock()
	if !s.state.CanPrompt() {
		s.mu.Unlock()
		return "", fmt.Errorf("acprpc: prompt rejected in state %q", s.state)
	}
	s.state = pkgacp.StatePrompting
	sessionID := s.sessionID
	s.mu.Unlock()

	resp, err := s.conn.Prompt(ctx, acp.PromptRequest{
		SessionId: acp.SessionId(sessionID),
		Prompt:    []acp.ContentBlock{acp.TextBlock(text)},
	})

	s.mu.Lock()
	if s.state == pkgacp.StatePrompting {
		s.state = pkgacp.StateReady
	}
	s.mu.Unlock()

	if err != nil {
		return "", fmt.Errorf("acprpc: prompt: %w", err)
	}
	return resp.StopReason, nil
}

// cancel is a no-op unless the session is mid-prompt (§4.4.b, §5).
func (s *Session) cancel(ctx context.Context) error {
	s.mu.Lock()
	if !s.state.CanCancel() {
		s.mu.Unlock()
		return nil
	}
	sessionID := s.sessionID
	s.state = pkgacp.StateCancelled
	s.mu.Unlock()

	return s.conn.Cancel(ctx, acp.CancelNotification{SessionId: acp.SessionId(sessionID)})
}

// currentSessionID returns the ACP session id, once newSessionForTask or
// loadSessionForTask has completed; "" before then.
func (s *Session) currentSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func (s *Session) close() {
	s.mu.Lock()
	s.state = pkgacp.StateClosed
	s.mu.Unlock()
}

func toACPMcpServers(servers []mcpconfig.Server) []acp.McpServer {
	out := make([]acp.McpServer, 0, len(servers))
	for _, srv := range servers {
		switch srv.Transport {
		case mcpconfig.TransportHTTP:
			out = append(out, acp.McpServer{Sse: &acp.McpServerSse{Name: srv.Name, Url: srv.URL, Type: "sse"}})
		default:
			out = append(out, acp.McpServer{Stdio: &acp.McpServerStdio{Name: srv.Name, Command: srv.Command, Args: srv.Args}})
		}
	}
	return out
}
