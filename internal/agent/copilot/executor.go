// Package copilot implements the executor for GitHub Copilot's SDK protocol
// (§4.4, pack-supplemented): the CLI is spawned in --server mode, prints its
// listening TCP port on stdout, and the host then drives the rest of the
// session through github.com/github/copilot-sdk/go rather than stdio framing.
// Grounded on the teacher's internal/agentctl/server/adapter/copilot_adapter.go.
package copilot

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/kandev/agentengine/internal/agent/adapter"
	"github.com/kandev/agentengine/internal/agent/executor"
	"github.com/kandev/agentengine/internal/agent/mcpconfig"
	"github.com/kandev/agentengine/internal/common/logger"
	"github.com/kandev/agentengine/internal/event"
	"github.com/kandev/agentengine/internal/process"
	"github.com/kandev/agentengine/internal/session"
	"github.com/kandev/agentengine/internal/task"
	pkgcopilot "github.com/kandev/agentengine/pkg/copilot"
	"go.uber.org/zap"
)

const portWaitTimeout = 180 * time.Second

// portPattern matches "listening on port <number>", printed by the Copilot
// CLI once its --server has bound a TCP port.
var portPattern = regexp.MustCompile(`listening on port (\d+)`)

// copilotSession pairs one SDK client with the channel its notifier writes
// to, keyed by task id in Executor.sessions.
type copilotSession struct {
	client *pkgcopilot.Client
	notify *notifier
	out    chan event.NormalizedEntry
}

// Executor implements executor.Executor for Copilot's SDK-over-TCP protocol.
type Executor struct {
	adapter  adapter.Adapter
	procs    *process.Manager
	log      *logger.Logger
	approval executor.ApprovalService
	store    *session.Store

	mu       sync.Mutex
	sessions map[string]*copilotSession
}

// New constructs a Copilot executor bound to a.
func New(a adapter.Adapter, procs *process.Manager, log *logger.Logger) *Executor {
	return &Executor{
		adapter:  a,
		procs:    procs,
		log:      log,
		approval: executor.AutoApprove{},
		sessions: make(map[string]*copilotSession),
	}
}

func (e *Executor) SetApprovalService(svc executor.ApprovalService) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.approval = svc
}

// SetSessionStore wires store into every session started from this point on
// (§4.4.d).
func (e *Executor) SetSessionStore(store *session.Store) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store = store
}

func (e *Executor) GetCapabilities() executor.Capabilities {
	return executor.Capabilities{
		SupportsSessionResume:        true,
		SupportsApprovals:            true,
		SupportsMcp:                  true,
		Protocol:                     executor.ProtocolCopilot,
		SupportsMidExecutionMessages: true,
	}
}

func (e *Executor) CheckAvailability(ctx context.Context) bool {
	cfg, err := e.adapter.BuildProcessConfig(e.adapter.GetDefaultConfig())
	return err == nil && cfg.Executable != ""
}

func (e *Executor) ExecuteTask(ctx context.Context, t task.Task) (executor.SpawnedChild, error) {
	return e.start(ctx, t, "")
}

func (e *Executor) ResumeTask(ctx context.Context, t task.Task, sessionID string) (executor.SpawnedChild, error) {
	return e.start(ctx, t, sessionID)
}

func (e *Executor) start(ctx context.Context, t task.Task, resumeSessionID string) (executor.SpawnedChild, error) {
	agentCfg := adapter.AgentConfig{}
	for k, v := range t.Config.Metadata {
		agentCfg[k] = v
	}
	agentCfg["server"] = true

	cfg, err := e.adapter.BuildProcessConfig(agentCfg)
	if err != nil {
		return executor.SpawnedChild{}, fmt.Errorf("copilot: build process config: %w", err)
	}
	cfg.Mode = process.ModeHybrid
	cfg.WorkDir = t.WorkDir
	cfg.Timeout = t.Config.Timeout

	mp, err := e.procs.Acquire(ctx, t.ID, cfg)
	if err != nil {
		return executor.SpawnedChild{}, fmt.Errorf("copilot: acquire process: %w", err)
	}

	port, err := waitForPort(ctx, mp.Streams.Stdout, e.log)
	if err != nil {
		e.procs.Release(t.ID)
		return executor.SpawnedChild{}, fmt.Errorf("copilot: detect server port: %w", err)
	}

	e.mu.Lock()
	svc := e.approval
	store := e.store
	e.mu.Unlock()

	client := pkgcopilot.NewClient(pkgcopilot.ClientConfig{CLIUrl: fmt.Sprintf("localhost:%d", port)}, e.log)
	out := make(chan event.NormalizedEntry, 64)
	notify := newNotifier()
	client.SetEventHandler(func(evt pkgcopilot.SessionEvent) {
		for _, entry := range notify.feed(evt) {
			out <- entry
			persist(store, e.log, t.ID, entry)
		}
	})
	client.SetPermissionHandler(permissionHandlerFor(svc, e.log))

	if err := client.Start(ctx); err != nil {
		e.procs.Release(t.ID)
		return executor.SpawnedChild{}, fmt.Errorf("copilot: start sdk client: %w", err)
	}

	servers, err := mcpconfig.Resolve(serversFromTask(t))
	if err != nil {
		e.procs.Release(t.ID)
		return executor.SpawnedChild{}, fmt.Errorf("copilot: resolve mcp servers: %w", err)
	}
	mcpServers := toCopilotMcpServers(servers)

	if resumeSessionID != "" {
		if err := client.ResumeSession(ctx, resumeSessionID, mcpServers); err != nil {
			e.log.Warn("session resume unsupported or failed, starting a fresh session", zap.Error(err))
			if _, err := client.CreateSession(ctx, mcpServers); err != nil {
				e.procs.Release(t.ID)
				return executor.SpawnedChild{}, fmt.Errorf("copilot: create session: %w", err)
			}
		}
	} else if _, err := client.CreateSession(ctx, mcpServers); err != nil {
		e.procs.Release(t.ID)
		return executor.SpawnedChild{}, fmt.Errorf("copilot: create session: %w", err)
	}

	e.mu.Lock()
	e.sessions[t.ID] = &copilotSession{client: client, notify: notify, out: out}
	e.mu.Unlock()

	go func() {
		if _, err := client.Send(ctx, t.Prompt); err != nil {
			e.log.Warn("copilot send returned an error", zap.Error(err))
		}
	}()

	exitSignal := make(chan struct{})
	go func() {
		mp.Wait()
		close(exitSignal)
	}()

	return executor.SpawnedChild{Process: mp, ExitSignal: exitSignal}, nil
}

// SendMessage delivers a mid-execution message as a new prompt turn on the
// same session (§4.4.b analog).
func (e *Executor) SendMessage(ctx context.Context, child executor.SpawnedChild, text string) error {
	sess, ok := e.sessionFor(child)
	if !ok {
		return executor.ErrUnsupported
	}
	_, err := sess.client.Send(ctx, text)
	return err
}

// Interrupt aborts the in-flight turn.
func (e *Executor) Interrupt(ctx context.Context, child executor.SpawnedChild) error {
	sess, ok := e.sessionFor(child)
	if !ok {
		return executor.ErrUnsupported
	}
	return sess.client.Abort(ctx)
}

func (e *Executor) sessionFor(child executor.SpawnedChild) (*copilotSession, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if child.Process == nil {
		return nil, false
	}
	sess, ok := e.sessions[child.Process.ID]
	return sess, ok
}

// NormalizeOutput returns the channel the event handler already writes to;
// closing happens when the child process exits.
func (e *Executor) NormalizeOutput(child executor.SpawnedChild, workDir string) (<-chan event.NormalizedEntry, error) {
	sess, ok := e.sessionFor(child)
	if !ok {
		return nil, fmt.Errorf("copilot: no session for process %q", child.Process.ID)
	}
	go func() {
		<-child.ExitSignal
		if err := sess.client.Stop(); err != nil {
			e.log.Warn("error stopping copilot sdk client", zap.Error(err))
		}
		close(sess.out)
	}()
	return sess.out, nil
}

// persist appends entry to store under sessionKey, if store is configured
// and entry has a persisted analog (§4.4.d). Store failures are logged,
// never propagated.
func persist(store *session.Store, log *logger.Logger, sessionKey string, entry event.NormalizedEntry) {
	if store == nil {
		return
	}
	evt, ok := session.FromNormalizedEntry(entry)
	if !ok {
		return
	}
	if err := store.Append(sessionKey, evt); err != nil {
		log.Warn("failed to persist session event", zap.String("session_id", sessionKey), zap.Error(err))
	}
}

// waitForPort scans stdout line by line until the CLI server prints its
// listening port, or portWaitTimeout elapses.
func waitForPort(ctx context.Context, stdout io.Reader, log *logger.Logger) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	scanner := bufio.NewScanner(stdout)
	portCh := make(chan int, 1)
	errCh := make(chan error, 1)

	go func() {
		for scanner.Scan() {
			line := scanner.Text()
			log.Debug("copilot cli stdout", zap.String("line", line))
			if m := portPattern.FindStringSubmatch(line); m != nil {
				port, err := strconv.Atoi(m[1])
				if err != nil {
					errCh <- fmt.Errorf("invalid port number %q: %w", m[1], err)
					return
				}
				portCh <- port
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errCh <- fmt.Errorf("error reading stdout: %w", err)
			return
		}
		errCh <- fmt.Errorf("cli exited before printing listening port")
	}()

	timer := time.NewTimer(portWaitTimeout)
	defer timer.Stop()

	select {
	case port := <-portCh:
		return port, nil
	case err := <-errCh:
		return 0, err
	case <-timer.C:
		return 0, fmt.Errorf("timeout (%s) waiting for cli to print listening port", portWaitTimeout)
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// permissionHandlerFor adapts the engine's protocol-agnostic ApprovalService
// to the SDK's (request, invocation) -> (result, error) permission callback,
// grounded on the teacher's CopilotAdapter.handlePermissionRequest. Matches
// §9's default policy: no service configured auto-approves.
func permissionHandlerFor(svc executor.ApprovalService, log *logger.Logger) pkgcopilot.PermissionHandler {
	return func(req pkgcopilot.PermissionRequest, inv pkgcopilot.PermissionInvocation) (pkgcopilot.PermissionRequestResult, error) {
		if svc == nil {
			return pkgcopilot.PermissionRequestResult{Kind: pkgcopilot.PermissionApproved}, nil
		}
		if _, ok := svc.(executor.AutoApprove); ok {
			return pkgcopilot.PermissionRequestResult{Kind: pkgcopilot.PermissionApproved}, nil
		}
		decision, err := svc.RequestApproval(context.Background(), executor.ApprovalRequest{
			ToolCallID: req.ToolCallID,
			ToolName:   req.Kind,
		})
		if err != nil {
			log.Warn("approval service failed, denying", zap.Error(err))
			return pkgcopilot.PermissionRequestResult{Kind: pkgcopilot.PermissionDenied}, nil
		}
		if decision == executor.ApprovalApproved {
			return pkgcopilot.PermissionRequestResult{Kind: pkgcopilot.PermissionApproved}, nil
		}
		return pkgcopilot.PermissionRequestResult{Kind: pkgcopilot.PermissionDenied}, nil
	}
}

func serversFromTask(t task.Task) []mcpconfig.Server {
	raw, ok := t.Config.Metadata["mcpServers"].([]mcpconfig.Server)
	if !ok {
		return nil
	}
	return raw
}

func toCopilotMcpServers(servers []mcpconfig.Server) map[string]pkgcopilot.MCPServerConfig {
	if len(servers) == 0 {
		return nil
	}
	out := make(map[string]pkgcopilot.MCPServerConfig, len(servers))
	for _, srv := range servers {
		cfg := pkgcopilot.MCPServerConfig{"tools": []string{"*"}}
		switch srv.Transport {
		case mcpconfig.TransportHTTP:
			cfg["type"] = "http"
			cfg["url"] = srv.URL
		default:
			cfg["type"] = "local"
			cfg["command"] = srv.Command
			if srv.Args != nil {
				cfg["args"] = srv.Args
			}
		}
		out[srv.Name] = cfg
	}
	return out
}
