package acprpc

import (
	"context"
	"fmt"
	"sync"

	"github.com/kandev/agentengine/internal/agent/adapter"
	"github.com/kandev/agentengine/internal/agent/executor"
	"github.com/kandev/agentengine/internal/agent/mcpconfig"
	"github.com/kandev/agentengine/internal/common/logger"
	"github.com/kandev/agentengine/internal/event"
	"github.com/kandev/agentengine/internal/process"
	"github.com/kandev/agentengine/internal/session"
	"github.com/kandev/agentengine/internal/task"
	"go.uber.org/zap"
)

// Executor implements executor.Executor for agents that speak the
// bidirectional ACP-style protocol (§4.4.b): the host drives a single
// long-lived connection per task rather than parsing a one-shot stream.
type Executor struct {
	adapter  adapter.Adapter
	procs    *process.Manager
	log      *logger.Logger
	approval executor.ApprovalService
	store    *session.Store

	mu       sync.Mutex
	sessions map[string]*Session // keyed by task id
}

// New constructs an ACP executor bound to a, using procs for child process
// slots.
func New(a adapter.Adapter, procs *process.Manager, log *logger.Logger) *Executor {
	return &Executor{
		adapter:  a,
		procs:    procs,
		log:      log,
		approval: executor.AutoApprove{},
		sessions: make(map[string]*Session),
	}
}

func (e *Executor) SetApprovalService(svc executor.ApprovalService) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.approval = svc
}

// SetSessionStore wires store into every session started from this point
// on, so session/update notifications are persisted as well as streamed
// (§4.4.d).
func (e *Executor) SetSessionStore(store *session.Store) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store = store
}

func (e *Executor) GetCapabilities() executor.Capabilities {
	return executor.Capabilities{
		SupportsSessionResume:        true,
		RequiresSetup:                false,
		SupportsApprovals:            true,
		SupportsMcp:                  true,
		Protocol:                     executor.ProtocolACP,
		SupportsMidExecutionMessages: true,
	}
}

func (e *Executor) CheckAvailability(ctx context.Context) bool {
	cfg, err := e.adapter.BuildProcessConfig(e.adapter.GetDefaultConfig())
	return err == nil && cfg.Executable != ""
}

// ExecuteTask spawns the agent process, performs the ACP handshake, opens a
// fresh session, and sends the task's prompt as the first turn.
func (e *Executor) ExecuteTask(ctx context.Context, t task.Task) (executor.SpawnedChild, error) {
	return e.start(ctx, t, "")
}

// ResumeTask replays the task against a previously-issued session id,
// falling back to a fork (new session, context injected into the first
// prompt) when the agent lacks session/load (§4.4.b, §4.4.d).
func (e *Executor) ResumeTask(ctx context.Context, t task.Task, sessionID string) (executor.SpawnedChild, error) {
	return e.start(ctx, t, sessionID)
}

func (e *Executor) start(ctx context.Context, t task.Task, resumeSessionID string) (executor.SpawnedChild, error) {
	cfg, err := e.adapter.BuildProcessConfig(adapterConfig(t))
	if err != nil {
		return executor.SpawnedChild{}, fmt.Errorf("acprpc: build process config: %w", err)
	}
	cfg.Mode = process.ModeHybrid
	cfg.WorkDir = t.WorkDir
	cfg.Timeout = t.Config.Timeout

	mp, err := e.procs.Acquire(ctx, t.ID, cfg)
	if err != nil {
		return executor.SpawnedChild{}, fmt.Errorf("acprpc: acquire process: %w", err)
	}

	out := make(chan event.NormalizedEntry, 64)
	e.mu.Lock()
	svc := e.approval
	store := e.store
	e.mu.Unlock()

	sess, err := newSession(ctx, mp.Streams.Stdin, mp.Streams.Stdout, t.WorkDir, svc, e.log, out, store)
	if err != nil {
		e.procs.Release(t.ID)
		return executor.SpawnedChild{}, err
	}

	servers, err := mcpconfig.Resolve(serversFromTask(t))
	if err != nil {
		e.procs.Release(t.ID)
		return executor.SpawnedChild{}, fmt.Errorf("acprpc: resolve mcp servers: %w", err)
	}

	prompt := t.Prompt
	if resumeSessionID != "" {
		if err := sess.loadSessionForTask(ctx, t.WorkDir, resumeSessionID, servers); err != nil {
			e.log.Warn("session/load unsupported or failed, forking a fresh session", zap.Error(err))
			if err := sess.newSessionForTask(ctx, t.WorkDir, servers); err != nil {
				e.procs.Release(t.ID)
				return executor.SpawnedChild{}, err
			}
			if store != nil {
				if p, err := store.ResumePrompt(resumeSessionID, t.Prompt, 0); err == nil {
					prompt = p
				}
			}
		}
	} else if err := sess.newSessionForTask(ctx, t.WorkDir, servers); err != nil {
		e.procs.Release(t.ID)
		return executor.SpawnedChild{}, err
	}

	e.mu.Lock()
	e.sessions[t.ID] = sess
	e.mu.Unlock()

	go func() {
		if _, err := sess.prompt(ctx, prompt); err != nil {
			e.log.Warn("acp prompt returned an error", zap.Error(err))
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
// same session (§4.4.b: "supports mid-execution messages").
func (e *Executor) SendMessage(ctx context.Context, child executor.SpawnedChild, text string) error {
	sess, ok := e.sessionFor(child)
	if !ok {
		return executor.ErrUnsupported
	}
	_, err := sess.prompt(ctx, text)
	return err
}

// Interrupt cancels the in-flight prompt, a no-op if none is running.
func (e *Executor) Interrupt(ctx context.Context, child executor.SpawnedChild) error {
	sess, ok := e.sessionFor(child)
	if !ok {
		return executor.ErrUnsupported
	}
	return sess.cancel(ctx)
}

func (e *Executor) sessionFor(child executor.SpawnedChild) (*Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if child.Process == nil {
		return nil, false
	}
	sess, ok := e.sessions[child.Process.ID]
	return sess, ok
}

// NormalizeOutput returns the channel the session's notification handler
// already writes to; closing happens when the child process exits.
func (e *Executor) NormalizeOutput(child executor.SpawnedChild, workDir string) (<-chan event.NormalizedEntry, error) {
	sess, ok := e.sessionFor(child)
	if !ok {
		return nil, fmt.Errorf("acprpc: no session for process %q", child.Process.ID)
	}
	out := sess.outCh
	go func() {
		<-child.ExitSignal
		sess.close()
		close(out)
	}()
	return out, nil
}

func adapterConfig(t task.Task) adapter.AgentConfig {
	cfg := adapter.AgentConfig{}
	for k, v := range t.Config.Metadata {
		cfg[k] = v
	}
	return cfg
}

func serversFromTask(t task.Task) []mcpconfig.Server {
	raw, ok := t.Config.Metadata["mcpServers"].([]mcpconfig.Server)
	if !ok {
		return nil
	}
	return raw
}
