package streamjson

import (
	"bufio"
	"context"
	"fmt"
	"syscall"

	"github.com/kandev/agentengine/internal/agent/adapter"
	"github.com/kandev/agentengine/internal/agent/executor"
	"github.com/kandev/agentengine/internal/common/logger"
	"github.com/kandev/agentengine/internal/event"
	"github.com/kandev/agentengine/internal/process"
	"github.com/kandev/agentengine/internal/session"
	"github.com/kandev/agentengine/internal/task"
	"go.uber.org/zap"
)

// Executor implements executor.Executor for agents that emit newline
// delimited JSON and exit at the end of the turn (§4.4.a). It never
// resumes a process to deliver a mid-execution message — stream-json
// agents do not support that, so sendMessage is unsupported; interrupt
// sends SIGTERM to the child.
type Executor struct {
	adapter adapter.Adapter
	procs   *process.Manager
	log     *logger.Logger

	approval executor.ApprovalService
	store    *session.Store
}

// New constructs a stream-json executor bound to a.
func New(a adapter.Adapter, procs *process.Manager, log *logger.Logger) *Executor {
	return &Executor{adapter: a, procs: procs, log: log, approval: executor.AutoApprove{}}
}

func (e *Executor) SetApprovalService(svc executor.ApprovalService) { e.approval = svc }

// SetSessionStore wires store into NormalizeOutput's write path, so every
// entry streamed for a task is also appended to persisted history (§4.4.d).
// stream-json agents have no protocol-native session id, so the task id
// doubles as the session key.
func (e *Executor) SetSessionStore(store *session.Store) { e.store = store }

func (e *Executor) GetCapabilities() executor.Capabilities {
	return executor.Capabilities{
		SupportsSessionResume:        true,
		SupportsApprovals:            false,
		SupportsMcp:                  false,
		Protocol:                     executor.ProtocolStreamJSON,
		SupportsMidExecutionMessages: false,
	}
}

func (e *Executor) CheckAvailability(ctx context.Context) bool {
	cfg, err := e.adapter.BuildProcessConfig(e.adapter.GetDefaultConfig())
	return err == nil && cfg.Executable != ""
}

func (e *Executor) ExecuteTask(ctx context.Context, t task.Task) (executor.SpawnedChild, error) {
	return e.spawn(ctx, t, "")
}

func (e *Executor) ResumeTask(ctx context.Context, t task.Task, sessionID string) (executor.SpawnedChild, error) {
	return e.spawn(ctx, t, sessionID)
}

func (e *Executor) spawn(ctx context.Context, t task.Task, resumeSessionID string) (executor.SpawnedChild, error) {
	agentCfg := adapter.AgentConfig{}
	for k, v := range t.Config.Metadata {
		agentCfg[k] = v
	}
	if resumeSessionID != "" {
		agentCfg["resumeSessionId"] = resumeSessionID
	}

	cfg, err := e.adapter.BuildProcessConfig(agentCfg)
	if err != nil {
		return executor.SpawnedChild{}, fmt.Errorf("streamjson: build process config: %w", err)
	}
	cfg.Mode = process.ModeStructured
	cfg.WorkDir = t.WorkDir
	cfg.Timeout = t.Config.Timeout

	mp, err := e.procs.Acquire(ctx, t.ID, cfg)
	if err != nil {
		return executor.SpawnedChild{}, fmt.Errorf("streamjson: acquire process: %w", err)
	}

	if _, err := mp.Streams.Stdin.Write([]byte(t.Prompt)); err != nil {
		e.log.Warn("failed writing prompt to stdin", zap.Error(err))
	}
	_ = mp.Streams.Stdin.Close()

	exitSignal := make(chan struct{})
	go func() {
		mp.Wait()
		close(exitSignal)
	}()

	return executor.SpawnedChild{Process: mp, ExitSignal: exitSignal}, nil
}

// SendMessage is unsupported: a one-shot process cannot accept a second
// turn once its stdin is closed.
func (e *Executor) SendMessage(ctx context.Context, child executor.SpawnedChild, text string) error {
	return executor.ErrUnsupported
}

// Interrupt sends SIGTERM to the child, per §5's "SIGTERM for §4.4.a/c".
func (e *Executor) Interrupt(ctx context.Context, child executor.SpawnedChild) error {
	if child.Process == nil {
		return executor.ErrUnsupported
	}
	return child.Process.Signal(syscall.SIGTERM)
}

// NormalizeOutput reads the child's stdout line by line and maps each line
// to zero or more NormalizedEntry values (§4.4.a).
func (e *Executor) NormalizeOutput(child executor.SpawnedChild, workDir string) (<-chan event.NormalizedEntry, error) {
	if child.Process == nil {
		return nil, fmt.Errorf("streamjson: no process in spawned child")
	}

	out := make(chan event.NormalizedEntry, 64)
	norm := NewNormalizer()
	store := e.store
	sessionID := child.Process.ID

	go func() {
		defer close(out)
		scanner := bufio.NewScanner(child.Process.Streams.Stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			for _, entry := range norm.FeedLine(scanner.Bytes()) {
				out <- entry
				e.persist(store, sessionID, entry)
			}
		}
	}()

	return out, nil
}

// persist appends entry to store under sessionID, if store is configured and
// entry has a persisted analog (§4.4.d). Store failures are logged, never
// propagated.
func (e *Executor) persist(store *session.Store, sessionID string, entry event.NormalizedEntry) {
	if store == nil {
		return
	}
	evt, ok := session.FromNormalizedEntry(entry)
	if !ok {
		return
	}
	if err := store.Append(sessionID, evt); err != nil {
		e.log.Warn("failed to persist session event", zap.String("session_id", sessionID), zap.Error(err))
	}
}
