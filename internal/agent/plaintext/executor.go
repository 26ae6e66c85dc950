package plaintext

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"syscall"
	"time"

	"github.com/kandev/agentengine/internal/agent/adapter"
	"github.com/kandev/agentengine/internal/agent/executor"
	"github.com/kandev/agentengine/internal/common/logger"
	"github.com/kandev/agentengine/internal/event"
	"github.com/kandev/agentengine/internal/process"
	"github.com/kandev/agentengine/internal/session"
	"github.com/kandev/agentengine/internal/task"
	"go.uber.org/zap"
)

// statusPollInterval matches the teacher's DefaultStatusTrackerConfig.
const statusPollInterval = 100 * time.Millisecond

// Executor implements executor.Executor for agents that write free-form
// ANSI text to stdout and only expose a session id indirectly, via a debug
// log file (§4.4.c).
type Executor struct {
	adapter adapter.Adapter
	procs   *process.Manager
	log     *logger.Logger

	mu      sync.Mutex
	logDirs map[string]string // process id -> discovery log dir
	store   *session.Store
}

// New constructs a plain-text executor bound to a.
func New(a adapter.Adapter, procs *process.Manager, log *logger.Logger) *Executor {
	return &Executor{adapter: a, procs: procs, log: log, logDirs: make(map[string]string)}
}

func (e *Executor) SetApprovalService(executor.ApprovalService) {}

// SetSessionStore wires store into NormalizeOutput's write path (§4.4.d).
// This protocol has no resumable session id of its own, so entries are
// keyed by task id (child.Process.ID), the same identity ExecuteTask
// acquired the process under.
func (e *Executor) SetSessionStore(store *session.Store) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store = store
}

func (e *Executor) GetCapabilities() executor.Capabilities {
	return executor.Capabilities{
		SupportsSessionResume:        false,
		SupportsApprovals:            false,
		SupportsMcp:                  false,
		Protocol:                     executor.ProtocolCustom,
		SupportsMidExecutionMessages: false,
	}
}

func (e *Executor) CheckAvailability(ctx context.Context) bool {
	cfg, err := e.adapter.BuildProcessConfig(e.adapter.GetDefaultConfig())
	return err == nil && cfg.Executable != ""
}

func (e *Executor) ExecuteTask(ctx context.Context, t task.Task) (executor.SpawnedChild, error) {
	return e.spawn(ctx, t)
}

// ResumeTask is unsupported: this protocol has no session/load analog; the
// caller should synthesize a resume prompt via internal/session and call
// ExecuteTask instead.
func (e *Executor) ResumeTask(ctx context.Context, t task.Task, sessionID string) (executor.SpawnedChild, error) {
	return executor.SpawnedChild{}, executor.ErrUnsupported
}

func (e *Executor) spawn(ctx context.Context, t task.Task) (executor.SpawnedChild, error) {
	agentName, _ := t.Config.Metadata["agent"].(string)
	if agentName == "" {
		agentName = "agent"
	}

	logDir, err := newLogDir(agentName, t.WorkDir)
	if err != nil {
		return executor.SpawnedChild{}, err
	}

	agentCfg := adapter.AgentConfig{}
	for k, v := range t.Config.Metadata {
		agentCfg[k] = v
	}
	agentCfg["noColor"] = true
	agentCfg["logLevel"] = "debug"
	agentCfg["logDir"] = logDir

	cfg, err := e.adapter.BuildProcessConfig(agentCfg)
	if err != nil {
		return executor.SpawnedChild{}, fmt.Errorf("plaintext: build process config: %w", err)
	}
	cfg.Mode = process.ModeInteractive
	cfg.WorkDir = t.WorkDir
	cfg.Timeout = t.Config.Timeout

	mp, err := e.procs.Acquire(ctx, t.ID, cfg)
	if err != nil {
		return executor.SpawnedChild{}, fmt.Errorf("plaintext: acquire process: %w", err)
	}

	if _, err := mp.Streams.Stdin.Write([]byte(t.Prompt)); err != nil {
		e.log.Warn("failed writing prompt to stdin", zap.Error(err))
	}
	// Stdin is the same PTY master that Stdout reads from, so it stays open:
	// closing it would end the output stream NormalizeOutput consumes.

	e.mu.Lock()
	e.logDirs[mp.ID] = logDir
	e.mu.Unlock()

	exitSignal := make(chan struct{})
	go func() {
		mp.Wait()
		close(exitSignal)
	}()

	return executor.SpawnedChild{Process: mp, ExitSignal: exitSignal}, nil
}

func (e *Executor) SendMessage(ctx context.Context, child executor.SpawnedChild, text string) error {
	return executor.ErrUnsupported
}

// Interrupt sends SIGTERM, per §5's "SIGTERM for §4.4.a/c".
func (e *Executor) Interrupt(ctx context.Context, child executor.SpawnedChild) error {
	if child.Process == nil {
		return executor.ErrUnsupported
	}
	return child.Process.Signal(syscall.SIGTERM)
}

// syncWriter serializes writes from the stdout-copy goroutine and the
// discovery-poller goroutine into a single io.Writer, so the marker line
// formatSessionLine produces never interleaves mid-line with child output.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// NormalizeOutput strips ANSI, batches lines into paragraphs, and recognizes
// the session-id marker line as soon as the discovery poller finds it
// (§4.4.c). The marker is not delivered out of band: the poller writes the
// formatted marker line into the same byte stream the child's own stdout is
// copied into, via a shared io.Pipe, so a single scanner observes both as
// ordinary lines in arrival order.
func (e *Executor) NormalizeOutput(child executor.SpawnedChild, workDir string) (<-chan event.NormalizedEntry, error) {
	if child.Process == nil {
		return nil, fmt.Errorf("plaintext: no process in spawned child")
	}

	e.mu.Lock()
	logDir, ok := e.logDirs[child.Process.ID]
	store := e.store
	delete(e.logDirs, child.Process.ID)
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("plaintext: no log dir bound for process %q", child.Process.ID)
	}

	out := make(chan event.NormalizedEntry, 64)
	norm := NewNormalizer()
	sessionKey := child.Process.ID

	pr, pw := io.Pipe()
	sw := &syncWriter{w: pw}
	statusTracker := NewStatusTracker(e.log, nil) // onChange wired below, once out/persist are in scope

	var ioWG sync.WaitGroup
	ioWG.Add(2)

	go func() {
		defer ioWG.Done()
		io.Copy(io.MultiWriter(sw, statusTracker), child.Process.Streams.Stdout)
	}()

	pollCtx, cancelPoll := context.WithCancel(context.Background())
	go func() {
		<-child.ExitSignal
		cancelPoll()
	}()

	go func() {
		defer ioWG.Done()
		if id := pollForSessionID(pollCtx, logDir, e.log); id != "" {
			if _, err := sw.Write([]byte(formatSessionLine(id))); err != nil {
				e.log.Warn("failed writing session marker into output stream", zap.Error(err))
			}
		}
	}()

	go func() {
		ioWG.Wait()
		pw.Close()
	}()

	var outWG sync.WaitGroup
	outWG.Add(2)

	statusTracker.onChange = func(state AgentState) {
		entry := event.NormalizedEntry{
			Index:     norm.NextIndex(),
			Op:        event.PatchAdd,
			Type:      event.EntrySystemMessage,
			Content:   "agent state: " + string(state),
			Timestamp: time.Now(),
		}
		out <- entry
		e.persist(store, sessionKey, entry)
	}
	go func() {
		defer outWG.Done()
		statusTracker.Run(statusPollInterval, pollCtx.Done())
	}()

	go func() {
		defer outWG.Done()
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			var entries []event.NormalizedEntry
			if id, ok := parseSessionLine(line); ok {
				entries = norm.FeedMarker(id)
			} else {
				entries = norm.FeedLine(line)
			}
			for _, entry := range entries {
				out <- entry
				e.persist(store, sessionKey, entry)
			}
		}
		for _, entry := range norm.Flush() {
			out <- entry
			e.persist(store, sessionKey, entry)
		}
	}()

	go func() {
		outWG.Wait()
		close(out)
	}()

	return out, nil
}

// persist appends entry to store under sessionKey, if store is configured
// and entry has a persisted analog (§4.4.d). Store failures are logged,
// never propagated.
func (e *Executor) persist(store *session.Store, sessionKey string, entry event.NormalizedEntry) {
	if store == nil {
		return
	}
	evt, ok := session.FromNormalizedEntry(entry)
	if !ok {
		return
	}
	if err := store.Append(sessionKey, evt); err != nil {
		e.log.Warn("failed to persist session event", zap.String("session_id", sessionKey), zap.Error(err))
	}
}
