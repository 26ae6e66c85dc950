// Package main is a wiring/demo entrypoint for the agent execution engine:
// it assembles the Process Manager, agent registry, resilience layer,
// scheduler, session store, and workflow orchestrator, then runs one demo
// task through the whole stack. It is not a CLI front end — config loading,
// HTTP routing, and auth all live out of scope per the spec's non-goals.
package main

import (
	"context"
	"fmt"
	"os"
	osexec "os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kandev/agentengine/internal/agent/adapter"
	"github.com/kandev/agentengine/internal/agent/copilot"
	"github.com/kandev/agentengine/internal/agent/executor"
	"github.com/kandev/agentengine/internal/agent/registry"
	"github.com/kandev/agentengine/internal/agent/streamjson"
	"github.com/kandev/agentengine/internal/common/config"
	"github.com/kandev/agentengine/internal/common/logger"
	"github.com/kandev/agentengine/internal/events/bus"
	"github.com/kandev/agentengine/internal/process"
	"github.com/kandev/agentengine/internal/process/dockerproc"
	"github.com/kandev/agentengine/internal/resilience"
	"github.com/kandev/agentengine/internal/scheduler"
	"github.com/kandev/agentengine/internal/session"
	"github.com/kandev/agentengine/internal/task"
	"github.com/kandev/agentengine/internal/workflow"
)

func main() {
	// 1. Load configuration.
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger.
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("starting agent engine")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Event bus: NATS when configured, in-memory otherwise.
	eventBus, closeBus := newEventBus(cfg, log)
	defer closeBus()

	// 4. Process Manager, with the Docker launcher wired in only when enabled.
	procs := newProcessManager(cfg, log)
	defer procs.Shutdown()

	// 5. Session store, so every executor's output is persisted as well as
	// streamed (§4.4.d).
	sessionStore, err := session.NewStore(cfg.Session.BaseDir, log)
	if err != nil {
		log.Fatal("failed to initialize session store", zap.Error(err))
	}

	// 6. Register the demo agent. A real deployment registers one entry per
	// supported agent binary.
	registerDemoAgent(procs, log, sessionStore)

	// 7. Scheduling engine, wrapped in the resilience layer's retries and
	// circuit breaker.
	resilient := resilience.New(newEngineRunner(log), retryPolicyFrom(cfg), breakerConfigFrom(cfg), log)
	sched := scheduler.New(scheduler.Config{
		MaxConcurrent: cfg.Scheduler.MaxConcurrent,
		MaxRetries:    cfg.Scheduler.MaxRetries,
	}, resilient, log, eventBus)
	defer sched.Shutdown()

	// 8. Workflow orchestrator, wired but not driven by the demo task below
	// — available for a caller that needs multi-step workflows.
	orchestrator := workflow.New(resilient, nil, log)
	_ = orchestrator

	// 9. Submit a demo task and wait for it.
	workDir, err := os.MkdirTemp("", "agentengine-demo-*")
	if err != nil {
		log.Fatal("failed to create demo work dir", zap.Error(err))
	}
	defer os.RemoveAll(workDir)

	demoTask := task.Task{
		ID:        "demo-task-1",
		Type:      "demo",
		Prompt:    "summarize the README",
		WorkDir:   workDir,
		CreatedAt: time.Now(),
		Config:    task.Config{Metadata: map[string]any{"agent": "echo"}},
	}

	if _, err := sched.SubmitTask(demoTask); err != nil {
		log.Fatal("failed to submit demo task", zap.Error(err))
	}

	resultCtx, resultCancel := context.WithTimeout(ctx, 30*time.Second)
	result, err := sched.WaitForTask(resultCtx, demoTask.ID)
	resultCancel()
	if err != nil {
		log.Error("demo task did not complete", zap.Error(err))
	} else {
		log.Info("demo task completed",
			zap.Bool("success", result.Success), zap.String("output", result.Output))
	}

	// 10. Wait for shutdown signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down agent engine")
}

func newEventBus(cfg *config.Config, log *logger.Logger) (bus.EventBus, func()) {
	if cfg.NATS.URL == "" {
		b := bus.NewMemoryEventBus(log)
		return b, b.Close
	}
	b, err := bus.NewNATSEventBus(cfg.NATS, log)
	if err != nil {
		log.Warn("failed to connect to NATS, falling back to in-memory event bus", zap.Error(err))
		mem := bus.NewMemoryEventBus(log)
		return mem, mem.Close
	}
	return b, b.Close
}

func newProcessManager(cfg *config.Config, log *logger.Logger) *process.Manager {
	if !cfg.Docker.Enabled {
		return process.NewManager(cfg.Process.MaxSlots, log)
	}
	launcher, err := dockerproc.New(cfg.Docker, "agentengine/demo-agent:latest", log)
	if err != nil {
		log.Warn("docker launcher unavailable, falling back to local process launch", zap.Error(err))
		return process.NewManager(cfg.Process.MaxSlots, log)
	}
	return process.NewManagerWithLauncher(cfg.Process.MaxSlots, log, launcher)
}

func registerDemoAgent(procs *process.Manager, log *logger.Logger, store *session.Store) {
	a := newEchoAdapter(mockAgentBinaryPath())
	registry.Register("echo",
		func() adapter.Adapter { return a },
		func() executor.Executor {
			exec := streamjson.New(a, procs, log)
			exec.SetSessionStore(store)
			return exec
		},
	)

	// Registered alongside the demo agent so a deployment with the Copilot
	// CLI on PATH gets the SDK-backed executor with no extra wiring; absent
	// the binary, CheckAvailability reports it unavailable (§4.4).
	copilotBin, _ := osexec.LookPath("copilot")
	ca := newCopilotAdapter(copilotBin)
	registry.Register("copilot",
		func() adapter.Adapter { return ca },
		func() executor.Executor {
			ex := copilot.New(ca, procs, log)
			ex.SetSessionStore(store)
			return ex
		},
	)
}

func mockAgentBinaryPath() string {
	if p := os.Getenv("AGENTENGINE_MOCK_AGENT_PATH"); p != "" {
		return p
	}
	return filepath.Join(os.TempDir(), "agentengine-mock-agent")
}

func retryPolicyFrom(cfg *config.Config) resilience.RetryPolicy {
	backoff := resilience.BackoffExponential
	if cfg.Resilience.BackoffKind == "fixed" {
		backoff = resilience.BackoffFixed
	}
	return resilience.RetryPolicy{
		MaxAttempts:         cfg.Resilience.MaxAttempts,
		Backoff:             backoff,
		BaseDelay:           time.Duration(cfg.Resilience.BaseDelayMs) * time.Millisecond,
		MaxDelay:            time.Duration(cfg.Resilience.MaxDelayMs) * time.Millisecond,
		Jitter:              cfg.Resilience.Jitter,
		RetryableExitCodes:  cfg.Resilience.RetryableExitCodes,
		RetryableSubstrings: cfg.Resilience.RetryableErrors,
	}
}

func breakerConfigFrom(cfg *config.Config) resilience.BreakerConfig {
	return resilience.BreakerConfig{
		FailureThreshold: cfg.Resilience.FailureThreshold,
		SuccessThreshold: cfg.Resilience.SuccessThreshold,
		OpenTimeout:      cfg.Resilience.BreakerTimeout(),
	}
}
