package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/kandev/agentengine/internal/agent/registry"
	"github.com/kandev/agentengine/internal/common/logger"
	"github.com/kandev/agentengine/internal/task"
	"go.uber.org/zap"
)

// engineRunner bridges the scheduler's Runner interface to the agent
// protocol layer: it looks the task's agent up in the registry, runs it to
// completion, and folds its normalized output stream into a task.Result.
type engineRunner struct {
	log *logger.Logger
}

func newEngineRunner(log *logger.Logger) *engineRunner {
	return &engineRunner{log: log}
}

func (r *engineRunner) Run(ctx context.Context, t task.Task) task.Result {
	agentName, _ := t.Config.Metadata["agent"].(string)
	if agentName == "" {
		agentName = "echo"
	}

	_, exec, err := registry.Get(agentName)
	if err != nil {
		return task.Result{TaskID: t.ID, Success: false, Error: err.Error()}
	}

	child, err := exec.ExecuteTask(ctx, t)
	if err != nil {
		return task.Result{TaskID: t.ID, Success: false, Error: err.Error()}
	}

	entries, err := exec.NormalizeOutput(child, t.WorkDir)
	if err != nil {
		return task.Result{TaskID: t.ID, Success: false, Error: err.Error()}
	}

	var out strings.Builder
	for entry := range entries {
		if entry.Content == "" {
			continue
		}
		if out.Len() > 0 {
			out.WriteByte('\n')
		}
		out.WriteString(entry.Content)
	}

	waitErr := child.Process.Wait()

	exitCode := 0
	if child.Process != nil {
		exitCode = child.Process.ExitCode()
	}

	if waitErr != nil {
		r.log.Warn("task process exited with error",
			zap.String("taskId", t.ID), zap.Error(waitErr), zap.Int("exitCode", exitCode))
		return task.Result{
			TaskID: t.ID, Success: false, Output: out.String(),
			Error: fmt.Sprintf("process exited: %v", waitErr), ExitCode: exitCode,
		}
	}

	return task.Result{TaskID: t.ID, Success: true, Output: out.String(), ExitCode: exitCode}
}
