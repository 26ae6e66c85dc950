package streamjson

import (
	"context"
	"testing"
	"time"

	"github.com/kandev/agentengine/internal/agent/adapter"
	"github.com/kandev/agentengine/internal/agent/executor"
	"github.com/kandev/agentengine/internal/common/logger"
	"github.com/kandev/agentengine/internal/event"
	"github.com/kandev/agentengine/internal/process"
	"github.com/kandev/agentengine/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptAdapter struct {
	script string
}

func (a *scriptAdapter) Metadata() adapter.Metadata {
	return adapter.Metadata{Name: "script"}
}

func (a *scriptAdapter) BuildProcessConfig(adapter.AgentConfig) (process.Config, error) {
	return process.Config{Executable: "/bin/sh", Args: []string{"-c", a.script}}, nil
}

func (a *scriptAdapter) ValidateConfig(adapter.AgentConfig) []error { return nil }

func (a *scriptAdapter) GetDefaultConfig() adapter.AgentConfig { return adapter.AgentConfig{} }

func TestExecutorExecuteTaskAndNormalizeOutput(t *testing.T) {
	script := `printf '%s\n' '{"type":"assistant","message":{"content":[{"type":"text","text":"hi"}]}}' '{"type":"result","result":"ok"}'`
	a := &scriptAdapter{script: script}
	procs := process.NewManager(2, logger.Default())
	defer procs.Shutdown()

	e := New(a, procs, logger.Default())

	child, err := e.ExecuteTask(context.Background(), task.Task{ID: "t1"})
	require.NoError(t, err)

	entries, err := e.NormalizeOutput(child, "")
	require.NoError(t, err)

	var got []event.NormalizedEntry
	for entry := range entries {
		got = append(got, entry)
	}

	require.NoError(t, child.Process.Wait())
	require.Len(t, got, 1)
	assert.Equal(t, "hi", got[0].Content)
}

func TestExecutorSendMessageUnsupported(t *testing.T) {
	a := &scriptAdapter{script: "true"}
	procs := process.NewManager(1, logger.Default())
	defer procs.Shutdown()

	e := New(a, procs, logger.Default())
	err := e.SendMessage(context.Background(), executor.SpawnedChild{}, "hi")
	assert.ErrorIs(t, err, executor.ErrUnsupported)
}

func TestExecutorCheckAvailability(t *testing.T) {
	procs := process.NewManager(1, logger.Default())
	defer procs.Shutdown()

	e := New(&scriptAdapter{script: "true"}, procs, logger.Default())
	assert.True(t, e.CheckAvailability(context.Background()))
}

func TestExecutorGetCapabilities(t *testing.T) {
	procs := process.NewManager(1, logger.Default())
	defer procs.Shutdown()

	e := New(&scriptAdapter{}, procs, logger.Default())
	caps := e.GetCapabilities()
	assert.Equal(t, executor.ProtocolStreamJSON, caps.Protocol)
	assert.False(t, caps.SupportsMidExecutionMessages)
}

func TestExecutorExecuteTaskRespectsTimeout(t *testing.T) {
	a := &scriptAdapter{script: "sleep 5"}
	procs := process.NewManager(1, logger.Default())
	defer procs.Shutdown()

	e := New(a, procs, logger.Default())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	child, err := e.ExecuteTask(ctx, task.Task{ID: "t1"})
	require.NoError(t, err)

	select {
	case <-child.ExitSignal:
	case <-time.After(2 * time.Second):
		t.Fatal("process was not cancelled by context timeout")
	}
}
