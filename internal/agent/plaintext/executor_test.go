package plaintext

import (
	"context"
	"testing"

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

func (a *scriptAdapter) Metadata() adapter.Metadata { return adapter.Metadata{Name: "script"} }

func (a *scriptAdapter) BuildProcessConfig(adapter.AgentConfig) (process.Config, error) {
	return process.Config{Executable: "/bin/sh", Args: []string{"-c", a.script}}, nil
}

func (a *scriptAdapter) ValidateConfig(adapter.AgentConfig) []error { return nil }

func (a *scriptAdapter) GetDefaultConfig() adapter.AgentConfig { return adapter.AgentConfig{} }

func TestExecutorNormalizeOutputBatchesParagraphsAndFlushesAtEOF(t *testing.T) {
	script := `printf 'line one\nline two\n\nline three\n'`
	a := &scriptAdapter{script: script}
	procs := process.NewManager(2, logger.Default())
	defer procs.Shutdown()

	e := New(a, procs, logger.Default())

	child, err := e.ExecuteTask(context.Background(), task.Task{ID: "t1", WorkDir: t.TempDir()})
	require.NoError(t, err)

	entries, err := e.NormalizeOutput(child, "")
	require.NoError(t, err)

	var got []event.NormalizedEntry
	for entry := range entries {
		got = append(got, entry)
	}
	require.NoError(t, child.Process.Wait())

	require.GreaterOrEqual(t, len(got), 3)
	assert.Equal(t, "line one\nline two", got[1].Content)
	assert.Equal(t, "line three", got[len(got)-1].Content)
}

func TestExecutorResumeTaskUnsupported(t *testing.T) {
	procs := process.NewManager(1, logger.Default())
	defer procs.Shutdown()

	e := New(&scriptAdapter{}, procs, logger.Default())
	_, err := e.ResumeTask(context.Background(), task.Task{}, "sess-1")
	assert.ErrorIs(t, err, executor.ErrUnsupported)
}

func TestExecutorNormalizeOutputRequiresExecuteTaskFirst(t *testing.T) {
	procs := process.NewManager(1, logger.Default())
	defer procs.Shutdown()

	e := New(&scriptAdapter{}, procs, logger.Default())
	mp, err := procs.Acquire(context.Background(), "bare", process.Config{Executable: "/bin/true"})
	require.NoError(t, err)
	defer mp.Wait()

	_, err = e.NormalizeOutput(executor.SpawnedChild{Process: mp}, "")
	assert.Error(t, err, "no log dir was bound for a process never spawned via spawn()")
}

func TestExecutorGetCapabilities(t *testing.T) {
	procs := process.NewManager(1, logger.Default())
	defer procs.Shutdown()

	e := New(&scriptAdapter{}, procs, logger.Default())
	caps := e.GetCapabilities()
	assert.Equal(t, executor.ProtocolCustom, caps.Protocol)
	assert.False(t, caps.SupportsSessionResume)
}
