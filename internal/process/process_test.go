package process

import (
	"context"
	"io"
	"syscall"
	"testing"

	"github.com/kandev/agentengine/internal/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerAcquireRunsLocalProcess(t *testing.T) {
	m := NewManager(2, logger.Default())
	defer m.Shutdown()

	mp, err := m.Acquire(context.Background(), "task-1", Config{
		Executable: "/bin/echo",
		Args:       []string{"hello"},
	})
	require.NoError(t, err)
	require.NotNil(t, mp.Streams.Stdout)

	out, err := io.ReadAll(mp.Streams.Stdout)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(out))

	require.NoError(t, mp.Wait())
	assert.Equal(t, 0, mp.ExitCode())
}

func TestManagerAcquireAtCapacity(t *testing.T) {
	m := NewManager(1, logger.Default())
	defer m.Shutdown()

	mp, err := m.Acquire(context.Background(), "task-1", Config{
		Executable: "/bin/sleep",
		Args:       []string{"1"},
	})
	require.NoError(t, err)
	defer mp.Wait()

	_, err = m.Acquire(context.Background(), "task-2", Config{Executable: "/bin/echo"})
	assert.ErrorIs(t, err, ErrAtCapacity)
}

func TestManagerAcquireDockerModeWithoutLauncherFails(t *testing.T) {
	m := NewManager(1, logger.Default())
	defer m.Shutdown()

	_, err := m.Acquire(context.Background(), "task-1", Config{
		Executable: "agent",
		Mode:       ModeDocker,
	})
	require.Error(t, err)
}

func TestManagerShutdownRejectsFurtherAcquire(t *testing.T) {
	m := NewManager(2, logger.Default())
	m.Shutdown()

	_, err := m.Acquire(context.Background(), "task-1", Config{Executable: "/bin/echo"})
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestManagedProcessSignal(t *testing.T) {
	m := NewManager(1, logger.Default())
	defer m.Shutdown()

	mp, err := m.Acquire(context.Background(), "task-1", Config{
		Executable: "/bin/sleep",
		Args:       []string{"5"},
	})
	require.NoError(t, err)

	require.NoError(t, mp.Signal(syscall.SIGTERM))

	err = mp.Wait()
	assert.Error(t, err, "a sleep killed by SIGTERM should report a non-nil wait error")
}
