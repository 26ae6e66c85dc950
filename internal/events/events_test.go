package events

import (
	"testing"

	"github.com/kandev/agentengine/internal/common/config"
	"github.com/kandev/agentengine/internal/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvideWithoutNATSURLReturnsMemoryBus(t *testing.T) {
	cfg := &config.Config{}
	provided, cleanup, err := Provide(cfg, logger.Default())
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, provided.Memory)
	assert.Nil(t, provided.NATS)
	assert.Equal(t, provided.Memory, provided.Bus)
}

func TestProvideWithUnreachableNATSURLReturnsError(t *testing.T) {
	cfg := &config.Config{}
	cfg.NATS.URL = "nats://127.0.0.1:1"
	_, _, err := Provide(cfg, logger.Default())
	assert.Error(t, err)
}

func TestBuildEntrySubject(t *testing.T) {
	assert.Equal(t, "agent.entry.task-1", BuildEntrySubject("task-1"))
}

func TestBuildEntryWildcardSubject(t *testing.T) {
	assert.Equal(t, "agent.entry.*", BuildEntryWildcardSubject())
}
