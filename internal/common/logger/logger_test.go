package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLoggerWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	log, err := NewLogger(LoggingConfig{Level: "info", Format: "json", OutputPath: path})
	require.NoError(t, err)

	log.Info("hello", zap.String("k", "v"))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "v", entry["k"])
}

func TestNewLoggerInvalidLevelFallsBackToInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	log, err := NewLogger(LoggingConfig{Level: "not-a-level", Format: "json", OutputPath: path})
	require.NoError(t, err)

	assert.True(t, log.Zap().Core().Enabled(zapcore.InfoLevel))
	assert.False(t, log.Zap().Core().Enabled(zapcore.DebugLevel))
}

func TestWithFieldsChainsWithoutMutatingParent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	base, err := NewLogger(LoggingConfig{Level: "info", Format: "json", OutputPath: path})
	require.NoError(t, err)

	child := base.WithTaskID("t1").WithAgentID("a1")
	child.Info("with fields")
	require.NoError(t, child.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "t1", entry["task_id"])
	assert.Equal(t, "a1", entry["agent_id"])
}

func TestWithContextAddsCorrelationAndRequestIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	base, err := NewLogger(LoggingConfig{Level: "info", Format: "json", OutputPath: path})
	require.NoError(t, err)

	ctx := context.WithValue(context.Background(), CorrelationIDKey, "corr-1")
	ctx = context.WithValue(ctx, RequestIDKey, "req-1")

	base.WithContext(ctx).Info("tagged")
	require.NoError(t, base.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "corr-1", entry["correlation_id"])
	assert.Equal(t, "req-1", entry["request_id"])
}

func TestWithContextNoValuesReturnsSameLogger(t *testing.T) {
	base, err := NewLogger(LoggingConfig{Level: "info", Format: "json", OutputPath: "stdout"})
	require.NoError(t, err)

	got := base.WithContext(context.Background())
	assert.Same(t, base, got)
}

func TestDefaultReturnsSingleton(t *testing.T) {
	assert.Same(t, Default(), Default())
}

