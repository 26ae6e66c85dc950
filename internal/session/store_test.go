package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kandev/agentengine/internal/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), logger.Default())
	require.NoError(t, err)
	return s
}

func TestStoreAppendAndRead(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Append("sess-1", SessionEvent{Type: EventUser, Content: "hello"}))
	require.NoError(t, s.Append("sess-1", SessionEvent{Type: EventAssistant, Content: "hi there"}))

	events, err := s.Read("sess-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventUser, events[0].Type)
	assert.Equal(t, "hello", events[0].Content)
	assert.Equal(t, EventAssistant, events[1].Type)
}

func TestStoreReadMissingSession(t *testing.T) {
	s := newTestStore(t)
	events, err := s.Read("does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, events)
}

func TestStoreHasHistory(t *testing.T) {
	s := newTestStore(t)
	assert.False(t, s.HasHistory("sess-1"))
	require.NoError(t, s.Append("sess-1", SessionEvent{Type: EventUser, Content: "hi"}))
	assert.True(t, s.HasHistory("sess-1"))
}

func TestStoreFork(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Append("sess-1", SessionEvent{Type: EventUser, Content: "hi"}))
	require.NoError(t, s.Append("sess-1", SessionEvent{Type: EventAssistant, Content: "hello back"}))

	require.NoError(t, s.Fork("sess-1", "sess-2"))

	forked, err := s.Read("sess-2")
	require.NoError(t, err)
	require.Len(t, forked, 2)
	assert.Equal(t, "hi", forked[0].Content)
}

func TestStoreForkMissingSource(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Fork("nonexistent", "sess-2"))
	assert.False(t, s.HasHistory("sess-2"))
}

func TestStoreDelete(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Append("sess-1", SessionEvent{Type: EventUser, Content: "hi"}))
	require.NoError(t, s.Delete("sess-1"))
	assert.False(t, s.HasHistory("sess-1"))
}

func TestStoreDropsUnparsableLines(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Append("sess-1", SessionEvent{Type: EventUser, Content: "hi"}))

	// Corrupt the file with a trailing unparsable line.
	path := filepath.Join(s.baseDir, "sess-1.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	events, err := s.Read("sess-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
}
