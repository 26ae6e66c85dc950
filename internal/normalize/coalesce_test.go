package normalize

import (
	"testing"

	"github.com/kandev/agentengine/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func indexer() func() int64 {
	var i int64
	return func() int64 { i++; return i }
}

func TestCoalescerMergesSameRoleChunks(t *testing.T) {
	c := NewCoalescer(true, indexer())

	_, ok := c.Feed(RoleAssistant, "hello ")
	assert.False(t, ok)
	_, ok = c.Feed(RoleAssistant, "world")
	assert.False(t, ok)

	entry, ok := c.Flush()
	require.True(t, ok)
	assert.Equal(t, "hello world", entry.Content)
	assert.Equal(t, event.EntryAssistantMessage, entry.Type)
}

func TestCoalescerFlushesOnRoleSwitch(t *testing.T) {
	c := NewCoalescer(true, indexer())

	c.Feed(RoleUser, "question")
	entry, ok := c.Feed(RoleAssistant, "answer")
	require.True(t, ok)
	assert.Equal(t, "question", entry.Content)
	assert.Equal(t, event.EntryUserMessage, entry.Type)

	final, ok := c.Flush()
	require.True(t, ok)
	assert.Equal(t, "answer", final.Content)
}

func TestCoalescerDropsWhitespaceOnlyBuffer(t *testing.T) {
	c := NewCoalescer(true, indexer())
	c.Feed(RoleAssistant, "   \n\t")
	_, ok := c.Flush()
	assert.False(t, ok)
}

func TestCoalescerDisabledEmitsImmediately(t *testing.T) {
	c := NewCoalescer(false, indexer())

	entry, ok := c.Feed(RoleThinking, "chunk one")
	require.True(t, ok)
	assert.Equal(t, "chunk one", entry.Content)
	assert.Equal(t, event.EntryThinking, entry.Type)

	entry2, ok := c.Feed(RoleThinking, "chunk two")
	require.True(t, ok)
	assert.Equal(t, "chunk two", entry2.Content)
}

func TestCoalescerFlushWithNothingPendingIsNoop(t *testing.T) {
	c := NewCoalescer(true, indexer())
	_, ok := c.Flush()
	assert.False(t, ok)
}
