package streamjson

import (
	"testing"

	"github.com/kandev/agentengine/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedLineCapturesSessionIDFromInit(t *testing.T) {
	n := NewNormalizer()

	entries := n.FeedLine([]byte(`{"type":"system","subtype":"init","session_id":"sess-1"}`))
	assert.Empty(t, entries)
	assert.Equal(t, "sess-1", n.SessionID())
}

func TestFeedLineInvalidJSONIsDroppedSilently(t *testing.T) {
	n := NewNormalizer()
	assert.Nil(t, n.FeedLine([]byte("not json")))
}

func TestFeedLineAssistantTextCoalescesUntilFlush(t *testing.T) {
	n := NewNormalizer()

	entries := n.FeedLine([]byte(`{"type":"assistant","message":{"content":[{"type":"text","text":"hello"}]}}`))
	assert.Empty(t, entries, "a single chunk stays buffered until a flush-triggering event")

	entries = n.FeedLine([]byte(`{"type":"result","result":"ok"}`))
	require.Len(t, entries, 1)
	assert.Equal(t, event.EntryAssistantMessage, entries[0].Type)
	assert.Equal(t, "hello", entries[0].Content)
}

func TestFeedLineToolUseThenResultTracksLifecycle(t *testing.T) {
	n := NewNormalizer()

	created := n.FeedLine([]byte(`{"type":"tool_use","tool_call":{"id":"c1","name":"read","kind":"execute","title":"read file"}}`))
	require.Len(t, created, 1)
	assert.Equal(t, event.EntryToolUse, created[0].Type)
	require.NotNil(t, created[0].Tool)
	assert.Equal(t, "c1", created[0].Tool.ID)

	updated := n.FeedLine([]byte(`{"type":"tool_result","tool_call":{"id":"c1","status":"completed","raw_output":"done"}}`))
	require.Len(t, updated, 1)
	assert.Equal(t, event.ToolStatusSuccess, updated[0].Tool.Status)
}

func TestFeedLinePlanFlushesPendingTextFirst(t *testing.T) {
	n := NewNormalizer()

	n.FeedLine([]byte(`{"type":"assistant","message":{"content":[{"type":"text","text":"thinking aloud"}]}}`))

	entries := n.FeedLine([]byte(`{"type":"plan","plan":[{"content":"step one","status":"pending"}]}`))
	require.Len(t, entries, 2)
	assert.Equal(t, event.EntryAssistantMessage, entries[0].Type)
	assert.Equal(t, event.EntrySystemMessage, entries[1].Type)
}

func TestFeedLineResultFlushesCoalescedText(t *testing.T) {
	n := NewNormalizer()

	n.FeedLine([]byte(`{"type":"assistant","message":{"content":[{"type":"text","text":"final answer"}]}}`))
	entries := n.FeedLine([]byte(`{"type":"result","result":"ok"}`))

	require.Len(t, entries, 1)
	assert.Equal(t, "final answer", entries[0].Content)
}
