package session

import (
	"strings"
	"testing"

	"github.com/kandev/agentengine/internal/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResumePromptNoHistory(t *testing.T) {
	s, err := NewStore(t.TempDir(), logger.Default())
	require.NoError(t, err)

	prompt, err := s.ResumePrompt("unknown", "do the thing", 0)
	require.NoError(t, err)
	assert.Equal(t, "do the thing", prompt)
}

func TestResumePromptReplaysRecentEvents(t *testing.T) {
	s, err := NewStore(t.TempDir(), logger.Default())
	require.NoError(t, err)

	require.NoError(t, s.Append("sess-1", SessionEvent{Type: EventUser, Content: "first message"}))
	require.NoError(t, s.Append("sess-1", SessionEvent{Type: EventAssistant, Content: "first reply"}))

	prompt, err := s.ResumePrompt("sess-1", "continue please", 0)
	require.NoError(t, err)

	assert.True(t, strings.Contains(prompt, "user: first message"))
	assert.True(t, strings.Contains(prompt, "assistant: first reply"))
	assert.True(t, strings.Contains(prompt, "---\n"))
	assert.True(t, strings.HasSuffix(prompt, "New request: continue please"))
}

func TestResumePromptTruncatesToN(t *testing.T) {
	s, err := NewStore(t.TempDir(), logger.Default())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append("sess-1", SessionEvent{Type: EventUser, Content: "msg"}))
	}

	prompt, err := s.ResumePrompt("sess-1", "continue", 2)
	require.NoError(t, err)

	assert.Equal(t, 2, strings.Count(prompt, "user: msg"))
}
