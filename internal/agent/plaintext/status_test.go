package plaintext

import (
	"testing"
	"time"

	"github.com/kandev/agentengine/internal/common/logger"
	"github.com/stretchr/testify/assert"
)

func TestGenericDetectorRecognizesWorkingPattern(t *testing.T) {
	var d GenericDetector
	lines := []string{"✻ Reading files... (esc to interrupt)"}
	assert.Equal(t, StateWorking, d.DetectState(lines))
}

func TestGenericDetectorRecognizesApprovalPrompt(t *testing.T) {
	var d GenericDetector
	lines := []string{"Do you want to proceed? [y/n]"}
	assert.Equal(t, StateWaitingApproval, d.DetectState(lines))
}

func TestGenericDetectorRecognizesBoxedInputAsWaitingForInput(t *testing.T) {
	var d GenericDetector
	lines := []string{"──────────────", "> ", "──────────────"}
	assert.Equal(t, StateWaitingInput, d.DetectState(lines))
}

func TestGenericDetectorReturnsUnknownForPlainOutput(t *testing.T) {
	var d GenericDetector
	assert.Equal(t, StateUnknown, d.DetectState([]string{"just some ordinary output"}))
}

func TestGenericDetectorAlwaysAcceptsTransitions(t *testing.T) {
	var d GenericDetector
	assert.True(t, d.ShouldAcceptStateChange(StateWorking, StateWaitingInput))
}

func TestStatusTrackerEmitsOnWorkingPatternWrite(t *testing.T) {
	changes := make(chan AgentState, 4)
	st := NewStatusTracker(logger.Default(), func(s AgentState) { changes <- s })

	_, err := st.Write([]byte("✻ Thinking… (esc to interrupt)\r\n"))
	assert.NoError(t, err)
	st.Poll()

	select {
	case s := <-changes:
		assert.Equal(t, StateWorking, s)
	case <-time.After(time.Second):
		t.Fatal("expected a state change")
	}
}

func TestStatusTrackerDoesNotReemitSameState(t *testing.T) {
	var calls int
	st := NewStatusTracker(logger.Default(), func(AgentState) { calls++ })

	_, _ = st.Write([]byte("✻ Thinking… (esc to interrupt)\r\n"))
	st.Poll()
	st.Poll()

	assert.Equal(t, 1, calls)
}
