// Status tracking feeds the child's raw PTY bytes through a virtual terminal
// emulator so interactive CLIs that redraw their own TUI (spinners, boxed
// input prompts, approval menus) still yield a working/waiting state even
// though their scrollback is not line-oriented. Grounded on the teacher's
// internal/agentctl/server/process/status_tracker.go and
// claude_code_detector.go, generalized from one CLI's exact glyphs to the
// handful of conventions (spinner-plus-ellipsis, boxed input, y/n prompts)
// that most plain-text agent TUIs share.
package plaintext

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/kandev/agentengine/internal/common/logger"
	"github.com/tuzig/vt10x"
	"go.uber.org/zap"
)

// AgentState is the coarse TUI state detected from a child's rendered
// terminal content.
type AgentState string

const (
	StateUnknown         AgentState = "unknown"
	StateWorking         AgentState = "working"
	StateWaitingApproval AgentState = "waiting_approval"
	StateWaitingInput    AgentState = "waiting_input"
)

var (
	// workingPattern matches a spinner glyph followed by an ellipsis and an
	// interrupt hint, e.g. "✻ Reading files… (esc to interrupt)".
	workingPattern = regexp.MustCompile(`[✻✽✶∴·○◆★✓✔*]\s+.+(?:…|\.{2,})\s*\((esc|ctrl\+c)\s+to\s+interrupt\)?`)

	// separatorPattern matches a boxed-input border drawn with box chars.
	separatorPattern = regexp.MustCompile(`^[─━═┄┅┈┉-]{10,}$`)

	yesNoPattern          = regexp.MustCompile(`(?i)\[?y/?n\]?`)
	doYouWantToPattern    = regexp.MustCompile(`(?i)do you want to`)
	enterToSelectPattern  = regexp.MustCompile(`(?i)enter\s+to\s+select`)
	selectionArrowPattern = regexp.MustCompile(`^\s*[❯>]\s*\d+\.`)
)

// GenericDetector classifies terminal content using conventions shared by
// most interactive CLI agents, rather than one specific product's exact
// glyphs.
type GenericDetector struct{}

// DetectState examines the visible terminal lines and returns the detected
// state; approval prompts take priority over the working/idle distinction.
func (GenericDetector) DetectState(lines []string) AgentState {
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if yesNoPattern.MatchString(line) || doYouWantToPattern.MatchString(line) ||
			enterToSelectPattern.MatchString(line) || selectionArrowPattern.MatchString(line) {
			return StateWaitingApproval
		}
	}

	haveBox := false
	for _, line := range lines {
		if separatorPattern.MatchString(strings.TrimSpace(line)) {
			haveBox = true
		}
		if workingPattern.MatchString(line) {
			return StateWorking
		}
	}
	if haveBox {
		return StateWaitingInput
	}
	return StateUnknown
}

// ShouldAcceptStateChange reports whether transitioning from current to next
// should be emitted. No stability window: every detected change is reported.
func (GenericDetector) ShouldAcceptStateChange(current, next AgentState) bool { return true }

// StatusTracker feeds child output into a vt10x virtual terminal and polls it
// for state transitions on an interval, calling onChange with every accepted
// transition.
type StatusTracker struct {
	log      *logger.Logger
	detector GenericDetector
	onChange func(AgentState)

	mu    sync.Mutex
	term  vt10x.Terminal
	rows  int
	cols  int
	state AgentState
}

// NewStatusTracker constructs a tracker with an 80x24 virtual terminal, the
// convention teacher's own DefaultStatusTrackerConfig uses.
func NewStatusTracker(log *logger.Logger, onChange func(AgentState)) *StatusTracker {
	const rows, cols = 24, 80
	return &StatusTracker{
		log:      log.WithFields(zap.String("component", "plaintext-status-tracker")),
		onChange: onChange,
		term:     vt10x.New(vt10x.WithSize(cols, rows)),
		rows:     rows,
		cols:     cols,
		state:    StateUnknown,
	}
}

// Write feeds raw child bytes to the virtual terminal; it satisfies
// io.Writer so it can sit in an io.MultiWriter alongside the output-scanning
// pipe, never blocking or altering what the scanner observes.
func (t *StatusTracker) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = t.term.Write(p)
	return len(p), nil
}

// Poll re-derives the current state from the terminal's visible content and
// invokes onChange if it changed. Intended to run off a ticker for the
// child's lifetime.
func (t *StatusTracker) Poll() {
	t.mu.Lock()
	lines := make([]string, t.rows)
	for row := 0; row < t.rows; row++ {
		var chars []rune
		for col := 0; col < t.cols; col++ {
			g := t.term.Cell(col, row)
			if g.Char == 0 {
				chars = append(chars, ' ')
			} else {
				chars = append(chars, g.Char)
			}
		}
		lines[row] = string(chars)
	}
	detected := t.detector.DetectState(lines)
	changed := detected != StateUnknown && detected != t.state && t.detector.ShouldAcceptStateChange(t.state, detected)
	if changed {
		t.state = detected
	}
	t.mu.Unlock()

	if changed {
		t.log.Debug("agent tui state changed", zap.String("state", string(detected)))
		t.onChange(detected)
	}
}

// Run polls every interval until stop is closed.
func (t *StatusTracker) Run(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.Poll()
		case <-stop:
			return
		}
	}
}
