package plaintext

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	stripansi "github.com/acarl005/stripansi"
	"github.com/kandev/agentengine/internal/event"
)

// Normalizer groups non-blank lines into paragraphs, emitting an "add" patch
// at a freshly allocated index for the first line of a paragraph and a
// "replace" patch at the same index for every subsequent line, resetting on
// a blank line (§4.4.c). Safe for concurrent use: the stdout scanner feeds
// it, and the status tracker draws indexes from it through NextIndex.
type Normalizer struct {
	idx int64

	mu        sync.Mutex
	buf       strings.Builder
	activeIdx int64
	hasActive bool
}

// NewNormalizer constructs a paragraph-batching normalizer.
func NewNormalizer() *Normalizer { return &Normalizer{} }

func (n *Normalizer) nextIndex() int64 { return atomic.AddInt64(&n.idx, 1) }

// NextIndex lets a second writer sharing this normalizer's output stream
// (the status tracker's state-change entries) draw from the same monotonic
// counter, so interleaved entries never collide on Index.
func (n *Normalizer) NextIndex() int64 { return n.nextIndex() }

// FeedLine processes one line of (already newline-split) stdout text.
func (n *Normalizer) FeedLine(raw string) []event.NormalizedEntry {
	line := stripansi.Strip(raw)

	n.mu.Lock()
	defer n.mu.Unlock()

	if strings.TrimSpace(line) == "" {
		if entry, ok := n.flush(); ok {
			return []event.NormalizedEntry{entry}
		}
		return nil
	}

	if !n.hasActive {
		n.hasActive = true
		n.activeIdx = n.nextIndex()
		n.buf.Reset()
		n.buf.WriteString(line)
		return []event.NormalizedEntry{n.render(event.PatchAdd)}
	}

	n.buf.WriteString("\n")
	n.buf.WriteString(line)
	return []event.NormalizedEntry{n.render(event.PatchReplace)}
}

// FeedMarker emits the session-id system_message a discovered marker line
// carries (§6); it never participates in paragraph batching and flushes any
// paragraph in progress first.
func (n *Normalizer) FeedMarker(sessionID string) []event.NormalizedEntry {
	n.mu.Lock()
	defer n.mu.Unlock()

	var out []event.NormalizedEntry
	if entry, ok := n.flush(); ok {
		out = append(out, entry)
	}
	out = append(out, event.NormalizedEntry{
		Index:     n.nextIndex(),
		Timestamp: time.Now(),
		Op:        event.PatchAdd,
		Type:      event.EntrySystemMessage,
		Content:   "session discovered",
		Metadata:  map[string]any{"session_id": sessionID},
	})
	return out
}

// Flush emits a final replace patch for any still-open paragraph, e.g. when
// the stream ends without a trailing blank line.
func (n *Normalizer) Flush() []event.NormalizedEntry {
	n.mu.Lock()
	defer n.mu.Unlock()
	if entry, ok := n.flush(); ok {
		return []event.NormalizedEntry{entry}
	}
	return nil
}

func (n *Normalizer) flush() (event.NormalizedEntry, bool) {
	if !n.hasActive {
		return event.NormalizedEntry{}, false
	}
	entry := n.render(event.PatchReplace)
	n.hasActive = false
	n.buf.Reset()
	return entry, true
}

func (n *Normalizer) render(op event.PatchOp) event.NormalizedEntry {
	return event.NormalizedEntry{
		Index:     n.activeIdx,
		Timestamp: time.Now(),
		Op:        op,
		Type:      event.EntryAssistantMessage,
		Content:   n.buf.String(),
	}
}
