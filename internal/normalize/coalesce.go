// Package normalize holds the protocol-shared mechanics of §4.7: chunk
// coalescing, tool-call lifecycle merging, action inference, plan rendering,
// and content-block text extraction. Protocol-specific normalizers
// (streamjson, acprpc, plaintext) build on top of this package rather than
// reimplementing it.
package normalize

import (
	"strings"
	"time"

	"github.com/kandev/agentengine/internal/event"
)

// Role is the speaker a coalescing buffer accumulates for.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleThinking  Role = "thinking"
)

func (r Role) entryType() event.EntryType {
	switch r {
	case RoleUser:
		return event.EntryUserMessage
	case RoleThinking:
		return event.EntryThinking
	default:
		return event.EntryAssistantMessage
	}
}

// Coalescer merges consecutive same-role chunks into one entry, flushing the
// pending buffer whenever the role switches or the stream ends (§4.7).
type Coalescer struct {
	enabled bool
	nextIdx func() int64

	hasPending bool
	role       Role
	buf        strings.Builder
}

// NewCoalescer constructs a Coalescer. enabled=false makes every Feed call
// emit immediately, one entry per chunk. nextIndex allocates the monotonic
// index for each emitted entry.
func NewCoalescer(enabled bool, nextIndex func() int64) *Coalescer {
	return &Coalescer{enabled: enabled, nextIdx: nextIndex}
}

// Feed appends text under role, returning an entry if a flush happened as a
// side effect (role switch) and ok=true if so.
func (c *Coalescer) Feed(role Role, text string) (event.NormalizedEntry, bool) {
	if !c.enabled {
		return c.emit(role, text), true
	}

	var flushed event.NormalizedEntry
	var didFlush bool
	if c.hasPending && c.role != role {
		flushed, didFlush = c.Flush()
	}

	if !c.hasPending {
		c.hasPending = true
		c.role = role
		c.buf.Reset()
	}
	c.buf.WriteString(text)
	return flushed, didFlush
}

// Flush emits the pending buffer as an entry, if any non-whitespace content
// has accumulated. A whitespace-only buffer is dropped silently (§4.7, §8).
func (c *Coalescer) Flush() (event.NormalizedEntry, bool) {
	if !c.hasPending {
		return event.NormalizedEntry{}, false
	}
	content := c.buf.String()
	role := c.role
	c.hasPending = false
	c.buf.Reset()

	if strings.TrimSpace(content) == "" {
		return event.NormalizedEntry{}, false
	}
	return c.emit(role, content), true
}

func (c *Coalescer) emit(role Role, content string) event.NormalizedEntry {
	return event.NormalizedEntry{
		Index:     c.nextIdx(),
		Timestamp: time.Now(),
		Op:        event.PatchAdd,
		Type:      role.entryType(),
		Content:   content,
	}
}
