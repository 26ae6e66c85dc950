package streamjson

import (
	"encoding/json"
	"sync/atomic"

	"github.com/kandev/agentengine/internal/event"
	"github.com/kandev/agentengine/internal/normalize"
)

// Normalizer is the stateful mapper described in §4.4.a: state is only the
// running index plus a session-id cache observed from the first "system"
// message. It is reused across every line of one task's output.
type Normalizer struct {
	idx       int64
	sessionID string
	coalescer *normalize.Coalescer
	tools     *normalize.ToolCallTracker
}

// NewNormalizer constructs a fresh, zero-state normalizer.
func NewNormalizer() *Normalizer {
	n := &Normalizer{}
	n.coalescer = normalize.NewCoalescer(true, n.nextIndex)
	n.tools = normalize.NewToolCallTracker(n.nextIndex)
	return n
}

func (n *Normalizer) nextIndex() int64 {
	return atomic.AddInt64(&n.idx, 1)
}

// SessionID returns the session id observed from the init message, if any.
func (n *Normalizer) SessionID() string { return n.sessionID }

// FeedLine parses one NDJSON line and maps it to zero or more entries. A
// parse failure is dropped silently, per §4.4.a.
func (n *Normalizer) FeedLine(line []byte) []event.NormalizedEntry {
	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil
	}
	return n.feed(msg)
}

func (n *Normalizer) feed(msg Message) []event.NormalizedEntry {
	var out []event.NormalizedEntry

	switch msg.Type {
	case "system":
		if msg.Subtype == "" || msg.Subtype == "init" {
			if msg.SessionID != "" {
				n.sessionID = msg.SessionID
			}
		}

	case "user":
		for _, text := range textOf(msg.Message) {
			if entry, ok := n.coalescer.Feed(normalize.RoleUser, text); ok {
				out = append(out, entry)
			}
		}

	case "assistant":
		for _, text := range textOf(msg.Message) {
			if entry, ok := n.coalescer.Feed(normalize.RoleAssistant, text); ok {
				out = append(out, entry)
			}
		}

	case "thinking":
		if entry, ok := n.coalescer.Feed(normalize.RoleThinking, msg.Text); ok {
			out = append(out, entry)
		}

	case "tool_use":
		if tc := msg.ToolCall; tc != nil {
			if entry, ok := n.coalescer.Flush(); ok {
				out = append(out, entry)
			}
			out = append(out, n.tools.Created(toRawToolCall(tc)))
		}

	case "tool_result":
		if tc := msg.ToolCall; tc != nil {
			status := tc.Status
			if entry, ok := n.tools.Updated(tc.ID, &status, nil, tc.RawOutput); ok {
				out = append(out, entry)
			}
		}

	case "plan":
		if entry, ok := n.coalescer.Flush(); ok {
			out = append(out, entry)
		}
		out = append(out, normalize.RenderPlan(n.nextIndex, toPlanEntries(msg.Plan)))

	case "result":
		if entry, ok := n.coalescer.Flush(); ok {
			out = append(out, entry)
		}
	}

	return out
}

func textOf(m *InnerMessage) []string {
	if m == nil {
		return nil
	}
	texts := make([]string, 0, len(m.Content))
	for _, b := range m.Content {
		text := normalize.ExtractText(normalize.ContentBlock{Kind: b.Type, Text: b.Text, Name: b.Name, URI: b.URI})
		if text != "" {
			texts = append(texts, text)
		}
	}
	return texts
}

func toRawToolCall(tc *ToolCallLine) normalize.RawToolCall {
	locations := make([]string, 0, len(tc.Locations))
	for _, loc := range tc.Locations {
		locations = append(locations, loc.Path)
	}
	status := tc.Status
	if status == "" {
		status = "in_progress"
	}
	return normalize.RawToolCall{
		ID:        tc.ID,
		ToolName:  tc.Name,
		Kind:      tc.Kind,
		Title:     tc.Title,
		Status:    status,
		Locations: locations,
		RawInput:  tc.RawInput,
	}
}

func toPlanEntries(lines []PlanLine) []normalize.PlanEntry {
	entries := make([]normalize.PlanEntry, len(lines))
	for i, l := range lines {
		entries[i] = normalize.PlanEntry{
			Content:  l.Content,
			Status:   normalize.PlanEntryStatus(l.Status),
			Priority: l.Priority,
		}
	}
	return entries
}
