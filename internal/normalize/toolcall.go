package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kandev/agentengine/internal/event"
)

// RawToolCall is the field-by-field view of a protocol's tool_call /
// tool_call_update payload, after the protocol-specific layer has parsed its
// own wire format. nil fields mean "no change" on an update (§4.7).
type RawToolCall struct {
	ID        string
	ToolName  string
	Kind      string // read | edit | delete | execute | search | "" (generic)
	Title     string
	Status    string // pending | in_progress | completed | failed
	Locations []string
	RawInput  map[string]any
	RawOutput any
	OldText   *string
	NewText   *string
}

var statusMap = map[string]event.ToolCallStatus{
	"pending":     event.ToolStatusCreated,
	"in_progress": event.ToolStatusRunning,
	"completed":   event.ToolStatusSuccess,
	"failed":      event.ToolStatusFailed,
}

// ToolCallTracker keys in-flight tool calls by id and merges updates per §4.7.
type ToolCallTracker struct {
	nextIdx func() int64
	calls   map[string]*RawToolCall
}

// NewToolCallTracker constructs a tracker.
func NewToolCallTracker(nextIndex func() int64) *ToolCallTracker {
	return &ToolCallTracker{nextIdx: nextIndex, calls: make(map[string]*RawToolCall)}
}

// Created records a brand-new tool call and emits its first tool_use entry.
func (t *ToolCallTracker) Created(call RawToolCall) event.NormalizedEntry {
	stored := call
	t.calls[call.ID] = &stored
	return t.render(&stored)
}

// Updated merges a partial update into the stored call by id. ok is false if
// the id is unknown (the update is then dropped, matching "first tool_call
// establishes the record"). An entry is only returned if the status changed
// or output content was added.
func (t *ToolCallTracker) Updated(id string, statusUpdate, titleUpdate *string, rawOutput any) (event.NormalizedEntry, bool) {
	stored, exists := t.calls[id]
	if !exists {
		return event.NormalizedEntry{}, false
	}

	statusChanged := false
	if statusUpdate != nil && *statusUpdate != stored.Status {
		stored.Status = *statusUpdate
		statusChanged = true
	}
	if titleUpdate != nil {
		stored.Title = *titleUpdate
	}
	contentAdded := false
	if rawOutput != nil {
		stored.RawOutput = rawOutput
		contentAdded = true
	}

	if !statusChanged && !contentAdded {
		return event.NormalizedEntry{}, false
	}
	return t.render(stored), true
}

func (t *ToolCallTracker) render(call *RawToolCall) event.NormalizedEntry {
	status, ok := statusMap[call.Status]
	if !ok {
		status = event.ToolStatusCreated
	}
	action := InferAction(call.Kind, call.Title, call.Locations, call.RawInput, call.OldText, call.NewText)

	return event.NormalizedEntry{
		Index:     t.nextIdx(),
		Timestamp: time.Now(),
		Op:        event.PatchAdd,
		Type:      event.EntryToolUse,
		Tool: &event.ToolUse{
			ID:       call.ID,
			ToolName: call.ToolName,
			Action:   action,
			Status:   status,
			Result:   call.RawOutput,
		},
	}
}

var backtickSpan = regexp.MustCompile("`([^`]+)`")

// InferAction maps a tool kind + raw input/locations into a tagged Action
// (§4.7).
func InferAction(kind, title string, locations []string, rawInput map[string]any, oldText, newText *string) event.Action {
	switch strings.ToLower(kind) {
	case "read":
		path := firstOr(locations, "")
		return event.Action{Type: event.ActionFileRead, Path: path}

	case "edit":
		path := firstOr(locations, "")
		if oldText != nil && newText != nil {
			diff := unifiedDiff(path, *oldText, *newText)
			return event.Action{
				Type: event.ActionFileEdit,
				Path: path,
				Changes: []event.FileChange{{
					Type:    "patch",
					OldText: *oldText,
					NewText: *newText,
					Diff:    diff,
				}},
			}
		}
		return event.Action{Type: event.ActionFileWrite, Path: path}

	case "delete":
		path := firstOr(locations, "")
		return event.Action{
			Type:    event.ActionFileEdit,
			Path:    path,
			Changes: []event.FileChange{{Type: "delete"}},
		}

	case "execute":
		return event.Action{Type: event.ActionCommandRun, Command: extractCommand(rawInput, title)}

	case "search":
		return event.Action{Type: event.ActionSearch, Query: extractSearchQuery(rawInput, title)}

	default:
		return event.Action{Type: event.ActionGeneric, Name: title, Args: rawInput}
	}
}

func firstOr(items []string, def string) string {
	if len(items) == 0 {
		return def
	}
	return items[0]
}

func extractCommand(rawInput map[string]any, title string) string {
	if cmd, ok := rawInput["command"].(string); ok && cmd != "" {
		return cmd
	}
	if m := backtickSpan.FindStringSubmatch(title); m != nil {
		return m[1]
	}
	return title
}

func extractSearchQuery(rawInput map[string]any, title string) string {
	for _, key := range []string{"query", "pattern"} {
		if v, ok := rawInput[key].(string); ok && v != "" {
			return v
		}
	}
	return title
}

// unifiedDiff synthesizes a minimal unified-diff string from a before/after
// pair (§4.7: "a synthesized unified-diff string built from oldText and
// newText").
func unifiedDiff(path, oldText, newText string) string {
	oldLines := strings.Split(oldText, "\n")
	newLines := strings.Split(newText, "\n")

	var b strings.Builder
	fmt.Fprintf(&b, "--- a/%s\n", path)
	fmt.Fprintf(&b, "+++ b/%s\n", path)
	fmt.Fprintf(&b, "@@ -1,%d +1,%d @@\n", len(oldLines), len(newLines))
	for _, l := range oldLines {
		fmt.Fprintf(&b, "-%s\n", l)
	}
	for _, l := range newLines {
		fmt.Fprintf(&b, "+%s\n", l)
	}
	return b.String()
}
