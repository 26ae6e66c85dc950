package copilot

import (
	"sync/atomic"
	"time"

	"github.com/kandev/agentengine/internal/event"
	"github.com/kandev/agentengine/internal/normalize"
	pkgcopilot "github.com/kandev/agentengine/pkg/copilot"
)

// notifier turns the Copilot SDK's SessionEvent stream into the shared
// NormalizedEntry stream (§4.7), reusing the same coalescing and tool-call
// merge mechanics every executor shares. Grounded on the teacher's
// CopilotAdapter.handleEvent/handleContentEvent dispatch.
type notifier struct {
	idx       int64
	coalescer *normalize.Coalescer
	tools     *normalize.ToolCallTracker
}

func newNotifier() *notifier {
	n := &notifier{}
	n.coalescer = normalize.NewCoalescer(true, n.nextIndex)
	n.tools = normalize.NewToolCallTracker(n.nextIndex)
	return n
}

func (n *notifier) nextIndex() int64 { return atomic.AddInt64(&n.idx, 1) }

// feed converts one SDK session event into zero or more entries, in order.
func (n *notifier) feed(evt pkgcopilot.SessionEvent) []event.NormalizedEntry {
	var out []event.NormalizedEntry

	switch evt.Type {
	case pkgcopilot.EventTypeAssistantMessage, pkgcopilot.EventTypeAssistantMessageDelta:
		text := stringField(evt.Data.Content)
		if evt.Type == pkgcopilot.EventTypeAssistantMessageDelta {
			text = stringField(evt.Data.DeltaContent)
		}
		if text != "" {
			if entry, ok := n.coalescer.Feed(normalize.RoleAssistant, text); ok {
				out = append(out, entry)
			}
		}

	case pkgcopilot.EventTypeAssistantReasoning:
		text := stringField(evt.Data.Content)
		if text == "" {
			text = stringField(evt.Data.DeltaContent)
		}
		if text != "" {
			if entry, ok := n.coalescer.Feed(normalize.RoleThinking, text); ok {
				out = append(out, entry)
			}
		}

	case pkgcopilot.EventTypeToolStart:
		if entry, ok := n.coalescer.Flush(); ok {
			out = append(out, entry)
		}
		out = append(out, n.tools.Created(toolCallFromStart(evt)))

	case pkgcopilot.EventTypeToolComplete:
		id := stringField(evt.Data.ToolCallID)
		status := "completed"
		if entry, ok := n.tools.Updated(id, &status, nil, evt.Data.Result); ok {
			out = append(out, entry)
		}

	case pkgcopilot.EventTypeSessionError:
		if entry, ok := n.coalescer.Flush(); ok {
			out = append(out, entry)
		}
		out = append(out, event.NormalizedEntry{
			Index:     n.nextIndex(),
			Op:        event.PatchAdd,
			Type:      event.EntrySystemMessage,
			Content:   "session error: " + stringField(evt.Data.Message),
			Timestamp: time.Now(),
		})

	case pkgcopilot.EventTypeSessionIdle, pkgcopilot.EventTypeAssistantTurnEnd:
		if entry, ok := n.coalescer.Flush(); ok {
			out = append(out, entry)
		}
	}

	return out
}

func toolCallFromStart(evt pkgcopilot.SessionEvent) normalize.RawToolCall {
	toolName := stringField(evt.Data.ToolName)
	args, _ := evt.Data.Arguments.(map[string]any)
	return normalize.RawToolCall{
		ID:       stringField(evt.Data.ToolCallID),
		ToolName: toolName,
		Kind:     toolName,
		Title:    toolName,
		Status:   "in_progress",
		RawInput: args,
	}
}

func stringField(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
