package acprpc

import (
	"sync/atomic"
	"time"

	"github.com/coder/acp-go-sdk"
	"github.com/kandev/agentengine/internal/event"
	"github.com/kandev/agentengine/internal/normalize"
	"github.com/kandev/agentengine/internal/session"
)

// notifier turns the SDK's acp.SessionNotification union into the shared
// NormalizedEntry stream (§4.7), reusing the same coalescing, tool-call
// merge, plan-render, and content-block mechanics every executor shares.
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

func (n *notifier) nextIndex() int64 {
	return atomic.AddInt64(&n.idx, 1)
}

// feed converts one notification into zero or more entries, in order.
func (n *notifier) feed(notification acp.SessionNotification) []event.NormalizedEntry {
	u := notification.Update
	var out []event.NormalizedEntry

	switch {
	case u.UserMessageChunk != nil:
		if u.UserMessageChunk.Content.Text != nil {
			if entry, ok := n.coalescer.Feed(normalize.RoleUser, u.UserMessageChunk.Content.Text.Text); ok {
				out = append(out, entry)
			}
		}

	case u.AgentMessageChunk != nil:
		if u.AgentMessageChunk.Content.Text != nil {
			if entry, ok := n.coalescer.Feed(normalize.RoleAssistant, u.AgentMessageChunk.Content.Text.Text); ok {
				out = append(out, entry)
			}
		}

	case u.AgentThoughtChunk != nil:
		if u.AgentThoughtChunk.Content.Text != nil {
			if entry, ok := n.coalescer.Feed(normalize.RoleThinking, u.AgentThoughtChunk.Content.Text.Text); ok {
				out = append(out, entry)
			}
		}

	case u.ToolCall != nil:
		if entry, ok := n.coalescer.Flush(); ok {
			out = append(out, entry)
		}
		out = append(out, n.tools.Created(toolCallFromCreate(u.ToolCall)))

	case u.ToolCallUpdate != nil:
		var statusUpdate *string
		if u.ToolCallUpdate.Status != nil {
			s := string(*u.ToolCallUpdate.Status)
			statusUpdate = &s
		}
		if entry, ok := n.tools.Updated(string(u.ToolCallUpdate.ToolCallId), statusUpdate, nil, u.ToolCallUpdate.RawOutput); ok {
			out = append(out, entry)
		}

	case u.Plan != nil:
		if entry, ok := n.coalescer.Flush(); ok {
			out = append(out, entry)
		}
		out = append(out, normalize.RenderPlan(n.nextIndex, toPlanEntries(u.Plan.Entries)))

	case u.AvailableCommandsUpdate != nil:
		out = append(out, event.NormalizedEntry{
			Index:     n.nextIndex(),
			Timestamp: time.Now(),
			Op:        event.PatchAdd,
			Type:      event.EntrySystemMessage,
			Content:   "available commands updated",
			Metadata:  map[string]any{"available_commands": toCommands(u.AvailableCommandsUpdate.AvailableCommands)},
		})

	case u.CurrentModeUpdate != nil:
		out = append(out, event.NormalizedEntry{
			Index:     n.nextIndex(),
			Timestamp: time.Now(),
			Op:        event.PatchAdd,
			Type:      event.EntrySystemMessage,
			Content:   "mode changed",
			Metadata:  map[string]any{"current_mode": string(u.CurrentModeUpdate.CurrentModeId)},
		})
	}

	return out
}

func toCommands(cmds []acp.AvailableCommand) []session.Command {
	out := make([]session.Command, len(cmds))
	for i, c := range cmds {
		out[i] = session.Command{Name: c.Name, Description: c.Description}
	}
	return out
}

// toolCallFromCreate maps the SDK's tool_call creation notification into the
// protocol-agnostic RawToolCall shape the shared tracker consumes.
func toolCallFromCreate(tc *acp.ToolCall) normalize.RawToolCall {
	title := ""
	if tc.Title != nil {
		title = *tc.Title
	}
	status := string(tc.Status)
	if status == "" {
		status = "in_progress"
	}
	locations := make([]string, 0, len(tc.Locations))
	for _, loc := range tc.Locations {
		locations = append(locations, loc.Path)
	}
	return normalize.RawToolCall{
		ID:        string(tc.ToolCallId),
		ToolName:  string(tc.Kind),
		Kind:      string(tc.Kind),
		Title:     title,
		Status:    status,
		Locations: locations,
		RawInput:  tc.RawInput,
	}
}

func toPlanEntries(entries []acp.PlanEntry) []normalize.PlanEntry {
	out := make([]normalize.PlanEntry, len(entries))
	for i, e := range entries {
		out[i] = normalize.PlanEntry{
			Content:  e.Content,
			Status:   normalize.PlanEntryStatus(e.Status),
			Priority: string(e.Priority),
		}
	}
	return out
}
