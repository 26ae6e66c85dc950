package session

import (
	"github.com/kandev/agentengine/internal/event"
	"github.com/kandev/agentengine/internal/normalize"
)

// FromNormalizedEntry converts one event.NormalizedEntry into the
// SessionEvent it should be persisted as, per §4.4.d. Entry types with no
// persisted analog (system messages that carry neither a plan, available
// commands, nor a mode change) return ok=false.
func FromNormalizedEntry(entry event.NormalizedEntry) (evt SessionEvent, ok bool) {
	evt.Timestamp = entry.Timestamp
	evt.Content = entry.Content

	switch entry.Type {
	case event.EntryUserMessage:
		evt.Type = EventUser
	case event.EntryAssistantMessage:
		evt.Type = EventAssistant
	case event.EntryThinking:
		evt.Type = EventThinking
	case event.EntryToolUse:
		if entry.Tool == nil {
			return SessionEvent{}, false
		}
		evt.ToolCallID = entry.Tool.ID
		evt.ToolName = entry.Tool.ToolName
		evt.ToolStatus = string(entry.Tool.Status)
		if entry.Tool.Status == event.ToolStatusCreated {
			evt.Type = EventToolCall
		} else {
			evt.Type = EventToolUpdate
		}
	case event.EntrySystemMessage:
		// RenderPlan (§4.7) renders a plan update to a system_message; the
		// structured entries still ride along in Metadata for persistence.
		if plan, ok := entry.Metadata["plan"].([]normalize.PlanEntry); ok {
			evt.Type = EventPlan
			evt.Plan = planEntriesFrom(plan)
			break
		}
		if cmds, ok := entry.Metadata["available_commands"].([]Command); ok {
			evt.Type = EventAvailableCommands
			evt.Commands = cmds
			break
		}
		if mode, ok := entry.Metadata["current_mode"].(string); ok {
			evt.Type = EventCurrentMode
			evt.Mode = mode
			break
		}
		return SessionEvent{}, false
	default:
		return SessionEvent{}, false
	}
	return evt, true
}

func planEntriesFrom(entries []normalize.PlanEntry) []PlanEntry {
	out := make([]PlanEntry, len(entries))
	for i, e := range entries {
		out[i] = PlanEntry{Content: e.Content, Status: string(e.Status), Priority: e.Priority}
	}
	return out
}
