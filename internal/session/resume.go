package session

import (
	"fmt"
	"strings"
)

// rolePrefix maps an event type to the prefix it replays under in a resume
// prompt. Event types with no natural role (plan, tool_call, ...) still get
// a prefix so the replay stays legible.
func rolePrefix(t EventType) string {
	switch t {
	case EventUser:
		return "user"
	case EventAssistant:
		return "assistant"
	case EventThinking:
		return "thinking"
	case EventToolCall:
		return "tool_call"
	case EventToolUpdate:
		return "tool_update"
	case EventPlan:
		return "plan"
	case EventAvailableCommands:
		return "available_commands"
	case EventCurrentMode:
		return "current_mode"
	default:
		return string(t)
	}
}

// lineFor renders one event's replay line.
func lineFor(evt SessionEvent) string {
	switch evt.Type {
	case EventUser, EventAssistant, EventThinking:
		return fmt.Sprintf("%s: %s", rolePrefix(evt.Type), evt.Content)
	case EventToolCall:
		return fmt.Sprintf("%s: %s (%s)", rolePrefix(evt.Type), evt.ToolName, evt.ToolStatus)
	case EventToolUpdate:
		return fmt.Sprintf("%s: %s -> %s", rolePrefix(evt.Type), evt.ToolName, evt.ToolStatus)
	case EventPlan:
		var steps []string
		for _, p := range evt.Plan {
			steps = append(steps, fmt.Sprintf("[%s] %s", p.Status, p.Content))
		}
		return fmt.Sprintf("%s: %s", rolePrefix(evt.Type), strings.Join(steps, "; "))
	case EventCurrentMode:
		return fmt.Sprintf("%s: %s", rolePrefix(evt.Type), evt.Mode)
	default:
		return fmt.Sprintf("%s: %s", rolePrefix(evt.Type), evt.Content)
	}
}

// ResumePrompt synthesizes the prompt an executor should send when resuming
// a session a protocol can't natively load (§4.4.d): it replays the last n
// events role-prefixed, followed by a "---" separator and "New request: ".
// If sessionID has no recorded history, prompt is returned unchanged.
func (s *Store) ResumePrompt(sessionID, prompt string, n int) (string, error) {
	if n <= 0 {
		n = DefaultResumeEventCount
	}

	events, err := s.Read(sessionID)
	if err != nil {
		return prompt, err
	}
	if len(events) == 0 {
		return prompt, nil
	}

	if len(events) > n {
		events = events[len(events)-n:]
	}

	var b strings.Builder
	for _, evt := range events {
		b.WriteString(lineFor(evt))
		b.WriteString("\n")
	}
	b.WriteString("---\n")
	b.WriteString("New request: ")
	b.WriteString(prompt)

	return b.String(), nil
}
