package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/kandev/agentengine/internal/event"
)

// PlanEntryStatus is one plan item's lifecycle state.
type PlanEntryStatus string

const (
	PlanPending    PlanEntryStatus = "pending"
	PlanInProgress PlanEntryStatus = "in_progress"
	PlanCompleted  PlanEntryStatus = "completed"
)

// PlanEntry is one line item of an agent's declared plan.
type PlanEntry struct {
	Content  string
	Status   PlanEntryStatus
	Priority string // "low" | "medium" | "high"; "medium" is not tagged
}

var planGlyph = map[PlanEntryStatus]string{
	PlanPending:    "○",
	PlanInProgress: "◐",
	PlanCompleted:  "●",
}

// RenderPlan renders a plan update to the one-off system_message described
// in §4.7.
func RenderPlan(nextIndex func() int64, entries []PlanEntry) event.NormalizedEntry {
	var b strings.Builder
	b.WriteString("## Plan\n\n")
	for _, e := range entries {
		glyph := planGlyph[e.Status]
		if glyph == "" {
			glyph = planGlyph[PlanPending]
		}
		line := fmt.Sprintf("%s %s", glyph, e.Content)
		if e.Priority != "" && e.Priority != "medium" {
			line += fmt.Sprintf(" [%s]", e.Priority)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return event.NormalizedEntry{
		Index:     nextIndex(),
		Timestamp: time.Now(),
		Op:        event.PatchAdd,
		Type:      event.EntrySystemMessage,
		Content:   b.String(),
		Metadata:  map[string]any{"plan": entries},
	}
}

// ContentBlock is a tagged alternative in a protocol's content-block array
// (ACP prompt/message content, §4.7).
type ContentBlock struct {
	Kind string // text | image | audio | resource_link | resource
	Text string
	Name string // resource_link display name
	URI  string
	// EmbeddedText is set when Kind == "resource" and the resource carries
	// inline text content.
	EmbeddedText *string
}

// ExtractText renders one content block to its display text (§4.7).
func ExtractText(b ContentBlock) string {
	switch b.Kind {
	case "text":
		return b.Text
	case "image":
		return "[Image]"
	case "audio":
		return "[Audio]"
	case "resource_link":
		return fmt.Sprintf("[%s](%s)", b.Name, b.URI)
	case "resource":
		if b.EmbeddedText != nil {
			return *b.EmbeddedText
		}
		return fmt.Sprintf("[Resource: %s]", b.URI)
	default:
		return ""
	}
}
