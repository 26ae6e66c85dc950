package normalize

import (
	"testing"

	"github.com/kandev/agentengine/internal/event"
	"github.com/stretchr/testify/assert"
)

func TestRenderPlanGlyphsAndPriority(t *testing.T) {
	entry := RenderPlan(indexer(), []PlanEntry{
		{Content: "step one", Status: PlanCompleted},
		{Content: "step two", Status: PlanInProgress, Priority: "high"},
		{Content: "step three", Status: PlanPending},
	})

	assert.Equal(t, event.EntrySystemMessage, entry.Type)
	assert.Contains(t, entry.Content, "● step one")
	assert.Contains(t, entry.Content, "◐ step two [high]")
	assert.Contains(t, entry.Content, "○ step three")
	assert.NotContains(t, entry.Content, "[medium]")
}

func TestRenderPlanUnknownStatusDefaultsToPendingGlyph(t *testing.T) {
	entry := RenderPlan(indexer(), []PlanEntry{{Content: "x", Status: "weird"}})
	assert.Contains(t, entry.Content, "○ x")
}

func TestExtractTextVariants(t *testing.T) {
	assert.Equal(t, "hi", ExtractText(ContentBlock{Kind: "text", Text: "hi"}))
	assert.Equal(t, "[Image]", ExtractText(ContentBlock{Kind: "image"}))
	assert.Equal(t, "[Audio]", ExtractText(ContentBlock{Kind: "audio"}))
	assert.Equal(t, "[doc](http://x)", ExtractText(ContentBlock{Kind: "resource_link", Name: "doc", URI: "http://x"}))
	assert.Equal(t, "", ExtractText(ContentBlock{Kind: "unknown"}))
}

func TestExtractTextResourceWithEmbeddedText(t *testing.T) {
	text := "embedded content"
	assert.Equal(t, "embedded content", ExtractText(ContentBlock{Kind: "resource", EmbeddedText: &text}))
}

func TestExtractTextResourceWithoutEmbeddedText(t *testing.T) {
	assert.Equal(t, "[Resource: http://x]", ExtractText(ContentBlock{Kind: "resource", URI: "http://x"}))
}
