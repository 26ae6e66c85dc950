package normalize

import (
	"testing"

	"github.com/kandev/agentengine/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolCallTrackerCreatedRendersPendingEntry(t *testing.T) {
	tr := NewToolCallTracker(indexer())
	entry := tr.Created(RawToolCall{ID: "c1", ToolName: "read_file", Kind: "read", Status: "pending", Locations: []string{"a.go"}})

	require.NotNil(t, entry.Tool)
	assert.Equal(t, event.ToolStatusCreated, entry.Tool.Status)
	assert.Equal(t, event.ActionFileRead, entry.Tool.Action.Type)
	assert.Equal(t, "a.go", entry.Tool.Action.Path)
}

func TestToolCallTrackerUpdatedUnknownIDIsDropped(t *testing.T) {
	tr := NewToolCallTracker(indexer())
	status := "completed"
	_, ok := tr.Updated("missing", &status, nil, nil)
	assert.False(t, ok)
}

func TestToolCallTrackerUpdatedStatusChange(t *testing.T) {
	tr := NewToolCallTracker(indexer())
	tr.Created(RawToolCall{ID: "c1", Kind: "execute", Status: "pending"})

	status := "completed"
	entry, ok := tr.Updated("c1", &status, nil, "output text")
	require.True(t, ok)
	assert.Equal(t, event.ToolStatusSuccess, entry.Tool.Status)
	assert.Equal(t, "output text", entry.Tool.Result)
}

func TestToolCallTrackerUpdatedNoChangeIsDropped(t *testing.T) {
	tr := NewToolCallTracker(indexer())
	tr.Created(RawToolCall{ID: "c1", Kind: "execute", Status: "pending"})

	_, ok := tr.Updated("c1", nil, nil, nil)
	assert.False(t, ok)
}

func TestInferActionEdit(t *testing.T) {
	old, new_ := "foo", "bar"
	action := InferAction("edit", "", []string{"f.go"}, nil, &old, &new_)
	assert.Equal(t, event.ActionFileEdit, action.Type)
	require.Len(t, action.Changes, 1)
	assert.Contains(t, action.Changes[0].Diff, "-foo")
	assert.Contains(t, action.Changes[0].Diff, "+bar")
}

func TestInferActionWriteWithoutOldText(t *testing.T) {
	action := InferAction("edit", "", []string{"f.go"}, nil, nil, nil)
	assert.Equal(t, event.ActionFileWrite, action.Type)
}

func TestInferActionDelete(t *testing.T) {
	action := InferAction("delete", "", []string{"f.go"}, nil, nil, nil)
	assert.Equal(t, event.ActionFileEdit, action.Type)
	require.Len(t, action.Changes, 1)
	assert.Equal(t, "delete", action.Changes[0].Type)
}

func TestInferActionExecuteFromRawInput(t *testing.T) {
	action := InferAction("execute", "run `ls -la`", nil, map[string]any{"command": "go test ./..."}, nil, nil)
	assert.Equal(t, event.ActionCommandRun, action.Type)
	assert.Equal(t, "go test ./...", action.Command)
}

func TestInferActionExecuteFallsBackToTitleBacktick(t *testing.T) {
	action := InferAction("execute", "run `ls -la`", nil, nil, nil, nil)
	assert.Equal(t, "ls -la", action.Command)
}

func TestInferActionSearch(t *testing.T) {
	action := InferAction("search", "", nil, map[string]any{"pattern": "TODO"}, nil, nil)
	assert.Equal(t, event.ActionSearch, action.Type)
	assert.Equal(t, "TODO", action.Query)
}

func TestInferActionGenericDefault(t *testing.T) {
	action := InferAction("", "custom_tool", nil, map[string]any{"x": 1}, nil, nil)
	assert.Equal(t, event.ActionGeneric, action.Type)
	assert.Equal(t, "custom_tool", action.Name)
}
