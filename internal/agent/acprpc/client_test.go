package acprpc

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/coder/acp-go-sdk"
	"github.com/kandev/agentengine/internal/agent/executor"
	"github.com/kandev/agentengine/internal/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(workDir string, approvals executor.ApprovalService) *hostClient {
	return &hostClient{workDir: workDir, approvals: approvals, log: logger.Default()}
}

func allowRejectOptions() []acp.PermissionOption {
	return []acp.PermissionOption{
		{OptionId: "allow-1", Name: "Allow", Kind: acp.PermissionOptionKindAllowOnce},
		{OptionId: "reject-1", Name: "Reject", Kind: acp.PermissionOptionKindRejectOnce},
	}
}

func TestRequestPermissionNoOptionsCancels(t *testing.T) {
	c := newTestClient(t.TempDir(), executor.AutoApprove{})
	resp, err := c.RequestPermission(context.Background(), acp.RequestPermissionRequest{})
	require.NoError(t, err)
	assert.NotNil(t, resp.Outcome.Cancelled)
}

func TestRequestPermissionAutoApproveSelectsAllowOption(t *testing.T) {
	c := newTestClient(t.TempDir(), executor.AutoApprove{})
	resp, err := c.RequestPermission(context.Background(), acp.RequestPermissionRequest{Options: allowRejectOptions()})
	require.NoError(t, err)
	require.NotNil(t, resp.Outcome.Selected)
	assert.Equal(t, acp.PermissionOptionId("allow-1"), resp.Outcome.Selected.OptionId)
}

func TestRequestPermissionNilApprovalServiceRejects(t *testing.T) {
	c := newTestClient(t.TempDir(), nil)
	resp, err := c.RequestPermission(context.Background(), acp.RequestPermissionRequest{Options: allowRejectOptions()})
	require.NoError(t, err)
	require.NotNil(t, resp.Outcome.Selected)
	assert.Equal(t, acp.PermissionOptionId("reject-1"), resp.Outcome.Selected.OptionId)
}

func TestRequestPermissionNilApprovalServiceNoRejectOptionCancels(t *testing.T) {
	c := newTestClient(t.TempDir(), nil)
	resp, err := c.RequestPermission(context.Background(), acp.RequestPermissionRequest{
		Options: []acp.PermissionOption{{OptionId: "allow-1", Name: "Allow", Kind: acp.PermissionOptionKindAllowOnce}},
	})
	require.NoError(t, err)
	assert.NotNil(t, resp.Outcome.Cancelled)
}

func TestReadTextFileReadsWholeFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte("one\ntwo\nthree"), 0o644))

	c := newTestClient(dir, executor.AutoApprove{})
	resp, err := c.ReadTextFile(context.Background(), acp.ReadTextFileRequest{Path: "f.txt"})
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\nthree", resp.Content)
}

func TestReadTextFileAppliesLineAndLimit(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte("one\ntwo\nthree\nfour"), 0o644))

	line, limit := 2, 2
	c := newTestClient(dir, executor.AutoApprove{})
	resp, err := c.ReadTextFile(context.Background(), acp.ReadTextFileRequest{Path: "f.txt", Line: &line, Limit: &limit})
	require.NoError(t, err)
	assert.Equal(t, "two\nthree", resp.Content)
}

func TestReadTextFileRejectsPathOutsideWorkDir(t *testing.T) {
	dir := t.TempDir()
	c := newTestClient(dir, executor.AutoApprove{})
	_, err := c.ReadTextFile(context.Background(), acp.ReadTextFileRequest{Path: "../../etc/passwd"})
	assert.Error(t, err)
}

func TestWriteTextFileCreatesNestedDirectories(t *testing.T) {
	dir := t.TempDir()
	c := newTestClient(dir, executor.AutoApprove{})

	_, err := c.WriteTextFile(context.Background(), acp.WriteTextFileRequest{Path: "nested/out.txt", Content: "hi"})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "nested", "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
}

func TestWriteTextFileRejectsPathOutsideWorkDir(t *testing.T) {
	dir := t.TempDir()
	c := newTestClient(dir, executor.AutoApprove{})
	_, err := c.WriteTextFile(context.Background(), acp.WriteTextFileRequest{Path: "../escape.txt", Content: "x"})
	assert.Error(t, err)
}
