package acprpc

import (
	"testing"

	"github.com/kandev/agentengine/internal/agent/mcpconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToACPMcpServersMapsStdioTransport(t *testing.T) {
	servers := []mcpconfig.Server{
		{Name: "fs", Transport: mcpconfig.TransportStdio, Command: "mcp-fs", Args: []string{"--root", "."}},
	}

	out := toACPMcpServers(servers)
	require.Len(t, out, 1)
	require.NotNil(t, out[0].Stdio)
	assert.Equal(t, "fs", out[0].Stdio.Name)
	assert.Equal(t, "mcp-fs", out[0].Stdio.Command)
	assert.Equal(t, []string{"--root", "."}, out[0].Stdio.Args)
	assert.Nil(t, out[0].Sse)
}

func TestToACPMcpServersMapsHTTPTransport(t *testing.T) {
	servers := []mcpconfig.Server{
		{Name: "web", Transport: mcpconfig.TransportHTTP, URL: "http://localhost:9000"},
	}

	out := toACPMcpServers(servers)
	require.Len(t, out, 1)
	require.NotNil(t, out[0].Sse)
	assert.Equal(t, "web", out[0].Sse.Name)
	assert.Equal(t, "http://localhost:9000", out[0].Sse.Url)
	assert.Nil(t, out[0].Stdio)
}

func TestToACPMcpServersEmptyInput(t *testing.T) {
	assert.Empty(t, toACPMcpServers(nil))
}
