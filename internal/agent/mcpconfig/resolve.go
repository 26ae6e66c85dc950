// Package mcpconfig resolves and validates the MCP server list an adapter
// passes through to an ACP session/new call. The engine never runs an MCP
// server itself — per the glossary, MCP support here is "merely a config
// passthrough" (SPEC_FULL §2).
package mcpconfig

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// Transport is how the host talks to one MCP server.
type Transport string

const (
	TransportStdio Transport = "stdio"
	TransportHTTP  Transport = "http"
)

// Server is one MCP server entry as handed to the agent's session/new call.
type Server struct {
	Name      string            `json:"name"`
	Transport Transport         `json:"transport"`
	Command   string            `json:"command,omitempty"`
	Args      []string          `json:"args,omitempty"`
	URL       string            `json:"url,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
}

// clientInfo identifies this host to any future protocol negotiation;
// reusing mcp-go's Implementation type keeps the vocabulary aligned with the
// SDK rather than hand-rolling an equivalent struct.
var clientInfo = mcp.Implementation{Name: "agentengine", Version: "0.1.0"}

// ClientInfo returns the host identity this package reports. Resolve does
// not consult it.
func ClientInfo() mcp.Implementation { return clientInfo }

// Resolve validates and normalizes a raw list of MCP server configs. It
// never contacts a server — validation is structural only.
func Resolve(raw []Server) ([]Server, error) {
	seen := make(map[string]bool, len(raw))
	resolved := make([]Server, 0, len(raw))

	for _, s := range raw {
		if s.Name == "" {
			return nil, fmt.Errorf("mcpconfig: server entry missing name")
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("mcpconfig: duplicate server name %q", s.Name)
		}
		seen[s.Name] = true

		switch s.Transport {
		case TransportStdio:
			if s.Command == "" {
				return nil, fmt.Errorf("mcpconfig: server %q: stdio transport requires a command", s.Name)
			}
		case TransportHTTP:
			if s.URL == "" {
				return nil, fmt.Errorf("mcpconfig: server %q: http transport requires a url", s.Name)
			}
		default:
			return nil, fmt.Errorf("mcpconfig: server %q: unknown transport %q", s.Name, s.Transport)
		}

		resolved = append(resolved, s)
	}
	return resolved, nil
}
