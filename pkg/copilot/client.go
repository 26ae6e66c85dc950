// Package copilot wraps github.com/github/copilot-sdk/go with the subset of
// surface the engine's Copilot executor needs. When CLIUrl is configured the
// SDK connects to an externally managed Copilot CLI server over TCP (the CLI
// spawned with --server); this wrapper never spawns the CLI itself — that is
// the engine's process.Manager's job, same split as ACP's stdio connection.
package copilot

import (
	"context"
	"fmt"
	"sync"

	"github.com/github/copilot-sdk/go"
	"github.com/kandev/agentengine/internal/common/logger"
	"go.uber.org/zap"
)

// Re-export SDK types used at this wrapper's boundary.
type (
	SessionEvent          = copilot.SessionEvent
	SessionEventType      = copilot.SessionEventType
	MessageOptions        = copilot.MessageOptions
	PermissionHandler     = copilot.PermissionHandler
	PermissionRequest     = copilot.PermissionRequest
	PermissionInvocation  = copilot.PermissionInvocation
	PermissionRequestResult = copilot.PermissionRequestResult
	MCPServerConfig       = copilot.MCPServerConfig
)

// Permission result kinds (§9 permission policy, mapped onto the SDK's own
// string-tagged Kind field).
const (
	PermissionApproved = "approved"
	PermissionDenied   = "denied-interactively-by-user"
)

const (
	EventTypeSessionStart          = copilot.SessionStart
	EventTypeSessionIdle           = copilot.SessionIdle
	EventTypeSessionError          = copilot.SessionError
	EventTypeAssistantMessage      = copilot.AssistantMessage
	EventTypeAssistantMessageDelta = copilot.AssistantMessageDelta
	EventTypeAssistantReasoning    = copilot.AssistantReasoning
	EventTypeAssistantTurnEnd      = copilot.AssistantTurnEnd
	EventTypeToolStart             = copilot.ToolExecutionStart
	EventTypeToolComplete          = copilot.ToolExecutionComplete
	EventTypeAbort                 = copilot.Abort
)

// Client wraps one Copilot SDK session over an externally managed CLI server.
type Client struct {
	sdkClient *copilot.Client
	session   *copilot.Session
	logger    *logger.Logger

	cliURL string
	model  string

	eventHandler func(SessionEvent)
	unsubscribe  func()
	handlerMu    sync.RWMutex

	permissionHandler PermissionHandler
	permissionMu      sync.RWMutex

	sessionID string
	mu        sync.RWMutex
	started   bool
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// CLIUrl is the address of the externally managed Copilot CLI server
	// (e.g. "localhost:12345"), discovered from its stdout banner.
	CLIUrl string
	Model  string
}

// NewClient constructs a Client bound to cfg.
func NewClient(cfg ClientConfig, log *logger.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = "gpt-4.1"
	}
	return &Client{
		cliURL: cfg.CLIUrl,
		model:  cfg.Model,
		logger: log.WithFields(zap.String("component", "copilot-sdk-client")),
	}
}

func (c *Client) SetEventHandler(handler func(SessionEvent)) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.eventHandler = handler
}

func (c *Client) SetPermissionHandler(handler PermissionHandler) {
	c.permissionMu.Lock()
	defer c.permissionMu.Unlock()
	c.permissionHandler = handler
}

// Start connects the SDK client to the CLI server at c.cliURL.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("copilot: client already started")
	}

	c.logger.Info("starting copilot sdk client", zap.String("model", c.model), zap.String("cli_url", c.cliURL))
	c.sdkClient = copilot.NewClient(&copilot.ClientOptions{CLIUrl: c.cliURL, LogLevel: "error"})
	c.started = true
	return nil
}

// Stop tears down the active session and client connection.
func (c *Client) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil
	}

	c.handlerMu.Lock()
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	c.handlerMu.Unlock()

	if c.session != nil {
		if err := c.session.Destroy(); err != nil {
			c.logger.Warn("error destroying session", zap.Error(err))
		}
		c.session = nil
	}

	if c.sdkClient != nil {
		for _, err := range c.sdkClient.Stop() {
			c.logger.Warn("error stopping sdk client", zap.Error(err))
		}
		c.sdkClient = nil
	}

	c.started = false
	return nil
}

// CreateSession opens a fresh session, streaming events to the configured
// handler. mcpServers is nil when the task declares none.
func (c *Client) CreateSession(ctx context.Context, mcpServers map[string]MCPServerConfig) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return "", fmt.Errorf("copilot: client not started")
	}

	c.permissionMu.RLock()
	permHandler := c.permissionHandler
	c.permissionMu.RUnlock()

	session, err := c.sdkClient.CreateSession(&copilot.SessionConfig{
		Model:               c.model,
		Streaming:           true,
		OnPermissionRequest: permHandler,
		MCPServers:          mcpServers,
	})
	if err != nil {
		return "", fmt.Errorf("copilot: create session: %w", err)
	}

	c.handlerMu.Lock()
	if c.eventHandler != nil {
		c.unsubscribe = session.On(c.eventHandler)
	}
	c.handlerMu.Unlock()

	c.session = session
	c.sessionID = session.SessionID
	return c.sessionID, nil
}

// ResumeSession resumes a previously issued session id.
func (c *Client) ResumeSession(ctx context.Context, sessionID string, mcpServers map[string]MCPServerConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return fmt.Errorf("copilot: client not started")
	}

	c.permissionMu.RLock()
	permHandler := c.permissionHandler
	c.permissionMu.RUnlock()

	session, err := c.sdkClient.ResumeSessionWithOptions(sessionID, &copilot.ResumeSessionConfig{
		Streaming:           true,
		OnPermissionRequest: permHandler,
		MCPServers:          mcpServers,
	})
	if err != nil {
		return fmt.Errorf("copilot: resume session: %w", err)
	}

	c.handlerMu.Lock()
	if c.eventHandler != nil {
		c.unsubscribe = session.On(c.eventHandler)
	}
	c.handlerMu.Unlock()

	c.session = session
	c.sessionID = sessionID
	return nil
}

// Send delivers a non-blocking prompt turn, returning the SDK message id.
func (c *Client) Send(ctx context.Context, message string) (string, error) {
	c.mu.RLock()
	session := c.session
	c.mu.RUnlock()
	if session == nil {
		return "", fmt.Errorf("copilot: no active session")
	}
	id, err := session.Send(copilot.MessageOptions{Prompt: message})
	if err != nil {
		return "", fmt.Errorf("copilot: send: %w", err)
	}
	return id, nil
}

// Abort cancels the in-flight turn, a no-op without an active session.
func (c *Client) Abort(ctx context.Context) error {
	c.mu.RLock()
	session := c.session
	c.mu.RUnlock()
	if session == nil {
		return nil
	}
	return session.Abort()
}

// GetSessionID returns the current session id, "" before one exists.
func (c *Client) GetSessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// IsStarted reports whether Start has completed without a matching Stop.
func (c *Client) IsStarted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.started
}
