// Package session implements namespaced, append-only persistence for agent
// sessions, so a protocol that has no native session/load support (§4.4.a,
// §4.4.c) can still be resumed by replaying recent history into a synthetic
// prompt header (§4.4.d).
package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kandev/agentengine/internal/common/logger"
	"go.uber.org/zap"
)

// DefaultResumeEventCount is how many trailing events a resume prompt
// replays when the caller doesn't override it (§4.4.d).
const DefaultResumeEventCount = 20

// EventType tags the variant carried by a SessionEvent.
type EventType string

const (
	EventUser              EventType = "user"
	EventAssistant         EventType = "assistant"
	EventThinking          EventType = "thinking"
	EventToolCall          EventType = "tool_call"
	EventToolUpdate        EventType = "tool_update"
	EventPlan              EventType = "plan"
	EventAvailableCommands EventType = "available_commands"
	EventCurrentMode       EventType = "current_mode"
)

// SessionEvent is one JSON-per-line record in a session's history file.
type SessionEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`

	// Content carries free text for user/assistant/thinking events.
	Content string `json:"content,omitempty"`

	// ToolCallID/ToolName/ToolStatus carry tool_call and tool_update fields.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	ToolStatus string `json:"tool_status,omitempty"`

	// Plan carries plan event entries.
	Plan []PlanEntry `json:"plan,omitempty"`

	// Commands carries available_commands event entries.
	Commands []Command `json:"commands,omitempty"`

	// Mode carries a current_mode event's mode id.
	Mode string `json:"mode,omitempty"`
}

// PlanEntry is one plan step, mirroring an ACP plan entry (§4.4.b).
type PlanEntry struct {
	Content  string `json:"content"`
	Status   string `json:"status"`
	Priority string `json:"priority,omitempty"`
}

// Command is one entry of an available_commands event.
type Command struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Store is a namespaced, append-only JSONL session history store (§4.4.d).
// Each session lives at {baseDir}/{sessionID}.jsonl.
type Store struct {
	baseDir string
	log     *logger.Logger
	mu      sync.Mutex
}

// NewStore constructs a Store rooted at baseDir. If baseDir is empty, it
// defaults to ~/.agentengine/sessions.
func NewStore(baseDir string, log *logger.Logger) (*Store, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("session: resolve home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".agentengine", "sessions")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("session: create store directory: %w", err)
	}
	return &Store{baseDir: baseDir, log: log}, nil
}

func (s *Store) pathFor(sessionID string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_").Replace(sessionID)
	return filepath.Join(s.baseDir, safe+".jsonl")
}

// Append appends evt to sessionID's history file, stamping Timestamp if unset.
func (s *Store) Append(sessionID string, evt SessionEvent) error {
	if sessionID == "" {
		return fmt.Errorf("session: session id is required")
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.pathFor(sessionID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("session: open history file: %w", err)
	}
	defer func() { _ = f.Close() }()

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("session: marshal event: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("session: write event: %w", err)
	}
	return nil
}

// Read returns every event recorded for sessionID, in append order. A
// session with no history file returns (nil, nil).
func (s *Store) Read(sessionID string) ([]SessionEvent, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session: session id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.pathFor(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("session: open history file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var events []SessionEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var evt SessionEvent
		if err := json.Unmarshal(line, &evt); err != nil {
			s.log.Warn("dropping unparsable session event", zap.String("session_id", sessionID), zap.Error(err))
			continue
		}
		events = append(events, evt)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("session: read history file: %w", err)
	}
	return events, nil
}

// HasHistory reports whether sessionID has a non-empty history file.
func (s *Store) HasHistory(sessionID string) bool {
	if sessionID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	info, err := os.Stat(s.pathFor(sessionID))
	return err == nil && info.Size() > 0
}

// Fork copies srcID's history file byte-for-byte to dstID, per §4.4.d's
// "fork = byte-copy". dstID must not already have history.
func (s *Store) Fork(srcID, dstID string) error {
	if srcID == "" || dstID == "" {
		return fmt.Errorf("session: both source and destination ids are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	src, err := os.Open(s.pathFor(srcID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil // nothing to fork
		}
		return fmt.Errorf("session: open source history: %w", err)
	}
	defer func() { _ = src.Close() }()

	dst, err := os.OpenFile(s.pathFor(dstID), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("session: create destination history: %w", err)
	}
	defer func() { _ = dst.Close() }()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("session: copy history: %w", err)
	}
	return nil
}

// Delete removes sessionID's history file, if any.
func (s *Store) Delete(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session: session id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.pathFor(sessionID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("session: delete history: %w", err)
	}
	return nil
}
