// Package main implements a mock agent binary that speaks the stream-json
// protocol over stdin/stdout, for exercising the engine's stream-json
// executor without a real agent binary on hand.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

type innerMessage struct {
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type toolCallLine struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Kind      string         `json:"kind"`
	Title     string         `json:"title"`
	Status    string         `json:"status"`
	RawInput  map[string]any `json:"raw_input,omitempty"`
	RawOutput any            `json:"raw_output,omitempty"`
}

type planLine struct {
	Content string `json:"content"`
	Status  string `json:"status"`
}

type wireMessage struct {
	Type      string        `json:"type"`
	Subtype   string        `json:"subtype,omitempty"`
	SessionID string        `json:"session_id,omitempty"`
	Message   *innerMessage `json:"message,omitempty"`
	ToolCall  *toolCallLine `json:"tool_call,omitempty"`
	Plan      []planLine    `json:"plan,omitempty"`
	Result    string        `json:"result,omitempty"`
}

// sessionID uniquely tags this process's run; PID is enough since every run
// spawns its own process.
var sessionID = fmt.Sprintf("mock-session-%d", os.Getpid())

func main() {
	prompt, err := io.ReadAll(os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mock-agent: read stdin: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	emit := func(m wireMessage) {
		if err := enc.Encode(m); err != nil {
			fmt.Fprintf(os.Stderr, "mock-agent: encode: %v\n", err)
		}
	}

	emit(wireMessage{Type: "system", Subtype: "init", SessionID: sessionID})

	emit(wireMessage{Type: "plan", Plan: []planLine{
		{Content: "read the prompt", Status: "completed"},
		{Content: "respond", Status: "in_progress"},
	}})

	emit(wireMessage{Type: "assistant", Message: &innerMessage{
		Content: []contentBlock{{Type: "text", Text: "working on: " + firstLine(prompt)}},
	}})

	emit(wireMessage{Type: "tool_use", ToolCall: &toolCallLine{
		ID: "call-1", Name: "echo", Kind: "execute", Title: "echo prompt", Status: "in_progress",
		RawInput: map[string]any{"text": string(prompt)},
	}})
	emit(wireMessage{Type: "tool_result", ToolCall: &toolCallLine{
		ID: "call-1", Status: "completed", RawOutput: string(prompt),
	}})

	emit(wireMessage{Type: "assistant", Message: &innerMessage{
		Content: []contentBlock{{Type: "text", Text: "done"}},
	}})

	emit(wireMessage{Type: "result", Result: "ok"})
}

func firstLine(b []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(b))
	if scanner.Scan() {
		return scanner.Text()
	}
	return ""
}
