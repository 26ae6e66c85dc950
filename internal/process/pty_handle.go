package process

import "io"

// PtyHandle abstracts PTY operations across Unix and Windows, so acquireLocal
// stays platform-agnostic (§4.1: ModeInteractive drives a real terminal, not
// a plain pipe, so cursor control and TUI redraw sequences round-trip
// correctly). On Unix this wraps github.com/creack/pty; on Windows it wraps
// github.com/UserExistsError/conpty. Grounded on the teacher's
// internal/agentctl/server/process/pty_handle.go.
type PtyHandle interface {
	io.ReadWriteCloser
	Resize(cols, rows uint16) error
}
