//go:build !windows

package process

import (
	"os"
	"os/exec"

	"github.com/creack/pty"
)

// unixPTY wraps a Unix PTY master file descriptor.
type unixPTY struct {
	f *os.File
}

func (p *unixPTY) Read(b []byte) (int, error)  { return p.f.Read(b) }
func (p *unixPTY) Write(b []byte) (int, error) { return p.f.Write(b) }
func (p *unixPTY) Close() error                { return p.f.Close() }

func (p *unixPTY) Resize(cols, rows uint16) error {
	return pty.Setsize(p.f, &pty.Winsize{Cols: cols, Rows: rows})
}

// startPTY starts cmd attached to a freshly allocated PTY at a default size;
// ModeInteractive children resize it once the caller knows the real terminal
// dimensions (§4.1).
func startPTY(cmd *exec.Cmd) (PtyHandle, error) {
	f, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: 120, Rows: 40})
	if err != nil {
		return nil, err
	}
	return &unixPTY{f: f}, nil
}
