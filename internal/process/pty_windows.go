//go:build windows

package process

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/UserExistsError/conpty"
)

// windowsPTY wraps a Windows ConPTY pseudo-console.
type windowsPTY struct {
	cpty *conpty.ConPty
}

func (p *windowsPTY) Read(b []byte) (int, error)  { return p.cpty.Read(b) }
func (p *windowsPTY) Write(b []byte) (int, error) { return p.cpty.Write(b) }
func (p *windowsPTY) Close() error                { return p.cpty.Close() }

func (p *windowsPTY) Resize(cols, rows uint16) error {
	return p.cpty.Resize(int(cols), int(rows))
}

// startPTY starts cmd attached to a freshly allocated ConPTY pseudo-console.
// ConPTY manages process creation itself, so this builds a command line from
// cmd and sets cmd.Process afterward so the rest of the manager can still use
// Kill/Wait bookkeeping uniformly across platforms.
func startPTY(cmd *exec.Cmd) (PtyHandle, error) {
	cmdLine := buildCmdLine(cmd.Args)
	if len(cmd.Args) == 0 {
		cmdLine = cmd.Path
	}

	opts := []conpty.ConPtyOption{conpty.ConPtyDimensions(120, 40)}
	if cmd.Dir != "" {
		opts = append(opts, conpty.ConPtyWorkDir(cmd.Dir))
	}
	if cmd.Env != nil {
		opts = append(opts, conpty.ConPtyEnv(cmd.Env))
	}

	cpty, err := conpty.Start(cmdLine, opts...)
	if err != nil {
		return nil, err
	}

	pid := cpty.Pid()
	proc, err := os.FindProcess(int(pid))
	if err != nil {
		_ = cpty.Close()
		return nil, fmt.Errorf("process: find conpty process %d: %w", pid, err)
	}
	cmd.Process = proc

	return &windowsPTY{cpty: cpty}, nil
}

func buildCmdLine(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = a
		if strings.ContainsAny(a, " \t\"") {
			quoted[i] = `"` + strings.ReplaceAll(a, `"`, `\"`) + `"`
		}
	}
	return strings.Join(quoted, " ")
}
