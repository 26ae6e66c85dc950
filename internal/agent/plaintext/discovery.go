// Package plaintext implements the plain-text executor with log-directory
// session-id discovery (§4.4.c): the child writes free-form ANSI text to
// stdout and a debug log file the host polls for to recover a session id.
package plaintext

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/kandev/agentengine/internal/common/logger"
	"go.uber.org/zap"
)

const (
	pollInterval     = 200 * time.Millisecond
	discoveryTimeout = 10 * time.Minute
)

var sessionUUID = regexp.MustCompile(`^(?:session-)?([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})$`)

// sessionMarkerPrefix is injected into the child's own stdout byte stream
// once a session id is discovered, so the same scanner that reads the
// child's output also observes the session id as an ordinary line
// (§4.4.c step 4).
const sessionMarkerPrefix = "[copilot-session] "

// formatSessionLine renders id as the marker line injected into stdout.
func formatSessionLine(id string) string {
	return sessionMarkerPrefix + id + "\n"
}

// parseSessionLine recovers the session id from a line of stdout text, if
// it is a marker line formatSessionLine produced. The round trip is exact
// modulo the trailing newline, which the scanner already strips.
func parseSessionLine(line string) (string, bool) {
	rest, ok := strings.CutPrefix(line, sessionMarkerPrefix)
	if !ok {
		return "", false
	}
	m := sessionUUID.FindStringSubmatch(strings.TrimRight(rest, "\r\n"))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// newLogDir creates <tmp>/<agent>_logs/<workDirBase>/<timestamp>-<rand>/ and
// returns its path (§6: "Log-directory layout").
func newLogDir(agent, workDir string) (string, error) {
	base := filepath.Base(workDir)
	stamp := fmt.Sprintf("%d-%04x", time.Now().UnixNano(), rand.Intn(1<<16))
	dir := filepath.Join(os.TempDir(), agent+"_logs", base, stamp)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("plaintext: create log dir: %w", err)
	}
	return dir, nil
}

// pollForSessionID polls dir every 200ms (timeout 10min) for a *.log file
// whose stem matches the UUID form, with an optional "session-" prefix
// (§4.4.c step 4). It returns the discovered session id, or "" if ctx is
// cancelled or the timeout elapses — a non-fatal condition (§7.7).
func pollForSessionID(ctx context.Context, dir string, log *logger.Logger) string {
	deadline := time.Now().Add(discoveryTimeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if id := scanForSessionLog(dir); id != "" {
			return id
		}
		if time.Now().After(deadline) {
			log.Warn("session-id discovery timed out", zap.String("dir", dir))
			return ""
		}
		select {
		case <-ctx.Done():
			return ""
		case <-ticker.C:
		}
	}
}

func scanForSessionLog(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), ".log")
		if m := sessionUUID.FindStringSubmatch(stem); m != nil {
			return m[1]
		}
	}
	return ""
}
