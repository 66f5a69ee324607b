package platform

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/mabhi256/refwatch/internal/watcher"
)

const selfStatusPath = "/proc/self/status"

// DebuggerControl reports a debugger as attached when the process is being
// traced (delve, gdb, strace). Systems without /proc never report one.
type DebuggerControl struct {
	statusPath string
}

var _ watcher.DebuggerControl = (*DebuggerControl)(nil)

func NewDebuggerControl() *DebuggerControl {
	return &DebuggerControl{statusPath: selfStatusPath}
}

func (d *DebuggerControl) IsDebuggerAttached() bool {
	pid, err := readTracerPid(d.statusPath)
	if err != nil {
		return false
	}
	return pid != 0
}

func readTracerPid(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}

	pid, _ := parseTracerPid(lines)
	return pid, nil
}

// parseTracerPid extracts the TracerPid field from /proc/<pid>/status lines.
func parseTracerPid(lines []string) (int, bool) {
	for _, line := range lines {
		key, value, found := strings.Cut(line, ":")
		if !found || strings.TrimSpace(key) != "TracerPid" {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 0, false
		}
		return pid, true
	}
	return 0, false
}
