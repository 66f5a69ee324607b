package heapdump

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"runtime/pprof"
	"strings"
	"sync"
	"time"

	"github.com/mabhi256/refwatch/internal/watcher"
)

type Format string

const (
	// FormatGo is the runtime's full heap dump (debug.WriteHeapDump).
	FormatGo Format = "go"
	// FormatPprof is the sampled heap profile, readable by go tool pprof.
	FormatPprof Format = "pprof"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatGo, FormatPprof:
		return f, nil
	default:
		return "", fmt.Errorf("invalid heap dump format %q (want go or pprof)", s)
	}
}

func (f Format) Extension() string {
	if f == FormatPprof {
		return "pprof"
	}
	return "heapdump"
}

// Dumper writes heap dumps into a Directory. Only one dump runs at a time;
// a concurrent request gets ok=false and should be retried later.
type Dumper struct {
	dir    *Directory
	format Format
	logger *slog.Logger
	mu     sync.Mutex
}

var _ watcher.HeapDumper = (*Dumper)(nil)

func NewDumper(dir *Directory, format Format, logger *slog.Logger) *Dumper {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dumper{dir: dir, format: format, logger: logger}
}

func (d *Dumper) Format() Format {
	return d.format
}

func (d *Dumper) DumpHeap() (string, bool) {
	if !d.mu.TryLock() {
		d.logger.Info("heap dump already in progress")
		return "", false
	}
	defer d.mu.Unlock()

	f, ok := d.dir.newPendingFile(d.format.Extension())
	if !ok {
		return "", false
	}
	pending := f.Name()

	start := time.Now()
	err := d.write(f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		d.logger.Error("heap dump failed", "file", pending, "error", err)
		d.dir.discard(pending)
		return "", false
	}

	file, err := d.dir.commit(pending)
	if err != nil {
		d.logger.Error("heap dump failed", "file", pending, "error", err)
		d.dir.discard(pending)
		return "", false
	}

	d.logger.Debug("heap dump written", "file", file, "format", d.format, "took", time.Since(start))
	return file, true
}

func (d *Dumper) write(f *os.File) error {
	switch d.format {
	case FormatPprof:
		if err := pprof.Lookup("heap").WriteTo(f, 0); err != nil {
			return fmt.Errorf("failed to write heap profile: %w", err)
		}
		return nil
	default:
		debug.WriteHeapDump(f.Fd())
		return nil
	}
}
