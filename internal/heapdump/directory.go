package heapdump

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

const (
	pendingSuffix = ".pending"
	filePrefix    = "refwatch-"
	timeLayout    = "20060102-150405.000000000"

	// A pending file younger than this means a dump is still being written,
	// possibly by another process sharing the directory, and no new one
	// should be started. Older ones were abandoned by a crashed writer.
	pendingTimeout = 10 * time.Minute
)

// Directory owns the folder heap dumps are written to. Dumps are created as
// pending files and only get their final name once fully written.
type Directory struct {
	path      string
	maxStored int
	logger    *slog.Logger
	now       func() time.Time
}

func NewDirectory(path string, maxStored int, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Directory{
		path:      path,
		maxStored: maxStored,
		logger:    logger,
		now:       time.Now,
	}
}

func (d *Directory) Path() string {
	return d.path
}

// newPendingFile creates an empty pending file for a dump with the given
// extension. ok is false when the directory is unusable or another dump is
// still pending.
func (d *Directory) newPendingFile(ext string) (*os.File, bool) {
	if err := os.MkdirAll(d.path, 0o755); err != nil {
		d.logger.Warn("could not create heap dump directory", "dir", d.path, "error", err)
		return nil, false
	}

	pending, err := d.pendingFiles()
	if err != nil {
		d.logger.Warn("could not list heap dump directory", "dir", d.path, "error", err)
		return nil, false
	}
	for _, p := range pending {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if d.now().Sub(info.ModTime()) < pendingTimeout {
			d.logger.Info("previous heap dump still pending, try later", "file", p)
			return nil, false
		}
		d.logger.Warn("removing stale pending heap dump", "file", p)
		_ = os.Remove(p)
	}

	name := filePrefix + d.now().Format(timeLayout) + "." + ext + pendingSuffix
	f, err := os.OpenFile(filepath.Join(d.path, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		d.logger.Warn("could not create heap dump file", "dir", d.path, "error", err)
		return nil, false
	}
	return f, true
}

// commit gives a fully written pending file its final name and prunes old dumps.
func (d *Directory) commit(pending string) (string, error) {
	final := strings.TrimSuffix(pending, pendingSuffix)
	if err := os.Rename(pending, final); err != nil {
		return "", fmt.Errorf("failed to rename heap dump: %w", err)
	}
	d.prune()
	return final, nil
}

func (d *Directory) discard(pending string) {
	if err := os.Remove(pending); err != nil && !os.IsNotExist(err) {
		d.logger.Warn("could not remove pending heap dump", "file", pending, "error", err)
	}
}

// Files lists committed dumps, newest first.
func (d *Directory) Files() ([]string, error) {
	entries, err := os.ReadDir(d.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read heap dump directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || strings.HasSuffix(name, pendingSuffix) {
			continue
		}
		files = append(files, filepath.Join(d.path, name))
	}

	// names embed the creation time
	slices.Sort(files)
	slices.Reverse(files)
	return files, nil
}

// CleanPending removes pending files left behind by a previous run.
func (d *Directory) CleanPending() error {
	pending, err := d.pendingFiles()
	if err != nil {
		return err
	}
	for _, p := range pending {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove pending heap dump: %w", err)
		}
	}
	return nil
}

func (d *Directory) pendingFiles() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(d.path, filePrefix+"*"+pendingSuffix))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending heap dumps: %w", err)
	}
	return matches, nil
}

func (d *Directory) prune() {
	if d.maxStored <= 0 {
		return
	}
	files, err := d.Files()
	if err != nil {
		d.logger.Warn("could not prune heap dumps", "error", err)
		return
	}
	for _, f := range files[min(d.maxStored, len(files)):] {
		d.logger.Debug("removing old heap dump", "file", f)
		if err := os.Remove(f); err != nil {
			d.logger.Warn("could not remove old heap dump", "file", f, "error", err)
		}
	}
}
