package watcher

import (
	"errors"
	"maps"
	"slices"
	"time"
)

var ErrEmptyHeapDumpFile = errors.New("heap dump file must not be empty")

// HeapDump is the diagnostic bundle produced when a watched reference is
// still retained after a collection. It is handed to the Listener and must
// not be modified afterwards.
type HeapDump struct {
	File          string
	ReferenceKey  string
	ReferenceName string

	// Time from the watch call to the first check.
	WatchDuration time.Duration
	// Time spent in the collection pass and the re-check.
	GcDuration time.Duration
	// Time spent capturing the snapshot.
	HeapDumpDuration time.Duration

	ExcludedRefs            []string
	ComputeRetainedHeapSize bool
	Metadata                map[string]string
}

func (d HeapDump) WatchDurationMs() int64    { return d.WatchDuration.Milliseconds() }
func (d HeapDump) GcDurationMs() int64       { return d.GcDuration.Milliseconds() }
func (d HeapDump) HeapDumpDurationMs() int64 { return d.HeapDumpDuration.Milliseconds() }

// HeapDumpBuilder holds the bundle fields supplied by whoever configures the
// watcher. The watcher fills in the per-reference fields.
type HeapDumpBuilder struct {
	ExcludedRefs            []string
	ComputeRetainedHeapSize bool
	Metadata                map[string]string
}

func (b HeapDumpBuilder) build(file string, ref *KeyedWeakReference, watchDuration, gcDuration, heapDumpDuration time.Duration) (HeapDump, error) {
	if file == "" {
		return HeapDump{}, ErrEmptyHeapDumpFile
	}

	return HeapDump{
		File:                    file,
		ReferenceKey:            ref.Key,
		ReferenceName:           ref.Name,
		WatchDuration:           watchDuration,
		GcDuration:              gcDuration,
		HeapDumpDuration:        heapDumpDuration,
		ExcludedRefs:            slices.Clone(b.ExcludedRefs),
		ComputeRetainedHeapSize: b.ComputeRetainedHeapSize,
		Metadata:                maps.Clone(b.Metadata),
	}, nil
}
