package analysis

import (
	"time"

	"github.com/mabhi256/refwatch/internal/heapdump"
	"github.com/mabhi256/refwatch/internal/watcher"
)

// Result is what gets stored for every retained reference that was dumped.
type Result struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	File string `json:"file"`

	WatchDurationMs    int64 `json:"watch_duration_ms"`
	GcDurationMs       int64 `json:"gc_duration_ms"`
	HeapDumpDurationMs int64 `json:"heap_dump_duration_ms"`
	AnalysisDurationMs int64 `json:"analysis_duration_ms"`

	ExcludedRefs            []string          `json:"excluded_refs,omitempty"`
	ComputeRetainedHeapSize bool              `json:"compute_retained_heap_size"`
	Metadata                map[string]string `json:"metadata,omitempty"`

	// Summary is nil when the dump could not be inspected; Error says why.
	Summary *heapdump.Summary `json:"summary,omitempty"`
	Error   string            `json:"error,omitempty"`

	AnalyzedAt time.Time `json:"analyzed_at"`
}

func (r Result) Failed() bool {
	return r.Error != ""
}

func newResult(dump watcher.HeapDump) Result {
	return Result{
		Key:                     dump.ReferenceKey,
		Name:                    dump.ReferenceName,
		File:                    dump.File,
		WatchDurationMs:         dump.WatchDurationMs(),
		GcDurationMs:            dump.GcDurationMs(),
		HeapDumpDurationMs:      dump.HeapDumpDurationMs(),
		ExcludedRefs:            dump.ExcludedRefs,
		ComputeRetainedHeapSize: dump.ComputeRetainedHeapSize,
		Metadata:                dump.Metadata,
	}
}
