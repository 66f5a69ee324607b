// Package watcher detects objects that should have been collected but are
// still reachable.
//
// A RefWatcher holds weak references to watched objects. Some time after
// Watch returns, a check runs on the WatchExecutor: if the object has not
// been collected even after a GC pass, the heap is dumped and a HeapDump is
// handed to the Listener.
//
// RefWatcher is safe for concurrent use: Watch may be called from any
// goroutine.
package watcher

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNilReference        = errors.New("watched reference must not be nil")
	ErrMissingCollaborator = errors.New("missing watcher collaborator")

	// ErrUntrackableReference is returned for objects whose collection the
	// runtime does not report individually: zero-size values, and
	// pointer-free values small enough for the tiny allocator.
	ErrUntrackableReference = errors.New("watched reference cannot be tracked by the collector")
)

// tinySize is the runtime's tiny allocator block size. Pointer-free objects
// below it share a block and are freed together.
const tinySize = 16

// Config carries the collaborators a RefWatcher needs.
type Config struct {
	Executor   WatchExecutor
	Debugger   DebuggerControl
	GcTrigger  GcTrigger
	HeapDumper HeapDumper
	Listener   Listener

	HeapDumpBuilder HeapDumpBuilder

	// Logger defaults to discarding output.
	Logger *slog.Logger
}

// RefWatcher watches references and reports the ones that outlive a GC pass.
type RefWatcher struct {
	disabled bool

	executor        WatchExecutor
	debugger        DebuggerControl
	gcTrigger       GcTrigger
	heapDumper      HeapDumper
	listener        Listener
	heapDumpBuilder HeapDumpBuilder

	retained *retainedKeys
	queue    *referenceQueue
	logger   *slog.Logger
}

// New returns a RefWatcher, or ErrMissingCollaborator if one is nil.
func New(config *Config) (*RefWatcher, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: config", ErrMissingCollaborator)
	}

	required := []struct {
		name    string
		missing bool
	}{
		{"executor", config.Executor == nil},
		{"debugger", config.Debugger == nil},
		{"gc trigger", config.GcTrigger == nil},
		{"heap dumper", config.HeapDumper == nil},
		{"listener", config.Listener == nil},
	}
	for _, r := range required {
		if r.missing {
			return nil, fmt.Errorf("%w: %s", ErrMissingCollaborator, r.name)
		}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &RefWatcher{
		executor:        config.Executor,
		debugger:        config.Debugger,
		gcTrigger:       config.GcTrigger,
		heapDumper:      config.HeapDumper,
		listener:        config.Listener,
		heapDumpBuilder: config.HeapDumpBuilder,
		retained:        newRetainedKeys(),
		queue:           newReferenceQueue(),
		logger:          logger,
	}, nil
}

// NewDisabled returns a watcher on which Watch does nothing. Build it once at
// startup and pass it around in place of a real watcher to turn leak
// detection off.
func NewDisabled() *RefWatcher {
	return &RefWatcher{
		disabled: true,
		retained: newRetainedKeys(),
		queue:    newReferenceQueue(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// Watch is WatchNamed with an empty name.
func Watch[T any](w *RefWatcher, ref *T) (string, error) {
	return WatchNamed(w, ref, "")
}

// WatchNamed starts watching ref and returns the key identifying this watch.
// It never blocks: the check runs later on the watcher's WatchExecutor.
// Watching the same object twice yields two independent keys.
func WatchNamed[T any](w *RefWatcher, ref *T, name string) (string, error) {
	if w.disabled {
		return "", nil
	}
	if ref == nil {
		return "", ErrNilReference
	}
	if t := reflect.TypeFor[T](); !trackable(t) {
		return "", fmt.Errorf("%w: %s", ErrUntrackableReference, t)
	}

	watchStart := time.Now()
	key := uuid.NewString()
	w.retained.add(key)
	kref := newKeyedWeakReference(ref, key, name, w.queue)

	w.logger.Debug("watching reference", "key", key, "name", name)
	w.ensureGoneAsync(watchStart, kref)
	return key, nil
}

// ClearWatchedReferences stops watching every reference watched so far.
// Checks already scheduled for them finish without dumping the heap.
func (w *RefWatcher) ClearWatchedReferences() {
	w.retained.clear()
}

// IsEmpty reports whether no watched reference is still suspected retained.
func (w *RefWatcher) IsEmpty() bool {
	w.removeWeaklyReachableReferences()
	return w.retained.len() == 0
}

// RetainedCount is the number of watched references not yet collected.
func (w *RefWatcher) RetainedCount() int {
	w.removeWeaklyReachableReferences()
	return w.retained.len()
}

// RetainedKeys returns a sorted copy of the keys not yet collected.
func (w *RefWatcher) RetainedKeys() []string {
	w.removeWeaklyReachableReferences()
	return w.retained.snapshot()
}

func (w *RefWatcher) IsDisabled() bool {
	return w.disabled
}

// HeapDumpBuilder returns the bundle defaults the watcher was configured with.
func (w *RefWatcher) HeapDumpBuilder() HeapDumpBuilder {
	return w.heapDumpBuilder
}

// trackable reports whether weak pointers and cleanups fire for a single
// object of type t once it becomes unreachable.
func trackable(t reflect.Type) bool {
	if t.Size() == 0 {
		return false
	}
	return t.Size() >= tinySize || hasPointers(t)
}

func hasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Map, reflect.Chan,
		reflect.Func, reflect.Interface, reflect.Slice, reflect.String:
		return true
	case reflect.Array:
		return t.Len() > 0 && hasPointers(t.Elem())
	case reflect.Struct:
		for i := range t.NumField() {
			if hasPointers(t.Field(i).Type) {
				return true
			}
		}
	}
	return false
}

func (w *RefWatcher) ensureGoneAsync(watchStart time.Time, ref *KeyedWeakReference) {
	w.executor.Execute(func() Result {
		return w.ensureGone(ref, watchStart)
	})
}

func (w *RefWatcher) ensureGone(ref *KeyedWeakReference, watchStart time.Time) Result {
	gcStart := time.Now()
	watchDuration := gcStart.Sub(watchStart)

	w.removeWeaklyReachableReferences()

	if w.debugger.IsDebuggerAttached() {
		w.logger.Debug("debugger attached, deferring check", "key", ref.Key)
		return Retry
	}
	if w.gone(ref) {
		return Done
	}

	w.gcTrigger.RunGc()
	w.removeWeaklyReachableReferences()
	if w.gone(ref) {
		return Done
	}

	dumpStart := time.Now()
	gcDuration := dumpStart.Sub(gcStart)

	file, ok := w.heapDumper.DumpHeap()
	if !ok {
		w.logger.Warn("could not dump heap, will retry", "key", ref.Key, "name", ref.Name)
		return Retry
	}
	heapDumpDuration := time.Since(dumpStart)

	dump, err := w.heapDumpBuilder.build(file, ref, watchDuration, gcDuration, heapDumpDuration)
	if err != nil {
		w.logger.Warn("invalid heap dump, will retry", "key", ref.Key, "error", err)
		return Retry
	}

	w.logger.Info("retained reference detected",
		"key", ref.Key,
		"name", ref.Name,
		"file", file,
		"watch_ms", dump.WatchDurationMs(),
		"gc_ms", dump.GcDurationMs(),
		"heap_dump_ms", dump.HeapDumpDurationMs(),
	)
	w.listener.Analyze(dump)
	return Done
}

func (w *RefWatcher) gone(ref *KeyedWeakReference) bool {
	return !w.retained.contains(ref.Key)
}

// removeWeaklyReachableReferences drops the keys of every reference the
// queue reports as collected. Safe to call concurrently.
func (w *RefWatcher) removeWeaklyReachableReferences() {
	for ref := w.queue.poll(); ref != nil; ref = w.queue.poll() {
		w.retained.remove(ref.Key)
	}
}
