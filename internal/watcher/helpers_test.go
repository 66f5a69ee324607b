package watcher

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// manualExecutor queues tasks and runs them only when the test asks.
type manualExecutor struct {
	mu    sync.Mutex
	tasks []Retryable
}

func (e *manualExecutor) Execute(task Retryable) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasks = append(e.tasks, task)
}

func (e *manualExecutor) pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tasks)
}

// runOnce runs every queued task once and keeps those asking for a retry.
func (e *manualExecutor) runOnce() []Result {
	e.mu.Lock()
	tasks := e.tasks
	e.tasks = nil
	e.mu.Unlock()

	results := make([]Result, 0, len(tasks))
	var retry []Retryable
	for _, task := range tasks {
		result := task()
		results = append(results, result)
		if result == Retry {
			retry = append(retry, task)
		}
	}

	e.mu.Lock()
	e.tasks = append(retry, e.tasks...)
	e.mu.Unlock()
	return results
}

type countingGcTrigger struct {
	calls   atomic.Int32
	collect bool
	before  func()
}

func (g *countingGcTrigger) RunGc() {
	g.calls.Add(1)
	if g.before != nil {
		g.before()
	}
	if g.collect {
		runtime.GC()
	}
}

type stubDebugger struct {
	attached atomic.Bool
	calls    atomic.Int32
}

func (d *stubDebugger) IsDebuggerAttached() bool {
	d.calls.Add(1)
	return d.attached.Load()
}

type stubDumper struct {
	mu    sync.Mutex
	file  string
	ok    bool
	calls int
}

func (d *stubDumper) DumpHeap() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return d.file, d.ok
}

func (d *stubDumper) set(file string, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.file, d.ok = file, ok
}

func (d *stubDumper) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type recordingListener struct {
	mu    sync.Mutex
	dumps []HeapDump
}

func (l *recordingListener) Analyze(dump HeapDump) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dumps = append(l.dumps, dump)
}

func (l *recordingListener) received() []HeapDump {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]HeapDump(nil), l.dumps...)
}

type testRig struct {
	watcher  *RefWatcher
	executor *manualExecutor
	gc       *countingGcTrigger
	debugger *stubDebugger
	dumper   *stubDumper
	listener *recordingListener
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	rig := &testRig{
		executor: &manualExecutor{},
		gc:       &countingGcTrigger{collect: true},
		debugger: &stubDebugger{},
		dumper:   &stubDumper{file: "/tmp/refwatch-test.heapdump", ok: true},
		listener: &recordingListener{},
	}

	w, err := New(&Config{
		Executor:   rig.executor,
		Debugger:   rig.debugger,
		GcTrigger:  rig.gc,
		HeapDumper: rig.dumper,
		Listener:   rig.listener,
	})
	require.NoError(t, err)
	rig.watcher = w
	return rig
}

// trackedView is big enough and holds a pointer, so it is not batched by
// the tiny allocator and its cleanup runs reliably.
type trackedView struct {
	name    string
	payload [64]byte
	parent  *trackedView
}

// watchTransient watches an object that nothing else references.
//
//go:noinline
func watchTransient(t *testing.T, w *RefWatcher, name string) string {
	t.Helper()
	view := &trackedView{name: name}
	key, err := WatchNamed(w, view, name)
	require.NoError(t, err)
	return key
}
