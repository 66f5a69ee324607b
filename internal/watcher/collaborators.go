package watcher

// Result is the outcome of a single verify attempt.
type Result int

const (
	// Done means the watched reference needs no further checks: it was
	// collected, or the retention was reported.
	Done Result = iota
	// Retry asks the WatchExecutor to run the attempt again later.
	Retry
)

func (r Result) String() string {
	switch r {
	case Done:
		return "done"
	case Retry:
		return "retry"
	default:
		return "unknown"
	}
}

// Retryable is a unit of work run by a WatchExecutor until it returns Done.
type Retryable func() Result

// WatchExecutor runs a Retryable asynchronously at least once and schedules
// another run whenever it returns Retry. Delay and backoff are the
// executor's policy.
type WatchExecutor interface {
	Execute(task Retryable)
}

// GcTrigger requests a best-effort collection pass.
type GcTrigger interface {
	RunGc()
}

// DebuggerControl reports whether a debugger is attached to the process.
// Debuggers can keep objects alive and produce false leaks.
type DebuggerControl interface {
	IsDebuggerAttached() bool
}

// HeapDumper captures a heap snapshot.
type HeapDumper interface {
	// DumpHeap returns the path of the captured snapshot. ok is false when
	// the heap could not be dumped right now; the check is retried later.
	DumpHeap() (file string, ok bool)
}

// Listener receives a HeapDump once a retained reference is confirmed.
type Listener interface {
	Analyze(dump HeapDump)
}

// GcTriggerFunc adapts a plain function to GcTrigger.
type GcTriggerFunc func()

func (f GcTriggerFunc) RunGc() { f() }

// DebuggerControlFunc adapts a plain function to DebuggerControl.
type DebuggerControlFunc func() bool

func (f DebuggerControlFunc) IsDebuggerAttached() bool { return f() }

// HeapDumperFunc adapts a plain function to HeapDumper.
type HeapDumperFunc func() (string, bool)

func (f HeapDumperFunc) DumpHeap() (string, bool) { return f() }

// ListenerFunc adapts a plain function to Listener.
type ListenerFunc func(HeapDump)

func (f ListenerFunc) Analyze(dump HeapDump) { f(dump) }

// NoDebugger never reports an attached debugger.
var NoDebugger DebuggerControl = DebuggerControlFunc(func() bool { return false })
