package demo

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mabhi256/refwatch/internal/executor"
	"github.com/mabhi256/refwatch/internal/platform"
	"github.com/mabhi256/refwatch/internal/watcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dumpRecorder struct {
	mu    sync.Mutex
	names []string
}

func (r *dumpRecorder) Analyze(d watcher.HeapDump) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, d.ReferenceName)
}

func (r *dumpRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

func newWatcher(t *testing.T, rec *dumpRecorder) *watcher.RefWatcher {
	t.Helper()
	exec := executor.New(executor.Config{InitialDelay: time.Millisecond, MaxBackoff: 10 * time.Millisecond})
	t.Cleanup(exec.Close)

	w, err := watcher.New(&watcher.Config{
		Executor:   exec,
		Debugger:   watcher.NoDebugger,
		GcTrigger:  &platform.GcTrigger{EnqueueDelay: time.Millisecond},
		HeapDumper: watcher.HeapDumperFunc(func() (string, bool) { return "/tmp/demo.heapdump", true }),
		Listener:   rec,
	})
	require.NoError(t, err)
	return w
}

func TestWorkload_ReleasedWidgetsAreCollected(t *testing.T) {
	rec := &dumpRecorder{}
	w := newWatcher(t, rec)
	wl := New(w)

	keys, err := wl.Release(5)
	require.NoError(t, err)
	assert.Len(t, keys, 5)

	require.Eventually(t, w.IsEmpty, 5*time.Second, 5*time.Millisecond)
	assert.Empty(t, rec.snapshot())
	assert.Zero(t, wl.Leaked())
}

func TestWorkload_LeakedWidgetsAreReported(t *testing.T) {
	rec := &dumpRecorder{}
	w := newWatcher(t, rec)
	wl := New(w)

	keys, err := wl.Leak(2)
	require.NoError(t, err)
	assert.Equal(t, 2, wl.Leaked())

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, 5*time.Second, 5*time.Millisecond)
	for _, name := range rec.snapshot() {
		assert.True(t, strings.HasPrefix(name, "leaked-"), name)
	}
	assert.ElementsMatch(t, keys, w.RetainedKeys())

	assert.Equal(t, 2, wl.Reset())
	assert.Zero(t, wl.Leaked())
}

func TestWorkload_DisabledWatcher(t *testing.T) {
	wl := New(watcher.NewDisabled())

	keys, err := wl.Leak(3)
	require.NoError(t, err)
	assert.Equal(t, []string{"", "", ""}, keys)
	assert.Equal(t, 3, wl.Reset())
}
