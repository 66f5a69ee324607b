package metrics

import (
	"strings"
	"testing"

	"github.com/mabhi256/refwatch/internal/watcher"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inlineExecutor struct{}

// runs a task until it reports done
func (inlineExecutor) Execute(task watcher.Retryable) {
	for task() == watcher.Retry {
	}
}

func TestWrapExecutor_CountsWatchesAndAttempts(t *testing.T) {
	m := New(prometheus.NewRegistry())
	exec := m.WrapExecutor(inlineExecutor{})

	runs := 0
	exec.Execute(func() watcher.Result {
		runs++
		if runs < 3 {
			return watcher.Retry
		}
		return watcher.Done
	})
	exec.Execute(func() watcher.Result { return watcher.Done })

	assert.Equal(t, 2.0, testutil.ToFloat64(m.watches))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.verifyAttempts.WithLabelValues("retry")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.verifyAttempts.WithLabelValues("done")))
}

func TestWrapHeapDumper(t *testing.T) {
	m := New(prometheus.NewRegistry())

	ok := true
	dumper := m.WrapHeapDumper(watcher.HeapDumperFunc(func() (string, bool) {
		if ok {
			return "/tmp/x.heapdump", true
		}
		return "", false
	}))

	file, got := dumper.DumpHeap()
	assert.True(t, got)
	assert.Equal(t, "/tmp/x.heapdump", file)

	ok = false
	_, got = dumper.DumpHeap()
	assert.False(t, got)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.heapDumps.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.heapDumps.WithLabelValues("unavailable")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.heapDumpDuration))
}

func TestWrapListener(t *testing.T) {
	m := New(prometheus.NewRegistry())

	var received []watcher.HeapDump
	l := m.WrapListener(watcher.ListenerFunc(func(d watcher.HeapDump) {
		received = append(received, d)
	}))
	l.Analyze(watcher.HeapDump{ReferenceKey: "a"})

	require.Len(t, received, 1)
	assert.Equal(t, "a", received[0].ReferenceKey)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.leaksAnalyzed))
}

func TestRegisterRetained(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	retained := 3
	m.RegisterRetained(func() int { return retained })

	expected := `
# HELP refwatch_retained_references Watched references not yet known to be collected.
# TYPE refwatch_retained_references gauge
refwatch_retained_references 3
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "refwatch_retained_references"))

	retained = 0
	expected = strings.Replace(expected, "references 3", "references 0", 1)
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "refwatch_retained_references"))
}
