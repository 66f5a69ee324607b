package platform

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	"weak"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTracerPid(t *testing.T) {
	tests := []struct {
		name   string
		lines  []string
		want   int
		wantOK bool
	}{
		{"not traced", []string{"Name:\tgo", "TracerPid:\t0"}, 0, true},
		{"traced", []string{"State:\tS (sleeping)", "TracerPid:\t4242", "Uid:\t0"}, 4242, true},
		{"missing", []string{"Name:\tgo"}, 0, false},
		{"garbage", []string{"TracerPid:\tabc"}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseTracerPid(tt.lines)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestDebuggerControl_ReadsStatusFile(t *testing.T) {
	dir := t.TempDir()
	traced := filepath.Join(dir, "traced")
	clean := filepath.Join(dir, "clean")
	require.NoError(t, os.WriteFile(traced, []byte("Name:\tx\nTracerPid:\t17\n"), 0o644))
	require.NoError(t, os.WriteFile(clean, []byte("Name:\tx\nTracerPid:\t0\n"), 0o644))

	assert.True(t, (&DebuggerControl{statusPath: traced}).IsDebuggerAttached())
	assert.False(t, (&DebuggerControl{statusPath: clean}).IsDebuggerAttached())
	assert.False(t, (&DebuggerControl{statusPath: filepath.Join(dir, "missing")}).IsDebuggerAttached())
}

type payload struct {
	data [128]byte
	next *payload
}

//go:noinline
func newWeakPayload() weak.Pointer[payload] {
	return weak.Make(&payload{})
}

func TestGcTrigger_CollectsUnreachableObjects(t *testing.T) {
	wp := newWeakPayload()

	trigger := &GcTrigger{EnqueueDelay: time.Millisecond}
	require.Eventually(t, func() bool {
		trigger.RunGc()
		return wp.Value() == nil
	}, 2*time.Second, time.Millisecond)
}

func TestNewGcTrigger_Defaults(t *testing.T) {
	assert.Equal(t, defaultEnqueueDelay, NewGcTrigger().EnqueueDelay)
	assert.Equal(t, selfStatusPath, NewDebuggerControl().statusPath)
}
