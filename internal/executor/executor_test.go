package executor

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/mabhi256/refwatch/internal/watcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{
		InitialDelay: time.Millisecond,
		MaxBackoff:   4 * time.Millisecond,
	}
}

func TestBackoff(t *testing.T) {
	e := New(Config{InitialDelay: time.Second, MaxBackoff: 10 * time.Second})
	defer e.Close()

	tests := []struct {
		failed int
		want   time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{60, 10 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, e.Backoff(tt.failed), "failed=%d", tt.failed)
	}
}

func TestNew_MaxBackoffNeverBelowInitialDelay(t *testing.T) {
	e := New(Config{InitialDelay: time.Minute, MaxBackoff: time.Second})
	defer e.Close()

	assert.Equal(t, time.Minute, e.Backoff(0))
	assert.Equal(t, time.Minute, e.Backoff(5))
}

func TestExecute_RunsUntilDone(t *testing.T) {
	e := New(fastConfig())
	defer e.Close()

	var runs atomic.Int32
	e.Execute(func() watcher.Result {
		if runs.Add(1) < 3 {
			return watcher.Retry
		}
		return watcher.Done
	})

	require.Eventually(t, func() bool { return runs.Load() == 3 }, time.Second, time.Millisecond)

	// Done tasks are not run again.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(3), runs.Load())
}

func TestExecute_NeverRunsOnCallerGoroutine(t *testing.T) {
	e := New(Config{InitialDelay: 50 * time.Millisecond, MaxBackoff: time.Second})
	defer e.Close()

	var ran atomic.Bool
	e.Execute(func() watcher.Result {
		ran.Store(true)
		return watcher.Done
	})

	assert.False(t, ran.Load())
	require.Eventually(t, ran.Load, time.Second, 5*time.Millisecond)
}

func TestClose_StopsRetries(t *testing.T) {
	e := New(fastConfig())

	var runs atomic.Int32
	e.Execute(func() watcher.Result {
		runs.Add(1)
		return watcher.Retry
	})

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, time.Millisecond)
	e.Close()

	stopped := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, runs.Load())

	// Closing twice is fine, and tasks submitted afterwards never run.
	e.Close()
	var late atomic.Bool
	e.Execute(func() watcher.Result {
		late.Store(true)
		return watcher.Done
	})
	time.Sleep(10 * time.Millisecond)
	assert.False(t, late.Load())
}

func TestExecute_RateLimitsAttempts(t *testing.T) {
	config := fastConfig()
	config.AttemptsPerSecond = 20
	config.Burst = 1
	e := New(config)
	defer e.Close()

	var runs atomic.Int32
	start := time.Now()
	for range 4 {
		e.Execute(func() watcher.Result {
			runs.Add(1)
			return watcher.Done
		})
	}

	require.Eventually(t, func() bool { return runs.Load() == 4 }, 2*time.Second, time.Millisecond)
	// One token up front, then one every 50ms.
	assert.GreaterOrEqual(t, time.Since(start), 140*time.Millisecond)
}
