package executor

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/mabhi256/refwatch/internal/watcher"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

type Config struct {
	// InitialDelay before the first attempt. Retries wait
	// InitialDelay * 2^failedAttempts, capped at MaxBackoff.
	InitialDelay time.Duration
	MaxBackoff   time.Duration

	// AttemptsPerSecond limits how often attempts start across all tasks, so
	// a burst of watches doesn't run back to back GC passes. 0 disables it.
	AttemptsPerSecond float64
	Burst             int

	Logger *slog.Logger
}

func DefaultConfig() Config {
	return Config{
		InitialDelay:      5 * time.Second,
		MaxBackoff:        time.Hour,
		AttemptsPerSecond: 2,
		Burst:             1,
	}
}

// Executor runs each task on its own goroutine, retrying with exponential
// backoff until the task reports watcher.Done or the executor is closed.
// Panics raised by tasks are not recovered.
type Executor struct {
	config  Config
	limiter *rate.Limiter
	tracer  trace.Tracer
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

var _ watcher.WatchExecutor = (*Executor)(nil)

func New(config Config) *Executor {
	if config.MaxBackoff < config.InitialDelay {
		config.MaxBackoff = config.InitialDelay
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var limiter *rate.Limiter
	if config.AttemptsPerSecond > 0 {
		burst := max(config.Burst, 1)
		limiter = rate.NewLimiter(rate.Limit(config.AttemptsPerSecond), burst)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		config:  config,
		limiter: limiter,
		tracer:  otel.Tracer("github.com/mabhi256/refwatch/internal/executor"),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (e *Executor) Execute(task watcher.Retryable) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.logger.Debug("executor closed, dropping task")
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()

	go e.run(task)
}

// Close stops scheduling attempts and waits for running ones to finish.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
}

func (e *Executor) run(task watcher.Retryable) {
	defer e.wg.Done()

	for failed := 0; ; failed++ {
		if !e.sleep(e.Backoff(failed)) {
			return
		}
		if e.limiter != nil {
			if err := e.limiter.Wait(e.ctx); err != nil {
				return
			}
		}
		if e.attempt(task, failed) == watcher.Done {
			return
		}
	}
}

func (e *Executor) attempt(task watcher.Retryable, failed int) watcher.Result {
	_, span := e.tracer.Start(e.ctx, "refwatch.verify",
		trace.WithAttributes(attribute.Int("refwatch.failed_attempts", failed)))
	defer span.End()

	result := task()
	span.SetAttributes(attribute.String("refwatch.result", result.String()))
	if result == watcher.Retry {
		e.logger.Debug("verify attempt asked for retry",
			"failed_attempts", failed+1, "next_delay", e.Backoff(failed+1))
	}
	return result
}

// Backoff is the delay before the attempt that follows the given number of
// failed attempts.
func (e *Executor) Backoff(failed int) time.Duration {
	delay := e.config.InitialDelay
	for range failed {
		if delay >= e.config.MaxBackoff/2 {
			return e.config.MaxBackoff
		}
		delay *= 2
	}
	return min(delay, e.config.MaxBackoff)
}

func (e *Executor) sleep(d time.Duration) bool {
	if d <= 0 {
		return e.ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-e.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
