package analysis

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mabhi256/refwatch/internal/heapdump"
	"github.com/mabhi256/refwatch/internal/watcher"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultQueueSize = 16

type ListenerConfig struct {
	Store     *Store
	QueueSize int
	Logger    *slog.Logger

	// OnResult is called from the worker goroutine after each result is saved.
	OnResult func(Result)
}

// ServiceListener hands heap dumps to a background worker so the watcher's
// executor is never blocked by analysis. Dumps arriving while the queue is
// full are dropped.
type ServiceListener struct {
	store    *Store
	onResult func(Result)
	logger   *slog.Logger
	tracer   trace.Tracer

	queue chan watcher.HeapDump
	done  chan struct{}

	mu     sync.RWMutex
	closed bool

	processed atomic.Int64
	dropped   atomic.Int64
}

var _ watcher.Listener = (*ServiceListener)(nil)

func NewServiceListener(config ListenerConfig) *ServiceListener {
	size := config.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	l := &ServiceListener{
		store:    config.Store,
		onResult: config.OnResult,
		logger:   logger,
		tracer:   otel.Tracer("github.com/mabhi256/refwatch/internal/analysis"),
		queue:    make(chan watcher.HeapDump, size),
		done:     make(chan struct{}),
	}
	go l.worker()
	return l
}

func (l *ServiceListener) Analyze(dump watcher.HeapDump) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		l.logger.Warn("listener closed, dropping heap dump", "key", dump.ReferenceKey)
		l.dropped.Add(1)
		return
	}

	select {
	case l.queue <- dump:
	default:
		l.logger.Warn("analysis queue full, dropping heap dump",
			"key", dump.ReferenceKey, "file", dump.File)
		l.dropped.Add(1)
	}
}

// Close stops accepting dumps and waits until queued ones are analyzed.
func (l *ServiceListener) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	<-l.done
}

func (l *ServiceListener) Processed() int64 {
	return l.processed.Load()
}

func (l *ServiceListener) Dropped() int64 {
	return l.dropped.Load()
}

func (l *ServiceListener) worker() {
	defer close(l.done)
	for dump := range l.queue {
		result := l.analyze(dump)
		l.processed.Add(1)
		if l.onResult != nil {
			l.onResult(result)
		}
	}
}

func (l *ServiceListener) analyze(dump watcher.HeapDump) Result {
	_, span := l.tracer.Start(context.Background(), "refwatch.analyze",
		trace.WithAttributes(
			attribute.String("refwatch.key", dump.ReferenceKey),
			attribute.String("refwatch.name", dump.ReferenceName),
			attribute.String("refwatch.file", dump.File),
		))
	defer span.End()

	start := time.Now()
	result := newResult(dump)

	summary, err := heapdump.Inspect(dump.File)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "inspect failed")
		l.logger.Warn("could not inspect heap dump", "file", dump.File, "error", err)
		result.Error = err.Error()
	} else {
		result.Summary = summary
		span.SetAttributes(attribute.Int("refwatch.objects", summary.Objects))
	}

	result.AnalysisDurationMs = time.Since(start).Milliseconds()
	result.AnalyzedAt = time.Now()

	if l.store != nil {
		if err := l.store.Save(result); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "save failed")
			l.logger.Error("could not save analysis result", "key", result.Key, "error", err)
		}
	}

	l.logger.Info("leak analyzed",
		"key", result.Key,
		"name", result.Name,
		"file", result.File,
		"failed", result.Failed(),
		"took_ms", result.AnalysisDurationMs)
	return result
}
