// Package app assembles a watcher and its supporting services from config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/mabhi256/refwatch/internal/analysis"
	"github.com/mabhi256/refwatch/internal/config"
	"github.com/mabhi256/refwatch/internal/executor"
	"github.com/mabhi256/refwatch/internal/heapdump"
	"github.com/mabhi256/refwatch/internal/logging"
	"github.com/mabhi256/refwatch/internal/metrics"
	"github.com/mabhi256/refwatch/internal/platform"
	"github.com/mabhi256/refwatch/internal/telemetry"
	"github.com/mabhi256/refwatch/internal/watcher"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const telemetryShutdownTimeout = 5 * time.Second

type Options struct {
	// Version is reported as service.version on spans.
	Version string
	// Logger overrides the logger built from config.Log.
	Logger *slog.Logger
	// OnResult is called for every analysis result, from the analysis worker.
	OnResult func(analysis.Result)
}

type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Watcher  *watcher.RefWatcher
	Dumps    *heapdump.Directory
	Store    *analysis.Store
	Listener *analysis.ServiceListener

	executor          *executor.Executor
	logCloser         io.Closer
	telemetryShutdown func(context.Context) error
}

func Build(cfg config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &App{Config: cfg}

	if opts.Logger != nil {
		a.Logger = opts.Logger
	} else {
		logger, closer, err := logging.New(logging.Config{
			Level:  cfg.Log.Level,
			Format: cfg.Log.Format,
			File:   cfg.Log.File,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to set up logging: %w", err)
		}
		a.Logger = logger
		a.logCloser = closer
	}

	shutdown, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName:    "refwatch",
		ServiceVersion: opts.Version,
		Exporter:       cfg.Tracing.Exporter,
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}
	a.telemetryShutdown = shutdown

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	store, err := analysis.OpenStore(analysis.StoreConfig{
		Path:     cfg.Analysis.StorePath,
		InMemory: cfg.Analysis.InMemory,
		Logger:   a.Logger.With("component", "badger"),
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store

	a.Dumps = heapdump.NewDirectory(cfg.HeapDump.Dir, cfg.HeapDump.MaxStored, a.Logger)

	if !cfg.Enabled {
		a.Logger.Info("leak detection disabled")
		a.Watcher = watcher.NewDisabled()
		a.Metrics.RegisterRetained(a.Watcher.RetainedCount)
		return a, nil
	}

	if err := a.Dumps.CleanPending(); err != nil {
		a.Logger.Warn("could not clean pending heap dumps", "error", err)
	}

	// Validate already checked the format.
	format, _ := heapdump.ParseFormat(cfg.HeapDump.Format)

	a.executor = executor.New(executor.Config{
		InitialDelay:      cfg.Watch.InitialDelay,
		MaxBackoff:        cfg.Watch.MaxBackoff,
		AttemptsPerSecond: cfg.Watch.AttemptsPerSecond,
		Burst:             cfg.Watch.Burst,
		Logger:            a.Logger,
	})

	a.Listener = analysis.NewServiceListener(analysis.ListenerConfig{
		Store:     store,
		QueueSize: cfg.Analysis.QueueSize,
		Logger:    a.Logger,
		OnResult:  opts.OnResult,
	})

	w, err := watcher.New(&watcher.Config{
		Executor:   a.Metrics.WrapExecutor(a.executor),
		Debugger:   platform.NewDebuggerControl(),
		GcTrigger:  platform.NewGcTrigger(),
		HeapDumper: a.Metrics.WrapHeapDumper(heapdump.NewDumper(a.Dumps, format, a.Logger)),
		Listener:   a.Metrics.WrapListener(a.Listener),
		HeapDumpBuilder: watcher.HeapDumpBuilder{
			ExcludedRefs:            cfg.Watch.ExcludedRefs,
			ComputeRetainedHeapSize: cfg.Watch.ComputeRetainedHeapSize,
			Metadata:                cfg.Watch.Metadata,
		},
		Logger: a.Logger,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	a.Watcher = w
	a.Metrics.RegisterRetained(w.RetainedCount)

	a.Logger.Info("leak detection enabled",
		"initial_delay", cfg.Watch.InitialDelay,
		"heap_dump_dir", cfg.HeapDump.Dir,
		"format", format)
	return a, nil
}

// Close stops pending checks, waits for queued analyses and closes the store.
func (a *App) Close() error {
	if a.executor != nil {
		a.executor.Close()
	}
	if a.Listener != nil {
		a.Listener.Close()
	}

	var errs []error
	if a.telemetryShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		if err := a.telemetryShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush spans: %w", err))
		}
		cancel()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close store: %w", err))
		}
	}
	if a.logCloser != nil {
		if err := a.logCloser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
