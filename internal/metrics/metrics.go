package metrics

import (
	"time"

	"github.com/mabhi256/refwatch/internal/watcher"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "refwatch"

// Metrics groups the collectors for one watcher. Collectors are registered
// on the registerer passed to New, so tests can use a fresh registry.
type Metrics struct {
	factory promauto.Factory

	watches          prometheus.Counter
	verifyAttempts   *prometheus.CounterVec
	heapDumps        *prometheus.CounterVec
	heapDumpDuration prometheus.Histogram
	leaksAnalyzed    prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		factory: factory,
		watches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watches_total",
			Help:      "References handed to the watcher.",
		}),
		verifyAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verify_attempts_total",
			Help:      "Verification attempts by outcome (done, retry).",
		}, []string{"result"}),
		heapDumps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heap_dumps_total",
			Help:      "Heap dump requests by outcome (ok, unavailable).",
		}, []string{"result"}),
		heapDumpDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "heap_dump_duration_seconds",
			Help:      "Time spent writing heap dumps.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		leaksAnalyzed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leaks_analyzed_total",
			Help:      "Heap dumps delivered to the listener.",
		}),
	}
}

// RegisterRetained exposes the number of retained references, read on scrape.
func (m *Metrics) RegisterRetained(count func() int) {
	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "retained_references",
		Help:      "Watched references not yet known to be collected.",
	}, func() float64 { return float64(count()) })
}

type executor struct {
	next    watcher.WatchExecutor
	metrics *Metrics
}

// WrapExecutor counts every submitted watch and the outcome of each attempt.
func (m *Metrics) WrapExecutor(next watcher.WatchExecutor) watcher.WatchExecutor {
	return &executor{next: next, metrics: m}
}

func (e *executor) Execute(task watcher.Retryable) {
	e.metrics.watches.Inc()
	e.next.Execute(func() watcher.Result {
		result := task()
		e.metrics.verifyAttempts.WithLabelValues(result.String()).Inc()
		return result
	})
}

type heapDumper struct {
	next    watcher.HeapDumper
	metrics *Metrics
}

func (m *Metrics) WrapHeapDumper(next watcher.HeapDumper) watcher.HeapDumper {
	return &heapDumper{next: next, metrics: m}
}

func (d *heapDumper) DumpHeap() (string, bool) {
	start := time.Now()
	file, ok := d.next.DumpHeap()
	if !ok {
		d.metrics.heapDumps.WithLabelValues("unavailable").Inc()
		return file, ok
	}
	d.metrics.heapDumpDuration.Observe(time.Since(start).Seconds())
	d.metrics.heapDumps.WithLabelValues("ok").Inc()
	return file, ok
}

type listener struct {
	next    watcher.Listener
	metrics *Metrics
}

func (m *Metrics) WrapListener(next watcher.Listener) watcher.Listener {
	return &listener{next: next, metrics: m}
}

func (l *listener) Analyze(dump watcher.HeapDump) {
	l.metrics.leaksAnalyzed.Inc()
	l.next.Analyze(dump)
}
