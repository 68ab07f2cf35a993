package sinks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/urlscraper/internal/progress"
)

// PrometheusSink exports run lifecycle metrics. Per-fetch counters live in
// the metrics package; this sink only tracks runs and rows written.
type PrometheusSink struct {
	runsStarted prometheus.Counter
	runsTotal   *prometheus.CounterVec
	runsRunning prometheus.Gauge
	runRuntime  *prometheus.HistogramVec
	rowsWritten *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against reg, defaulting to the
// global registerer.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "urlscraper_runs_started_total",
			Help: "Total scrape runs that have started.",
		}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "urlscraper_runs_total",
			Help: "Total scrape runs finished, partitioned by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "urlscraper_runs_running",
			Help: "Current number of running scrape runs.",
		}),
		runRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "urlscraper_run_runtime_seconds",
			Help:    "Wall time per finished run.",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"result"}),
		rowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "urlscraper_rows_written_total",
			Help: "Table rows written, partitioned by status class.",
		}, []string{"status_class"}),
		tracker: newRunTracker(),
	}
	var err error
	if s.runsStarted, err = register(reg, s.runsStarted); err != nil {
		return nil, err
	}
	if s.runsTotal, err = register(reg, s.runsTotal); err != nil {
		return nil, err
	}
	if s.runsRunning, err = register(reg, s.runsRunning); err != nil {
		return nil, err
	}
	if s.runRuntime, err = register(reg, s.runRuntime); err != nil {
		return nil, err
	}
	if s.rowsWritten, err = register(reg, s.rowsWritten); err != nil {
		return nil, err
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.Inc()
			if s.tracker.start(evt.RunID) {
				s.runsRunning.Inc()
			}
		case progress.StageRunDone:
			s.finish(evt, "success")
		case progress.StageRunError:
			s.finish(evt, "error")
		case progress.StageFetchDone:
			class := evt.StatusClass
			if class == "" {
				class = "other"
			}
			s.rowsWritten.WithLabelValues(class).Inc()
		}
	}
	return nil
}

func (s *PrometheusSink) finish(evt progress.Event, result string) {
	s.runsTotal.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.runRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.RunID) {
		s.runsRunning.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[string]struct{})}
}

func (t *runTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}

// register adds c to reg, reusing an identical collector registered by an
// earlier sink.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register progress collector: %w", err)
	}
	return c, nil
}
