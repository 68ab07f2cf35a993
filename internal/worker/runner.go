// Package worker executes scrape runs end to end: URL building, fetching,
// export, persistence, notification, and run bookkeeping.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/urlscraper/internal/dispatcher"
	"github.com/JakeFAU/urlscraper/internal/progress"
	"github.com/JakeFAU/urlscraper/internal/scrape"
	"github.com/JakeFAU/urlscraper/internal/storage"
	"github.com/JakeFAU/urlscraper/internal/urlsource"
)

var tracer = otel.Tracer("github.com/JakeFAU/urlscraper/internal/worker")

// RunRequest describes one batch to execute.
type RunRequest = scrape.RunItem

// RunResult is what a finished run produced.
type RunResult struct {
	RunID   string
	Table   *scrape.Table
	Warning string
	BlobURI string
}

// Notification is the payload published when a run finishes.
type Notification struct {
	RunID   string `json:"run_id"`
	Rows    int    `json:"rows"`
	BlobURI string `json:"blob_uri,omitempty"`
	Warning string `json:"warning,omitempty"`
}

// Exporter writes a finished table somewhere durable.
type Exporter interface {
	Export(ctx context.Context, runID string, table *scrape.Table) (string, error)
}

// Config holds run defaults applied when a request leaves them unset.
type Config struct {
	Concurrency int
	Timeout     time.Duration
	Topic       string
}

// Deps are the collaborators of a Runner. Fetcher and Clock are required;
// every other dependency is optional.
type Deps struct {
	Fetcher   scrape.Fetcher
	Limiter   scrape.Limiter
	Clock     scrape.Clock
	Runs      scrape.RunStore
	Exporter  Exporter
	Results   scrape.ResultStore
	Publisher scrape.Publisher
	Emitter   progress.Emitter
}

// Runner executes runs. It is safe for concurrent use.
type Runner struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// NewRunner constructs a Runner.
func NewRunner(deps Deps, cfg Config, logger *zap.Logger) (*Runner, error) {
	if deps.Fetcher == nil {
		return nil, errors.New("runner requires a fetcher")
	}
	if deps.Clock == nil {
		return nil, errors.New("runner requires a clock")
	}
	if deps.Emitter == nil {
		deps.Emitter = progress.NopEmitter{}
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = dispatcher.DefaultConcurrency
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = scrape.DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{deps: deps, cfg: cfg, logger: logger.Named("runner")}, nil
}

// Execute runs req to completion. The returned result always carries the
// table built so far; an error means a setup or post-processing step failed
// and the run was recorded as failed.
func (r *Runner) Execute(ctx context.Context, req RunRequest) (RunResult, error) {
	ctx, span := tracer.Start(ctx, "worker.execute")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", req.RunID))

	logger := r.logger.With(zap.String("run_id", req.RunID))
	started := r.deps.Clock.Now()
	result := RunResult{RunID: req.RunID}

	run, err := r.beginRun(ctx, req, started)
	if err != nil {
		return result, err
	}

	urls, warning, err := urlsource.Build(req.Source)
	switch {
	case errors.Is(err, urlsource.ErrNoURLs):
		urls, warning = nil, ""
	case err != nil:
		return result, r.failRun(ctx, run, started, fmt.Errorf("build urls: %w", err))
	}
	result.Warning = warning
	run.Warning = warning

	table := scrape.NewTable(urls, started)
	result.Table = table
	run.Table = table
	r.deps.Emitter.Emit(progress.Event{
		RunID: req.RunID,
		TS:    started,
		Stage: progress.StageRunStart,
		Rows:  table.Len(),
		Note:  warning,
	})
	logger.Info("run started", zap.Int("rows", table.Len()), zap.String("warning", warning))

	d, err := r.dispatcherFor(req, logger)
	if err != nil {
		return result, r.failRun(ctx, run, started, err)
	}
	if err := d.Run(ctx, table); err != nil {
		return result, r.failRun(ctx, run, started, fmt.Errorf("fill table: %w", err))
	}

	if r.deps.Exporter != nil {
		uri, err := r.deps.Exporter.Export(ctx, req.RunID, table)
		if err != nil {
			return result, r.failRun(ctx, run, started, fmt.Errorf("export table: %w", err))
		}
		result.BlobURI = uri
		run.BlobURI = uri
	}
	if r.deps.Results != nil {
		if err := r.deps.Results.StoreResults(ctx, req.RunID, table); err != nil {
			return result, r.failRun(ctx, run, started, fmt.Errorf("store results: %w", err))
		}
	}
	if r.deps.Publisher != nil {
		note := Notification{RunID: req.RunID, Rows: table.Len(), BlobURI: result.BlobURI, Warning: warning}
		if _, err := r.deps.Publisher.Publish(ctx, r.cfg.Topic, note); err != nil {
			return result, r.failRun(ctx, run, started, fmt.Errorf("publish notification: %w", err))
		}
	}

	finished := r.deps.Clock.Now()
	run.Status = scrape.RunStatusSucceeded
	run.Finished = &finished
	r.saveRun(ctx, run, logger)
	r.deps.Emitter.Emit(progress.Event{
		RunID: req.RunID,
		TS:    finished,
		Stage: progress.StageRunDone,
		Rows:  table.Len(),
		Dur:   finished.Sub(started),
	})
	logger.Info("run finished", zap.Int("rows", table.Len()), zap.Duration("dur", finished.Sub(started)))
	return result, nil
}

func (r *Runner) dispatcherFor(req RunRequest, logger *zap.Logger) (*dispatcher.Dispatcher, error) {
	concurrency := req.Concurrency
	if concurrency == 0 {
		concurrency = r.cfg.Concurrency
	}
	timeout := req.Timeout
	if timeout == 0 {
		timeout = r.cfg.Timeout
	}
	opts := []scrape.TaskOption{scrape.WithObserver(newRunObserver(req.RunID, r.deps.Clock, r.deps.Emitter))}
	if r.deps.Limiter != nil {
		opts = append(opts, scrape.WithLimiter(r.deps.Limiter))
	}
	task := scrape.NewTask(r.deps.Fetcher, scrape.TaskConfig{Timeout: timeout}, logger, opts...)
	d, err := dispatcher.New(task, dispatcher.Config{Concurrency: concurrency}, logger)
	if err != nil {
		return nil, fmt.Errorf("configure dispatcher: %w", err)
	}
	return d, nil
}

// beginRun marks the run as running, creating the record when the run did
// not come through the queue.
func (r *Runner) beginRun(ctx context.Context, req RunRequest, started time.Time) (scrape.Run, error) {
	run := scrape.Run{
		ID:        req.RunID,
		Status:    scrape.RunStatusRunning,
		Submitted: req.Submitted,
		Started:   &started,
	}
	if run.Submitted.IsZero() {
		run.Submitted = started
	}
	if r.deps.Runs == nil {
		return run, nil
	}
	existing, err := r.deps.Runs.GetRun(ctx, req.RunID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		if err := r.deps.Runs.CreateRun(ctx, run); err != nil {
			return run, fmt.Errorf("create run: %w", err)
		}
		return run, nil
	case err != nil:
		return run, fmt.Errorf("get run: %w", err)
	}
	existing.Status = scrape.RunStatusRunning
	existing.Started = &started
	if err := r.deps.Runs.UpdateRun(ctx, existing); err != nil {
		return existing, fmt.Errorf("update run: %w", err)
	}
	return existing, nil
}

func (r *Runner) failRun(ctx context.Context, run scrape.Run, started time.Time, cause error) error {
	finished := r.deps.Clock.Now()
	run.Status = scrape.RunStatusFailed
	run.ErrorText = cause.Error()
	run.Finished = &finished
	span := trace.SpanFromContext(ctx)
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())

	logger := r.logger.With(zap.String("run_id", run.ID))
	r.saveRun(context.WithoutCancel(ctx), run, logger)
	r.deps.Emitter.Emit(progress.Event{
		RunID: run.ID,
		TS:    finished,
		Stage: progress.StageRunError,
		Rows:  run.Table.Len(),
		Dur:   finished.Sub(started),
		Note:  cause.Error(),
	})
	logger.Error("run failed", zap.Error(cause))
	return cause
}

func (r *Runner) saveRun(ctx context.Context, run scrape.Run, logger *zap.Logger) {
	if r.deps.Runs == nil {
		return
	}
	if err := r.deps.Runs.UpdateRun(ctx, run); err != nil {
		logger.Error("update run record failed", zap.Error(err))
	}
}
