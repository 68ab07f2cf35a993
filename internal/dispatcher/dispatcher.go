// Package dispatcher fans a table's URLs out to a bounded pool of fetch workers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/urlscraper/internal/metrics"
	"github.com/JakeFAU/urlscraper/internal/scrape"
)

// DefaultConcurrency is the number of fetch workers when none is configured.
const DefaultConcurrency = 3

var (
	// ErrInvalidConcurrency reports a worker count below one.
	ErrInvalidConcurrency = errors.New("concurrency must be >= 1")
	// ErrInvalidTimeout reports a non-positive per-fetch timeout.
	ErrInvalidTimeout = errors.New("timeout must be > 0")
)

// Config controls the worker pool.
type Config struct {
	Concurrency int
}

// Dispatcher fills every row of a table using at most Concurrency
// simultaneous fetches. Workers only produce results; the goroutine calling
// Run is the single writer of the table.
type Dispatcher struct {
	task        *scrape.Task
	concurrency int
	logger      *zap.Logger
}

// New validates cfg and creates a Dispatcher.
func New(task *scrape.Task, cfg Config, logger *zap.Logger) (*Dispatcher, error) {
	if task == nil {
		return nil, errors.New("dispatcher requires a task")
	}
	if cfg.Concurrency < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidConcurrency, cfg.Concurrency)
	}
	if task.Timeout() <= 0 {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidTimeout, task.Timeout())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Dispatcher{
		task:        task,
		concurrency: cfg.Concurrency,
		logger:      logger.Named("dispatcher"),
	}, nil
}

// Concurrency reports the worker limit.
func (d *Dispatcher) Concurrency() int {
	return d.concurrency
}

// Run fetches every row of table and writes each status and text back in
// place. It returns once every row has been written. A canceled ctx does not
// abort the run: the remaining rows still receive a status from their fetch.
func (d *Dispatcher) Run(ctx context.Context, table *scrape.Table) error {
	total := table.Len()
	if total == 0 {
		return nil
	}

	workers := min(d.concurrency, total)
	results := make(chan scrape.Result, total)
	urls := table.URLs()

	var g errgroup.Group
	g.SetLimit(workers)
	go func() {
		for idx, raw := range urls {
			// Go blocks until a worker slot frees up.
			g.Go(func() error {
				metrics.IncInflight()
				defer metrics.DecInflight()
				results <- d.task.FetchOne(ctx, idx, raw)
				return nil
			})
		}
	}()

	var applyErr error
	for range total {
		res := <-results
		if err := table.Apply(res); err != nil && applyErr == nil {
			applyErr = fmt.Errorf("apply result: %w", err)
		}
	}
	// Fetch failures are row statuses, so the group never reports an error.
	_ = g.Wait()

	d.logger.Debug("table filled",
		zap.Int("rows", total),
		zap.Int("workers", workers),
	)
	return applyErr
}
