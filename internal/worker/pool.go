package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/urlscraper/internal/metrics"
	"github.com/JakeFAU/urlscraper/internal/scrape"
)

// Pool drains a run queue with a fixed number of run workers.
type Pool struct {
	queue   scrape.RunQueue
	runs    scrape.RunStore
	runner  *Runner
	workers int
	logger  *zap.Logger
}

// NewPool creates a Pool. runs may be nil when run records are not kept.
func NewPool(queue scrape.RunQueue, runs scrape.RunStore, runner *Runner, workers int, logger *zap.Logger) (*Pool, error) {
	if queue == nil {
		return nil, errors.New("pool requires a queue")
	}
	if runner == nil {
		return nil, errors.New("pool requires a runner")
	}
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Pool{
		queue:   queue,
		runs:    runs,
		runner:  runner,
		workers: workers,
		logger:  logger.Named("pool"),
	}, nil
}

// Submit records the run as queued and enqueues it.
func (p *Pool) Submit(ctx context.Context, item scrape.RunItem) error {
	if p.runs != nil {
		run := scrape.Run{ID: item.RunID, Status: scrape.RunStatusQueued, Submitted: item.Submitted}
		if err := p.runs.CreateRun(ctx, run); err != nil {
			return fmt.Errorf("create run: %w", err)
		}
	}
	if err := p.queue.Enqueue(ctx, item); err != nil {
		if p.runs != nil {
			failed := scrape.Run{
				ID:        item.RunID,
				Status:    scrape.RunStatusFailed,
				Submitted: item.Submitted,
				ErrorText: err.Error(),
			}
			if uerr := p.runs.UpdateRun(context.WithoutCancel(ctx), failed); uerr != nil {
				p.logger.Error("mark unqueued run failed", zap.String("run_id", item.RunID), zap.Error(uerr))
			}
		}
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Run starts the workers and blocks until ctx ends and every worker has
// finished its current run.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := range p.workers {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.work(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (p *Pool) work(ctx context.Context, id int) {
	logger := p.logger.With(zap.Int("worker", id))
	for {
		item, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, scrape.ErrQueueClosed) {
				logger.Info("run queue closed")
				return
			}
			logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		logger.Debug("dequeued run", zap.String("run_id", item.RunID))
		metrics.IncActiveRuns()
		_, err = p.runner.Execute(ctx, item)
		metrics.DecActiveRuns()
		if err != nil {
			logger.Warn("run ended with error", zap.String("run_id", item.RunID), zap.Error(err))
		}
	}
}
