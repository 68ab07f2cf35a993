package scrape

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultTimeout is the per-fetch budget used when none is configured.
const DefaultTimeout = 30 * time.Second

var tracer = otel.Tracer("github.com/JakeFAU/urlscraper/internal/scrape")

// TaskConfig controls a Task.
type TaskConfig struct {
	Timeout time.Duration
}

// Task fetches a single URL and converts every outcome into a row result.
type Task struct {
	fetcher  Fetcher
	limiter  Limiter
	observer FetchObserver
	cfg      TaskConfig
	logger   *zap.Logger
}

// TaskOption customises a Task.
type TaskOption func(*Task)

// WithLimiter makes the task wait on limiter before its timeout clock starts.
func WithLimiter(limiter Limiter) TaskOption {
	return func(t *Task) {
		t.limiter = limiter
	}
}

// WithObserver registers an observer for completed fetches.
func WithObserver(observer FetchObserver) TaskOption {
	return func(t *Task) {
		t.observer = observer
	}
}

// NewTask constructs a Task. The timeout is used as given; callers that fill
// tables go through dispatcher.New, which rejects non-positive values.
func NewTask(fetcher Fetcher, cfg TaskConfig, logger *zap.Logger, opts ...TaskOption) *Task {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Task{
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Timeout returns the per-fetch budget.
func (t *Task) Timeout() time.Duration {
	return t.cfg.Timeout
}

// FetchOne fetches rawURL once. It never fails; failures become statuses.
func (t *Task) FetchOne(ctx context.Context, index int, rawURL string) Result {
	target := strings.TrimSpace(rawURL)
	ctx, span := tracer.Start(ctx, "scrape.fetch_one", trace.WithAttributes(
		attribute.Int("row", index),
		attribute.String("url", target),
	))
	defer span.End()

	start := time.Now()
	outcome := t.fetch(ctx, target)
	duration := time.Since(start)

	status := outcome.Status()
	span.SetAttributes(
		attribute.String("outcome", outcome.Kind.String()),
		attribute.String("status", status),
	)
	t.logger.Debug("fetch finished",
		zap.Int("row", index),
		zap.String("url", target),
		zap.String("status", status),
		zap.Duration("duration", duration),
	)
	if t.observer != nil {
		t.observer.ObserveFetch(index, target, outcome, duration)
	}
	return Result{Index: index, Status: status, Text: outcome.Text()}
}

func (t *Task) fetch(ctx context.Context, target string) Outcome {
	if _, err := ValidateURL(target); err != nil {
		return Outcome{Kind: OutcomeInvalidURL}
	}
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx, target); err != nil {
			return Classify(err)
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	resp, err := t.fetcher.Fetch(fetchCtx, FetchRequest{URL: target})
	if err == nil {
		return ResponseOutcome(resp)
	}
	outcome := Classify(err)
	if outcome.Kind == OutcomeTransportError && errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
		return Outcome{Kind: OutcomeTimeout}
	}
	return outcome
}
