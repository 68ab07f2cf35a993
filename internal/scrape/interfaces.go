package scrape

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrQueueClosed is returned by a RunQueue that no longer accepts or yields runs.
var ErrQueueClosed = errors.New("queue closed")

// Fetcher performs one HTTP GET. Non-2xx responses are returned, not reported
// as errors.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Limiter throttles fetches before they start.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// FetchObserver is notified once per completed fetch task.
type FetchObserver interface {
	ObserveFetch(index int, url string, outcome Outcome, duration time.Duration)
}

// BlobStore writes exported tables and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes run completion notifications.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// RunStore persists run metadata.
type RunStore interface {
	CreateRun(ctx context.Context, run Run) error
	UpdateRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, runID string) (Run, error)
}

// ResultStore persists finished result tables.
type ResultStore interface {
	StoreResults(ctx context.Context, runID string, table *Table) error
}

// RunQueue provides enqueue/dequeue semantics for scrape runs.
type RunQueue interface {
	Enqueue(ctx context.Context, item RunItem) error
	Dequeue(ctx context.Context) (RunItem, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
