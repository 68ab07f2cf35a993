// Package memory provides a bounded in-process run queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/urlscraper/internal/scrape"
)

// ErrClosed is returned once the queue has been closed.
var ErrClosed = scrape.ErrQueueClosed

// Queue is a bounded in-memory run queue with context-aware operations.
type Queue struct {
	ch     chan scrape.RunItem
	mu     sync.RWMutex
	closed bool
}

// NewQueue constructs a queue holding at most capacity pending runs.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		ch: make(chan scrape.RunItem, capacity),
	}
}

// Enqueue blocks until the run is queued or ctx ends.
func (q *Queue) Enqueue(ctx context.Context, item scrape.RunItem) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next run, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (scrape.RunItem, error) {
	select {
	case <-ctx.Done():
		return scrape.RunItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return scrape.RunItem{}, ErrClosed
		}
		return item, nil
	}
}

// Len reports the number of queued runs.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops accepting runs. Already queued runs can still be dequeued.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
