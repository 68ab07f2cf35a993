package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/urlscraper/internal/queue/memory"
	"github.com/JakeFAU/urlscraper/internal/scrape"
)

func TestPoolProcessesQueuedRuns(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	queue := memory.NewQueue(4)
	pool, err := NewPool(queue, f.runs, f.runner, 2, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()

	for _, id := range []string{"q-1", "q-2", "q-3"} {
		req := listRequest(id, "http://a.test")
		req.Submitted = fixedNow
		require.NoError(t, pool.Submit(context.Background(), req))
	}

	require.Eventually(t, func() bool {
		for _, id := range []string{"q-1", "q-2", "q-3"} {
			run, err := f.runs.GetRun(context.Background(), id)
			if err != nil || run.Status != scrape.RunStatusSucceeded {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool did not stop after context cancel")
	}
}

func TestPoolStopsWhenQueueClosed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	queue := memory.NewQueue(1)
	pool, err := NewPool(queue, nil, f.runner, 1, nil)
	require.NoError(t, err)

	queue.Close()
	done := make(chan struct{})
	go func() {
		pool.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool did not stop after queue close")
	}
}

type errorQueue struct {
	err error
}

func (q *errorQueue) Enqueue(context.Context, scrape.RunItem) error {
	return q.err
}

func (q *errorQueue) Dequeue(ctx context.Context) (scrape.RunItem, error) {
	<-ctx.Done()
	return scrape.RunItem{}, ctx.Err()
}

func TestPoolSubmitEnqueueFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	pool, err := NewPool(&errorQueue{err: errors.New("boom")}, f.runs, f.runner, 1, nil)
	require.NoError(t, err)

	err = pool.Submit(context.Background(), listRequest("lost", "http://a.test"))
	require.EqualError(t, err, "queue enqueue: boom")

	run, err := f.runs.GetRun(context.Background(), "lost")
	require.NoError(t, err)
	require.Equal(t, scrape.RunStatusFailed, run.Status)
}

func TestNewPoolValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	_, err := NewPool(nil, nil, f.runner, 1, nil)
	require.Error(t, err)
	_, err = NewPool(memory.NewQueue(1), nil, nil, 1, nil)
	require.Error(t, err)
}
