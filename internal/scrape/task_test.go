package scrape

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubFetcher struct {
	mu       sync.Mutex
	requests []string
	fn       func(ctx context.Context, req FetchRequest) (FetchResponse, error)
}

func (s *stubFetcher) Fetch(ctx context.Context, req FetchRequest) (FetchResponse, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req.URL)
	s.mu.Unlock()
	return s.fn(ctx, req)
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (o *recordingObserver) ObserveFetch(_ int, _ string, outcome Outcome, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

type failingLimiter struct{ err error }

func (l failingLimiter) Wait(context.Context, string) error { return l.err }

func TestFetchOneResponse(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{fn: func(_ context.Context, _ FetchRequest) (FetchResponse, error) {
		return FetchResponse{
			StatusCode: http.StatusNotFound,
			Header:     http.Header{"Content-Type": {"text/plain"}},
			Body:       []byte("not found"),
		}, nil
	}}
	observer := &recordingObserver{}
	task := NewTask(fetcher, TaskConfig{Timeout: time.Second}, zap.NewNop(), WithObserver(observer))

	got := task.FetchOne(context.Background(), 3, "  https://b.com/file2 ")
	require.Equal(t, Result{Index: 3, Status: "404 Not Found", Text: "not found"}, got)
	require.Equal(t, []string{"https://b.com/file2"}, fetcher.requests)
	require.Len(t, observer.outcomes, 1)
	require.Equal(t, OutcomeResponse, observer.outcomes[0].Kind)
}

func TestFetchOneInvalidURLSkipsNetwork(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{fn: func(context.Context, FetchRequest) (FetchResponse, error) {
		t.Fatal("fetcher must not be called")
		return FetchResponse{}, nil
	}}
	task := NewTask(fetcher, TaskConfig{Timeout: time.Second}, nil)

	for _, raw := range []string{"http://just not a url", "http:///relative/url"} {
		got := task.FetchOne(context.Background(), 0, raw)
		require.Equal(t, StatusInvalidURL, got.Status)
		require.Empty(t, got.Text)
	}
}

func TestFetchOneTimeout(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{fn: func(ctx context.Context, _ FetchRequest) (FetchResponse, error) {
		<-ctx.Done()
		return FetchResponse{}, errors.New("colly visit failed: request canceled")
	}}
	task := NewTask(fetcher, TaskConfig{Timeout: 20 * time.Millisecond}, nil)

	got := task.FetchOne(context.Background(), 1, "http://slow.example")
	require.Equal(t, Result{Index: 1, Status: StatusTimedOut, Text: ""}, got)
}

func TestFetchOneDeadlineAppliesPerTask(t *testing.T) {
	t.Parallel()

	var deadline time.Time
	fetcher := &stubFetcher{fn: func(ctx context.Context, _ FetchRequest) (FetchResponse, error) {
		var ok bool
		deadline, ok = ctx.Deadline()
		require.True(t, ok)
		return FetchResponse{StatusCode: http.StatusOK}, nil
	}}
	task := NewTask(fetcher, TaskConfig{Timeout: 5 * time.Second}, nil)
	start := time.Now()
	got := task.FetchOne(context.Background(), 0, "http://a.com")
	require.Equal(t, "200 OK", got.Status)
	require.WithinDuration(t, start.Add(5*time.Second), deadline, time.Second)
}

func TestFetchOneTransportError(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{fn: func(context.Context, FetchRequest) (FetchResponse, error) {
		return FetchResponse{}, errors.New("connection reset by peer")
	}}
	task := NewTask(fetcher, TaskConfig{Timeout: time.Second}, nil)

	got := task.FetchOne(context.Background(), 0, "http://a.com")
	require.Equal(t, "connection reset by peer", got.Status)
	require.Empty(t, got.Text)
}

func TestFetchOneLimiterFailure(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{fn: func(context.Context, FetchRequest) (FetchResponse, error) {
		t.Fatal("fetcher must not be called")
		return FetchResponse{}, nil
	}}
	task := NewTask(fetcher, TaskConfig{Timeout: time.Second}, nil,
		WithLimiter(failingLimiter{err: errors.New("rate limit wait: context canceled")}))

	got := task.FetchOne(context.Background(), 0, "http://a.com")
	require.Equal(t, "rate limit wait: context canceled", got.Status)
}

func TestNewTaskKeepsTimeout(t *testing.T) {
	t.Parallel()

	require.Equal(t, DefaultTimeout, NewTask(&stubFetcher{}, TaskConfig{Timeout: DefaultTimeout}, nil).Timeout())
	require.Zero(t, NewTask(&stubFetcher{}, TaskConfig{}, nil).Timeout())
}
