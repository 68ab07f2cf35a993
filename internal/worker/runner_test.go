package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/urlscraper/internal/clock/system"
	"github.com/JakeFAU/urlscraper/internal/progress"
	pubmemory "github.com/JakeFAU/urlscraper/internal/publisher/memory"
	"github.com/JakeFAU/urlscraper/internal/scrape"
	"github.com/JakeFAU/urlscraper/internal/storage"
	"github.com/JakeFAU/urlscraper/internal/storage/memory"
	"github.com/JakeFAU/urlscraper/internal/urlsource"
)

var fixedNow = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

type echoFetcher struct {
	mu   sync.Mutex
	seen []string
}

func (f *echoFetcher) Fetch(_ context.Context, req scrape.FetchRequest) (scrape.FetchResponse, error) {
	f.mu.Lock()
	f.seen = append(f.seen, req.URL)
	f.mu.Unlock()
	if strings.Contains(req.URL, "missing") {
		return scrape.FetchResponse{StatusCode: http.StatusNotFound, Body: []byte("gone")}, nil
	}
	return scrape.FetchResponse{
		URL:        req.URL,
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"text/html; charset=utf-8"}},
		Body:       []byte("page " + req.URL),
	}, nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *recordingEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *recordingEmitter) stages() map[progress.Stage]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := map[progress.Stage]int{}
	for _, evt := range e.events {
		out[evt.Stage]++
	}
	return out
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	args := m.Called(ctx, topic, payload)
	return args.String(0), args.Error(1)
}

type fixture struct {
	runner    *Runner
	runs      *memory.RunStore
	blobs     *memory.BlobStore
	publisher *pubmemory.Publisher
	emitter   *recordingEmitter
	fetcher   *echoFetcher
}

func newFixture(t *testing.T, mutate func(*Deps)) fixture {
	t.Helper()
	blobs := memory.NewBlobStore()
	exporter, err := storage.NewExporter(blobs, storage.FormatJSON, "exports")
	require.NoError(t, err)
	f := fixture{
		runs:      memory.NewRunStore(),
		blobs:     blobs,
		publisher: pubmemory.New(),
		emitter:   &recordingEmitter{},
		fetcher:   &echoFetcher{},
	}
	deps := Deps{
		Fetcher:   f.fetcher,
		Clock:     system.Fixed(fixedNow),
		Runs:      f.runs,
		Exporter:  exporter,
		Publisher: f.publisher,
		Emitter:   f.emitter,
	}
	if mutate != nil {
		mutate(&deps)
	}
	f.runner, err = NewRunner(deps, Config{Concurrency: 2, Timeout: time.Second, Topic: "runs"}, zap.NewNop())
	require.NoError(t, err)
	return f
}

func listRequest(id, urls string) RunRequest {
	return RunRequest{
		RunID:  id,
		Source: urlsource.Source{Kind: urlsource.KindList, List: urls},
	}
}

func TestExecuteSuccessFlow(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	res, err := f.runner.Execute(context.Background(), listRequest("run-1", "a.test\n\nhttp://missing.test\n"))
	require.NoError(t, err)

	require.Equal(t, "run-1", res.RunID)
	require.Empty(t, res.Warning)
	require.Equal(t, "memory://exports/run-1.json", res.BlobURI)
	require.Equal(t, 2, res.Table.Len())
	require.Equal(t, scrape.Row{
		URL:    "http://a.test",
		Date:   "2024-06-01T08:00:00Z",
		Status: "200 OK",
		HTML:   "page http://a.test",
	}, res.Table.Rows[0])
	require.Equal(t, "404 Not Found", res.Table.Rows[1].Status)
	require.Equal(t, "gone", res.Table.Rows[1].HTML)

	run, err := f.runs.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, scrape.RunStatusSucceeded, run.Status)
	require.NotNil(t, run.Started)
	require.NotNil(t, run.Finished)
	require.Equal(t, res.BlobURI, run.BlobURI)
	require.Same(t, res.Table, run.Table)

	_, ok := f.blobs.Get("exports/run-1.json")
	require.True(t, ok)

	msgs := f.publisher.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "runs", msgs[0].Topic)
	require.Equal(t, Notification{RunID: "run-1", Rows: 2, BlobURI: res.BlobURI}, msgs[0].Payload)

	stages := f.emitter.stages()
	require.Equal(t, 1, stages[progress.StageRunStart])
	require.Equal(t, 2, stages[progress.StageFetchDone])
	require.Equal(t, 1, stages[progress.StageRunDone])
}

func TestExecuteTruncatesWithWarning(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	lines := make([]string, 0, 12)
	for i := range 12 {
		lines = append(lines, fmt.Sprintf("http://site%d.test", i))
	}
	res, err := f.runner.Execute(context.Background(), listRequest("run-cap", strings.Join(lines, "\n")))
	require.NoError(t, err)
	require.Equal(t, urlsource.MaxURLs, res.Table.Len())
	require.Equal(t, urlsource.TruncationWarning, res.Warning)

	msgs := f.publisher.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, urlsource.TruncationWarning, msgs[0].Payload.(Notification).Warning)
}

func TestExecuteNoURLsIsEmptySuccess(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	res, err := f.runner.Execute(context.Background(), listRequest("run-empty", "\n  \n"))
	require.NoError(t, err)
	require.Zero(t, res.Table.Len())
	require.Empty(t, res.Warning)
	require.Empty(t, f.fetcher.seen)

	run, err := f.runs.GetRun(context.Background(), "run-empty")
	require.NoError(t, err)
	require.Equal(t, scrape.RunStatusSucceeded, run.Status)
}

func TestExecutePublishFailureMarksRunFailed(t *testing.T) {
	t.Parallel()

	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, "runs", mock.AnythingOfType("worker.Notification")).
		Return("", errors.New("topic missing"))

	f := newFixture(t, func(d *Deps) { d.Publisher = pub })
	res, err := f.runner.Execute(context.Background(), listRequest("run-pub", "http://a.test"))
	require.ErrorContains(t, err, "publish notification: topic missing")
	require.Equal(t, "200 OK", res.Table.Rows[0].Status)
	pub.AssertExpectations(t)

	run, getErr := f.runs.GetRun(context.Background(), "run-pub")
	require.NoError(t, getErr)
	require.Equal(t, scrape.RunStatusFailed, run.Status)
	require.Contains(t, run.ErrorText, "topic missing")
	require.Equal(t, 1, f.emitter.stages()[progress.StageRunError])
}

func TestExecuteRejectsBadConcurrency(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	req := listRequest("run-bad", "http://a.test")
	req.Concurrency = -1
	_, err := f.runner.Execute(context.Background(), req)
	require.ErrorContains(t, err, "configure dispatcher")
	require.Empty(t, f.fetcher.seen)
}

func TestExecuteUnknownSourceFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(d *Deps) { d.Runs = nil; d.Exporter = nil; d.Publisher = nil })
	_, err := f.runner.Execute(context.Background(), RunRequest{RunID: "run-x", Source: urlsource.Source{Kind: "ftp"}})
	require.ErrorIs(t, err, urlsource.ErrUnknownSource)
}

func TestExecuteMarksQueuedRunRunning(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	submitted := fixedNow.Add(-time.Minute)
	require.NoError(t, f.runs.CreateRun(context.Background(), scrape.Run{
		ID: "run-q", Status: scrape.RunStatusQueued, Submitted: submitted,
	}))
	_, err := f.runner.Execute(context.Background(), listRequest("run-q", "http://a.test"))
	require.NoError(t, err)

	run, err := f.runs.GetRun(context.Background(), "run-q")
	require.NoError(t, err)
	require.Equal(t, scrape.RunStatusSucceeded, run.Status)
	require.Equal(t, submitted, run.Submitted)
}

func TestNewRunnerValidation(t *testing.T) {
	t.Parallel()

	_, err := NewRunner(Deps{Clock: system.New()}, Config{}, nil)
	require.Error(t, err)
	_, err = NewRunner(Deps{Fetcher: &echoFetcher{}}, Config{}, nil)
	require.Error(t, err)

	r, err := NewRunner(Deps{Fetcher: &echoFetcher{}, Clock: system.New()}, Config{}, nil)
	require.NoError(t, err)
	require.Equal(t, scrape.DefaultTimeout, r.cfg.Timeout)
	require.Positive(t, r.cfg.Concurrency)
}
