package worker

import (
	"time"

	"github.com/JakeFAU/urlscraper/internal/metrics"
	"github.com/JakeFAU/urlscraper/internal/progress"
	"github.com/JakeFAU/urlscraper/internal/scrape"
)

// runObserver turns completed fetches into metrics and progress events.
type runObserver struct {
	runID   string
	clock   scrape.Clock
	emitter progress.Emitter
}

func newRunObserver(runID string, clock scrape.Clock, emitter progress.Emitter) *runObserver {
	metrics.Init()
	return &runObserver{runID: runID, clock: clock, emitter: emitter}
}

// ObserveFetch implements scrape.FetchObserver.
func (o *runObserver) ObserveFetch(index int, url string, outcome scrape.Outcome, duration time.Duration) {
	status := outcome.Status()
	metrics.ObserveFetch(url, status, len(outcome.Body), duration)
	o.emitter.Emit(progress.Event{
		RunID:       o.runID,
		TS:          o.clock.Now(),
		Stage:       progress.StageFetchDone,
		Row:         index,
		URL:         url,
		Site:        metrics.SanitizeSite(url),
		Status:      status,
		StatusClass: metrics.StatusClass(status),
		Bytes:       int64(len(outcome.Body)),
		Dur:         duration,
	})
}
