package scrape

import (
	"net/http"
	"time"

	"github.com/JakeFAU/urlscraper/internal/urlsource"
)

// Row is one URL's slot in a result table.
type Row struct {
	URL    string `json:"url"`
	Date   string `json:"date"`
	Status string `json:"status"`
	HTML   string `json:"html"`
}

// Result is the terminal outcome of a single fetch task.
type Result struct {
	Index  int
	Status string
	Text   string
}

// FetchRequest describes a single GET issued by a Fetcher.
type FetchRequest struct {
	URL    string
	Header http.Header
}

// FetchResponse is whatever the transport received, regardless of status code.
type FetchResponse struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// RunStatus represents the lifecycle state of a scrape run.
type RunStatus string

// Run status values persisted in the run store.
const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Run is the metadata persisted for each scrape batch.
type Run struct {
	ID        string     `json:"id"`
	Status    RunStatus  `json:"status"`
	Submitted time.Time  `json:"submitted_at"`
	Started   *time.Time `json:"started_at,omitempty"`
	Finished  *time.Time `json:"finished_at,omitempty"`
	Warning   string     `json:"warning,omitempty"`
	ErrorText string     `json:"error_text,omitempty"`
	BlobURI   string     `json:"blob_uri,omitempty"`
	Table     *Table     `json:"table,omitempty"`
}

// RunItem wraps a run ready to execute.
type RunItem struct {
	RunID       string
	Source      urlsource.Source
	Concurrency int
	Timeout     time.Duration
	Submitted   time.Time
}
