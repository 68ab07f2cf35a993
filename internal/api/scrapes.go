package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/urlscraper/internal/id/uuid"
	"github.com/JakeFAU/urlscraper/internal/params"
	"github.com/JakeFAU/urlscraper/internal/scrape"
	"github.com/JakeFAU/urlscraper/internal/storage"
	"github.com/JakeFAU/urlscraper/internal/urlsource"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 500
	enqueueTimeout  = 5 * time.Second
	maxBodyBytes    = 1 << 20
	minFetchTimeout = time.Millisecond
	maxFetchTimeout = 24 * time.Hour
)

// Request keys that ride alongside the params document.
const (
	keyConcurrency    = "concurrency"
	keyTimeoutSeconds = "timeout_seconds"
	keyInput          = "input"
)

type scrapeResponse struct {
	RunID   string       `json:"run_id"`
	Status  string       `json:"status"`
	Date    string       `json:"date,omitempty"`
	Warning string       `json:"warning,omitempty"`
	BlobURI string       `json:"blob_uri,omitempty"`
	Rows    []scrape.Row `json:"rows,omitempty"`
	Error   string       `json:"error,omitempty"`
}

type runDTO struct {
	ID        string     `json:"id"`
	Status    string     `json:"status"`
	Submitted time.Time  `json:"submitted_at"`
	Started   *time.Time `json:"started_at,omitempty"`
	Finished  *time.Time `json:"finished_at,omitempty"`
	Rows      int        `json:"rows"`
	Warning   string     `json:"warning,omitempty"`
	Error     string     `json:"error,omitempty"`
	BlobURI   string     `json:"blob_uri,omitempty"`
}

func (s *Server) submitScrape(w http.ResponseWriter, r *http.Request) {
	item, err := s.decodeRunItem(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runID, err := s.deps.IDs.NewID()
	if err != nil {
		s.logger.Error("generate run id failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to allocate run id")
		return
	}
	item.RunID = runID
	item.Submitted = s.deps.Clock.Now()

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		s.runInline(w, r, item)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), enqueueTimeout)
	defer cancel()
	if err := s.deps.Submitter.Submit(ctx, item); err != nil {
		s.logger.Warn("submit run failed", zap.String("run_id", runID), zap.Error(err))
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, scrape.ErrQueueClosed) {
			status = http.StatusServiceUnavailable
		}
		s.writeError(w, status, "run queue unavailable")
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (s *Server) runInline(w http.ResponseWriter, r *http.Request, item scrape.RunItem) {
	res, err := s.deps.Executor.Execute(r.Context(), item)
	resp := scrapeResponse{
		RunID:   item.RunID,
		Status:  string(scrape.RunStatusSucceeded),
		Warning: res.Warning,
		BlobURI: res.BlobURI,
	}
	if res.Table != nil {
		resp.Date = scrape.FormatDate(res.Table.Date)
		resp.Rows = res.Table.Rows
	}
	if err != nil {
		resp.Status = string(scrape.RunStatusFailed)
		resp.Error = err.Error()
		s.writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getScrape(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	if !uuid.Valid(runID) {
		s.writeError(w, http.StatusBadRequest, "invalid run_id")
		return
	}
	run, err := s.deps.Runs.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("get run failed", zap.String("run_id", runID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	resp := map[string]any{"run": toRunDTO(run)}
	if run.Status == scrape.RunStatusSucceeded || run.Status == scrape.RunStatusFailed {
		if run.Table != nil {
			resp["date"] = scrape.FormatDate(run.Table.Date)
			resp["rows"] = run.Table.Rows
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// listScrapes handles GET /v1/scrapes?status=&limit=&offset=.
func (s *Server) listScrapes(w http.ResponseWriter, r *http.Request) {
	if s.deps.Lister == nil {
		s.writeError(w, http.StatusServiceUnavailable, "run listing unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var status *scrape.RunStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		parsed, err := parseRunStatus(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		status = &parsed
	}
	runs, err := s.deps.Lister.ListRuns(r.Context(), status, limit, offset)
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	out := make([]runDTO, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRunDTO(run))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

// decodeRunItem reads a params document of any schema version plus the
// optional concurrency, timeout_seconds and input keys.
func (s *Server) decodeRunItem(r *http.Request) (scrape.RunItem, error) {
	raw := map[string]any{}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(&raw); err != nil {
		return scrape.RunItem{}, errors.New("invalid JSON")
	}
	doc := maps.Clone(raw)
	delete(doc, keyConcurrency)
	delete(doc, keyTimeoutSeconds)
	delete(doc, keyInput)

	p, err := params.FromMap(doc)
	if err != nil {
		return scrape.RunItem{}, err
	}
	input, err := decodeInput(raw[keyInput])
	if err != nil {
		return scrape.RunItem{}, err
	}
	src := p.Source(input)
	if _, _, err := urlsource.Build(src); errors.Is(err, urlsource.ErrUnknownSource) {
		return scrape.RunItem{}, err
	}

	item := scrape.RunItem{Source: src}
	if v, ok := raw[keyConcurrency]; ok {
		n, ok := wholeNumber(v)
		if !ok || n < 1 {
			return scrape.RunItem{}, fmt.Errorf("%s must be a positive integer", keyConcurrency)
		}
		item.Concurrency = n
	}
	if v, ok := raw[keyTimeoutSeconds]; ok {
		timeout, ok := fetchTimeout(v)
		if !ok {
			return scrape.RunItem{}, fmt.Errorf("%s must be between %g and %g",
				keyTimeoutSeconds, minFetchTimeout.Seconds(), maxFetchTimeout.Seconds())
		}
		item.Timeout = timeout
	}
	return item, nil
}

func decodeInput(v any) (*urlsource.Input, error) {
	if v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an array of objects", keyInput)
	}
	records := make([]map[string]any, 0, len(items))
	for _, item := range items {
		rec, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s must be an array of objects", keyInput)
		}
		records = append(records, rec)
	}
	return urlsource.FromRecords(records), nil
}

// fetchTimeout converts a timeout_seconds value, rejecting values outside
// [minFetchTimeout, maxFetchTimeout] before the conversion can overflow or
// truncate to zero.
func fetchTimeout(v any) (time.Duration, bool) {
	secs, ok := v.(float64)
	if !ok || secs < minFetchTimeout.Seconds() || secs > maxFetchTimeout.Seconds() {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}

func wholeNumber(v any) (int, bool) {
	f, ok := v.(float64)
	if !ok || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func parseRunStatus(input string) (scrape.RunStatus, error) {
	switch status := scrape.RunStatus(strings.ToLower(input)); status {
	case scrape.RunStatusQueued, scrape.RunStatusRunning, scrape.RunStatusSucceeded, scrape.RunStatusFailed:
		return status, nil
	default:
		return "", errors.New("invalid status")
	}
}

func toRunDTO(run scrape.Run) runDTO {
	return runDTO{
		ID:        run.ID,
		Status:    string(run.Status),
		Submitted: run.Submitted,
		Started:   run.Started,
		Finished:  run.Finished,
		Rows:      run.Table.Len(),
		Warning:   run.Warning,
		Error:     run.ErrorText,
		BlobURI:   run.BlobURI,
	}
}
