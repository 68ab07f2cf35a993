// Package urlsource builds the ordered URL list for a scrape run from free
// text, a paged template, or a column of an input table, and enforces the
// per-run URL cap.
package urlsource

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// MaxURLs caps the number of URLs fetched by a single run.
const MaxURLs = 10

// Kind selects where URLs come from.
type Kind string

// Supported URL sources.
const (
	KindList   Kind = "list"
	KindColumn Kind = "column"
	KindPaged  Kind = "paged"
)

var (
	// ErrNoURLs means the source produced nothing to fetch. Callers treat it
	// as an empty result, not a failure.
	ErrNoURLs = errors.New("no urls to fetch")
	// ErrUnknownSource reports an unsupported Kind.
	ErrUnknownSource = errors.New("unknown url source")
)

// TruncationWarning is reported when a source yields more than MaxURLs URLs.
var TruncationWarning = fmt.Sprintf("We limited your scrape to %d URLs", MaxURLs)

var schemePattern = regexp.MustCompile(`^https?://`)

// Source describes one URL list.
type Source struct {
	Kind           Kind
	List           string
	Column         string
	Input          *Input
	PagedURL       string
	AddPageNumbers bool
	StartPage      int
	EndPage        int
}

// Build resolves the source into URLs plus an optional truncation warning.
func Build(src Source) ([]string, string, error) {
	switch src.Kind {
	case KindList:
		return fromList(src.List)
	case KindColumn:
		return fromColumn(src.Input, src.Column)
	case KindPaged:
		return fromPaged(src)
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownSource, src.Kind)
	}
}

// EnsureScheme prepends http:// when raw does not start with http:// or https://.
func EnsureScheme(raw string) string {
	if schemePattern.MatchString(raw) {
		return raw
	}
	return "http://" + raw
}

func fromList(text string) ([]string, string, error) {
	var urls []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		urls = append(urls, EnsureScheme(trimmed))
	}
	if len(urls) == 0 {
		return nil, "", ErrNoURLs
	}
	urls, warning := truncate(urls)
	return urls, warning, nil
}

func fromColumn(input *Input, column string) ([]string, string, error) {
	if input == nil || column == "" {
		return nil, "", ErrNoURLs
	}
	values, ok := input.Column(column)
	if !ok {
		return nil, "", ErrNoURLs
	}
	urls, warning := truncate(values)
	return urls, warning, nil
}

func fromPaged(src Source) ([]string, string, error) {
	if src.PagedURL == "" {
		return nil, "", ErrNoURLs
	}
	template := EnsureScheme(src.PagedURL)

	count, warning := pageCount(src.StartPage, src.EndPage)
	if !src.AddPageNumbers {
		return []string{template}, warning, nil
	}
	urls := make([]string, 0, count)
	for i := range count {
		urls = append(urls, template+strconv.Itoa(src.StartPage+i))
	}
	return urls, warning, nil
}

// pageCount returns how many pages of start..end (inclusive) fit under
// MaxURLs, and the truncation warning when some were dropped. The span is
// taken in unsigned arithmetic, which is exact for any start <= end.
func pageCount(start, end int) (int, string) {
	if end < start {
		return 0, ""
	}
	span := uint(end) - uint(start)
	if span >= MaxURLs {
		return MaxURLs, TruncationWarning
	}
	return int(span) + 1, ""
}

func truncate(urls []string) ([]string, string) {
	if len(urls) <= MaxURLs {
		return urls, ""
	}
	return urls[:MaxURLs], TruncationWarning
}
