package scrape

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Status labels for fetches that did not produce an HTTP response.
const (
	StatusInvalidURL       = "Invalid URL"
	StatusTimedOut         = "Timed out"
	StatusTooManyRedirects = "Too many redirects"
)

// ErrTooManyRedirects is returned by transports that give up following redirects.
var ErrTooManyRedirects = errors.New("too many redirects")

// OutcomeKind tags the terminal state of a fetch.
type OutcomeKind int

// Outcome kinds.
const (
	OutcomeResponse OutcomeKind = iota
	OutcomeInvalidURL
	OutcomeTimeout
	OutcomeTooManyRedirects
	OutcomeTransportError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeResponse:
		return "response"
	case OutcomeInvalidURL:
		return "invalid_url"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeTooManyRedirects:
		return "too_many_redirects"
	case OutcomeTransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of one fetch. Only OutcomeResponse carries a
// status code, headers and body; only OutcomeTransportError carries a message.
type Outcome struct {
	Kind       OutcomeKind
	StatusCode int
	Header     http.Header
	Body       []byte
	Message    string
}

// ResponseOutcome wraps a received HTTP response of any status code.
func ResponseOutcome(resp FetchResponse) Outcome {
	return Outcome{
		Kind:       OutcomeResponse,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}
}

// Status renders the outcome as a row status label.
func (o Outcome) Status() string {
	switch o.Kind {
	case OutcomeResponse:
		return StatusLine(o.StatusCode)
	case OutcomeInvalidURL:
		return StatusInvalidURL
	case OutcomeTimeout:
		return StatusTimedOut
	case OutcomeTooManyRedirects:
		return StatusTooManyRedirects
	default:
		if o.Message == "" {
			return "Unknown error"
		}
		return o.Message
	}
}

// Text decodes the response body; outcomes without a response have no text.
func (o Outcome) Text() string {
	if o.Kind != OutcomeResponse {
		return ""
	}
	return Decode(o.Body, o.Header)
}

// StatusLine formats "<code> <reason>", e.g. "404 Not Found".
func StatusLine(code int) string {
	reason := http.StatusText(code)
	if reason == "" {
		return strconv.Itoa(code)
	}
	return fmt.Sprintf("%d %s", code, reason)
}

// Classify maps a transport error to an outcome.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return Outcome{Kind: OutcomeTransportError}
	case errors.Is(err, ErrTooManyRedirects):
		return Outcome{Kind: OutcomeTooManyRedirects}
	case errors.Is(err, ErrInvalidURL), isTransportURLRejection(err):
		return Outcome{Kind: OutcomeInvalidURL}
	case isTimeout(err):
		return Outcome{Kind: OutcomeTimeout}
	default:
		return Outcome{Kind: OutcomeTransportError, Message: transportMessage(err)}
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

var urlRejections = []string{
	"unsupported protocol scheme",
	"no Host in request URL",
	"invalid URL escape",
	"invalid character",
	"missing protocol scheme",
}

// isTransportURLRejection reports URLs the HTTP client refused before dialing.
func isTransportURLRejection(err error) bool {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return false
	}
	if urlErr.Op == "parse" {
		return true
	}
	msg := urlErr.Err.Error()
	for _, fragment := range urlRejections {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

// transportMessage strips the "Get \"url\": " prefix the HTTP client adds.
func transportMessage(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Err.Error()
	}
	return err.Error()
}
