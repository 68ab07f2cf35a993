package scrape

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOutcomeStatus(t *testing.T) {
	t.Parallel()

	require.Equal(t, "200 OK", Outcome{Kind: OutcomeResponse, StatusCode: 200}.Status())
	require.Equal(t, "404 Not Found", Outcome{Kind: OutcomeResponse, StatusCode: 404}.Status())
	require.Equal(t, "429 Too Many Requests", Outcome{Kind: OutcomeResponse, StatusCode: 429}.Status())
	require.Equal(t, "599", Outcome{Kind: OutcomeResponse, StatusCode: 599}.Status())
	require.Equal(t, StatusInvalidURL, Outcome{Kind: OutcomeInvalidURL}.Status())
	require.Equal(t, StatusTimedOut, Outcome{Kind: OutcomeTimeout}.Status())
	require.Equal(t, StatusTooManyRedirects, Outcome{Kind: OutcomeTooManyRedirects}.Status())
	require.Equal(t, "connection refused", Outcome{Kind: OutcomeTransportError, Message: "connection refused"}.Status())
	require.Equal(t, "Unknown error", Outcome{Kind: OutcomeTransportError}.Status())
}

func TestOutcomeTextOnlyForResponses(t *testing.T) {
	t.Parallel()

	resp := Outcome{
		Kind:   OutcomeResponse,
		Header: http.Header{"Content-Type": {"text/html; charset=latin1"}},
		Body:   []byte("caf\xe9"),
	}
	require.Equal(t, "café", resp.Text())
	require.Equal(t, "", Outcome{Kind: OutcomeTimeout, Body: []byte("ignored")}.Text())
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	t.Parallel()

	refused := &url.Error{
		Op:  "Get",
		URL: "http://127.0.0.1:1",
		Err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connect: connection refused")},
	}

	tests := []struct {
		name string
		err  error
		want OutcomeKind
	}{
		{name: "redirects", err: &url.Error{Op: "Get", URL: "http://x", Err: ErrTooManyRedirects}, want: OutcomeTooManyRedirects},
		{name: "wrapped redirects", err: fmt.Errorf("colly visit: %w", &url.Error{Op: "Get", Err: ErrTooManyRedirects}), want: OutcomeTooManyRedirects},
		{name: "deadline", err: &url.Error{Op: "Get", URL: "http://x", Err: context.DeadlineExceeded}, want: OutcomeTimeout},
		{name: "net timeout", err: timeoutErr{}, want: OutcomeTimeout},
		{name: "validator", err: fmt.Errorf("%w: missing authority", ErrInvalidURL), want: OutcomeInvalidURL},
		{name: "scheme", err: &url.Error{Op: "Get", URL: "gopher://x", Err: errors.New(`unsupported protocol scheme "gopher"`)}, want: OutcomeInvalidURL},
		{name: "parse", err: &url.Error{Op: "parse", URL: "::", Err: errors.New("missing protocol scheme")}, want: OutcomeInvalidURL},
		{name: "refused", err: refused, want: OutcomeTransportError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, Classify(tt.err).Kind)
		})
	}
}

func TestClassifyKeepsTransportMessage(t *testing.T) {
	t.Parallel()

	err := &url.Error{Op: "Get", URL: "http://nowhere.invalid", Err: errors.New("dial tcp: lookup nowhere.invalid: no such host")}
	out := Classify(err)
	require.Equal(t, OutcomeTransportError, out.Kind)
	require.Equal(t, "dial tcp: lookup nowhere.invalid: no such host", out.Status())

	plain := Classify(errors.New("boom"))
	require.Equal(t, "boom", plain.Status())
}

func TestOutcomeKindString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "timeout", OutcomeTimeout.String())
	require.Equal(t, "unknown", OutcomeKind(99).String())
}
