package scrape

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateURLAccepts(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		"http://a.com/file",
		"https://b.com/file2",
		"http://127.0.0.1:8080/path?q=1#frag",
		"http://[::1]:8080/path",
		"https://user@[2001:db8::1]/",
		"https://user:pw@example.com/",
		"http://example.com/caf%C3%A9",
		"http://例子.测试/路径",
	} {
		u, err := ValidateURL(raw)
		require.NoError(t, err, raw)
		require.NotEmpty(t, u.Host, raw)
	}
}

func TestValidateURLRejects(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		"",
		"http://just not a url",
		"http:///relative/url",
		"/relative/url",
		"example.com",
		"ftp://example.com/file",
		"mailto:someone@example.com",
		"http:opaque",
		"http://example.com/%zz",
		"http://example.com/a b",
		"http://exa<mple.com",
		"javascript:alert(1)",
		"HTTP://example.com",
		"Https://example.com/",
		"http://a.com/[x]",
		"http://a.com/?q=]",
		"http://[::1/",
		"http://[::1]x/",
		"http://us[er@a.com/",
	} {
		_, err := ValidateURL(raw)
		require.Error(t, err, raw)
		require.True(t, errors.Is(err, ErrInvalidURL), raw)
	}
}

func FuzzValidateURL(f *testing.F) {
	f.Add("http://example.com")
	f.Add("http:///relative")
	f.Add("%")
	f.Add("HTTP://example.com")
	f.Add("http://[::1]:80/[")
	f.Fuzz(func(t *testing.T, raw string) {
		u, err := ValidateURL(raw)
		if err != nil {
			if !errors.Is(err, ErrInvalidURL) {
				t.Fatalf("unexpected error class %v", err)
			}
			return
		}
		if u.Host == "" {
			t.Fatalf("accepted %q without host", raw)
		}
		if !strings.HasPrefix(raw, "http:") && !strings.HasPrefix(raw, "https:") {
			t.Fatalf("accepted %q without an exact http or https scheme", raw)
		}
	})
}
