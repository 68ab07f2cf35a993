package scrape

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidURL marks a URL that is not an absolute http(s) URL with a host.
var ErrInvalidURL = errors.New("invalid url")

// ValidateURL accepts only absolute URLs whose scheme is exactly "http" or
// "https" and whose authority is non-empty. It never touches the network.
func ValidateURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	if i := strings.IndexFunc(raw, isIllegalURIRune); i >= 0 {
		return nil, fmt.Errorf("%w: illegal character %q at %d", ErrInvalidURL, raw[i], i)
	}
	if err := checkEscapes(raw); err != nil {
		return nil, err
	}
	if err := checkBrackets(raw); err != nil {
		return nil, err
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	// url.Parse lowercases the scheme, so compare the text as written.
	switch scheme, _, _ := strings.Cut(raw, ":"); scheme {
	case "http", "https":
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, scheme)
	}
	if u.Opaque != "" || u.Host == "" {
		return nil, fmt.Errorf("%w: missing authority", ErrInvalidURL)
	}
	return u, nil
}

// isIllegalURIRune reports ASCII characters that may not appear anywhere in a
// URI. Non-ASCII runes are allowed, as in an IRI.
func isIllegalURIRune(r rune) bool {
	if r >= 0x80 {
		return false
	}
	if r <= 0x20 || r == 0x7f {
		return true
	}
	return strings.ContainsRune("\"<>\\^`{|}", r)
}

func checkEscapes(raw string) error {
	for i := 0; i < len(raw); i++ {
		if raw[i] != '%' {
			continue
		}
		if i+2 >= len(raw) || !isHex(raw[i+1]) || !isHex(raw[i+2]) {
			return fmt.Errorf("%w: bad percent-escape at %d", ErrInvalidURL, i)
		}
		i += 2
	}
	return nil
}

func isHex(c byte) bool {
	switch {
	case '0' <= c && c <= '9':
		return true
	case 'a' <= c && c <= 'f':
		return true
	case 'A' <= c && c <= 'F':
		return true
	}
	return false
}

// checkBrackets allows '[' and ']' only as the delimiters of an IP-literal
// host, e.g. "http://[::1]:8080/".
func checkBrackets(raw string) error {
	if !strings.ContainsAny(raw, "[]") {
		return nil
	}
	bad := fmt.Errorf("%w: brackets outside an IP-literal host", ErrInvalidURL)
	_, authority, ok := strings.Cut(raw, "//")
	if !ok {
		return bad
	}
	if end := strings.IndexAny(authority, "/?#"); end >= 0 {
		if strings.ContainsAny(authority[end:], "[]") {
			return bad
		}
		authority = authority[:end]
	}
	host := authority[strings.LastIndexByte(authority, '@')+1:]
	if strings.ContainsAny(authority[:len(authority)-len(host)], "[]") {
		return bad
	}
	literal, port, ok := strings.Cut(strings.TrimPrefix(host, "["), "]")
	if !strings.HasPrefix(host, "[") || !ok || strings.ContainsAny(literal+port, "[]") {
		return bad
	}
	if port != "" && !strings.HasPrefix(port, ":") {
		return bad
	}
	return nil
}
