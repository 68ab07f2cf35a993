package scrape

import (
	"net/http"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
)

const defaultCharset = "utf-8"

// Decode converts a response body to text using the charset declared in the
// Content-Type header. It never fails: invalid sequences become U+FFFD and an
// unknown charset falls back to Latin-1.
func Decode(body []byte, header http.Header) string {
	if len(body) == 0 {
		return ""
	}
	name := charsetFromContentType(header.Get("Content-Type"))
	if name == "" {
		name = defaultCharset
	}
	enc := lookupEncoding(name)
	if enc == nil {
		return decodeLatin1(body)
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return decodeLatin1(body)
	}
	return string(out)
}

// charsetFromContentType returns the value following "charset=", or "".
func charsetFromContentType(contentType string) string {
	idx := strings.Index(strings.ToLower(contentType), "charset=")
	if idx < 0 {
		return ""
	}
	value := contentType[idx+len("charset="):]
	if end := strings.IndexByte(value, ';'); end >= 0 {
		value = value[:end]
	}
	return strings.Trim(strings.TrimSpace(value), `"'`)
}

// lookupEncoding resolves IANA names first so that "latin1" means ISO-8859-1,
// then WHATWG labels. It returns nil for unknown charsets and for labels that
// only map to the WHATWG replacement encoding, which cannot decode anything.
func lookupEncoding(name string) encoding.Encoding {
	if enc, err := ianaindex.IANA.Encoding(name); err == nil && usable(enc) {
		return enc
	}
	if enc, _ := charset.Lookup(name); usable(enc) {
		return enc
	}
	return nil
}

func usable(enc encoding.Encoding) bool {
	return enc != nil && enc != encoding.Replacement
}

// decodeLatin1 maps every byte to the code point of the same value, so it
// cannot fail.
func decodeLatin1(body []byte) string {
	out, _ := charmap.ISO8859_1.NewDecoder().Bytes(body)
	return string(out)
}
