package template

import (
	"errors"
	"net/url"
	"unicode/utf8"
)

const upperhex = "0123456789ABCDEF"

// shouldEscape reports whether c is outside the set left untouched by
// JavaScript's encodeURIComponent: A-Z a-z 0-9 - _ . ! ~ * ' ( )
func shouldEscape(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return false
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return false
	}
	return true
}

// EscapeComponent percent-encodes s byte by byte with encodeURIComponent
// semantics. Spaces become %20, never '+'.
func EscapeComponent(s string) string {
	n := 0
	for i := 0; i < len(s); i++ {
		if shouldEscape(s[i]) {
			n++
		}
	}
	if n == 0 {
		return s
	}

	buf := make([]byte, 0, len(s)+2*n)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if shouldEscape(c) {
			buf = append(buf, '%', upperhex[c>>4], upperhex[c&15])
			continue
		}
		buf = append(buf, c)
	}
	return string(buf)
}

// errInvalidUTF8 is returned when escapes decode to bytes that are not UTF-8,
// such as %FF or a truncated multibyte sequence like %C3.
var errInvalidUTF8 = errors.New("percent-encoding does not decode to valid UTF-8")

// DecodeComponent reverses percent-encoding with decodeURIComponent semantics.
// '+' is left as-is, and the decoded text must be valid UTF-8.
func DecodeComponent(s string) (string, error) {
	out, err := url.PathUnescape(s)
	if err != nil {
		return "", err
	}
	if !utf8.ValidString(out) {
		return "", errInvalidUTF8
	}
	return out, nil
}
