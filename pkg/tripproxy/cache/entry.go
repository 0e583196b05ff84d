package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Entry is a cached upstream response.
type Entry struct {
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"stored_at"`
}

// Clone returns a deep copy so callers never share header maps or body
// slices with the store.
func (e Entry) Clone() Entry {
	out := Entry{
		Status:   e.Status,
		Header:   e.Header.Clone(),
		StoredAt: e.StoredAt,
	}
	if e.Body != nil {
		out.Body = make([]byte, len(e.Body))
		copy(out.Body, e.Body)
	}
	return out
}

// Age reports how long ago the entry was stored.
func (e Entry) Age(now time.Time) time.Duration {
	if e.StoredAt.IsZero() {
		return 0
	}
	return now.Sub(e.StoredAt)
}

// Key fingerprints an upstream request. Header names are canonicalized and
// sorted so equivalent requests map to the same key; the result is hex
// SHA-256 and never contains the (possibly secret-bearing) URL itself.
func Key(method, url string, header http.Header, body []byte) string {
	h := sha256.New()
	h.Write([]byte(strings.ToUpper(method)))
	h.Write([]byte{0})
	h.Write([]byte(url))
	h.Write([]byte{0})

	names := make([]string, 0, len(header))
	canon := make(http.Header, len(header))
	for name, values := range header {
		c := http.CanonicalHeaderKey(name)
		canon[c] = append(canon[c], values...)
	}
	for name := range canon {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte{':'})
		h.Write([]byte(strings.Join(canon[name], ",")))
		h.Write([]byte{0})
	}

	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
