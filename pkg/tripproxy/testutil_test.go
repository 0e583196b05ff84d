package tripproxy

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	proxyerr "github.com/randalmurphal/tripproxy/pkg/tripproxy/errors"
	"github.com/randalmurphal/tripproxy/pkg/tripproxy/template"
)

// discardLogger returns a logger that discards all output.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fastRetry retries quickly so tests don't sleep.
var fastRetry = proxyerr.NewRetryConfig(
	proxyerr.WithMaxAttempts(3),
	proxyerr.WithInitialBackoff(time.Millisecond),
	proxyerr.WithMaxBackoff(5*time.Millisecond),
	proxyerr.WithJitter(0),
)

// envResolver returns a resolver backed by env instead of the process environment.
func envResolver(env map[string]string, opts ...template.Option) *template.Resolver {
	return template.NewResolver(append([]template.Option{template.WithLookup(template.MapLookup(env))}, opts...)...)
}

// newTestServer builds a Server with test defaults followed by opts.
func newTestServer(opts ...Option) *Server {
	base := []Option{
		WithLogger(discardLogger()),
		WithRetry(fastRetry),
		WithResolver(envResolver(nil)),
	}
	return NewServer(append(base, opts...)...)
}

// fetchPath builds a /fetch request path the way the browser client does:
// the template and options are encodeURIComponent'd before being placed in
// the query string.
func fetchPath(tmpl, options string, params map[string]string) string {
	v := url.Values{}
	if tmpl != "" {
		v.Set(ParamEncodedURL, template.EscapeComponent(tmpl))
	}
	if options != "" {
		v.Set(ParamEncodedOptions, template.EscapeComponent(options))
	}
	for k, p := range params {
		v.Set(k, p)
	}
	return "/fetch?" + v.Encode()
}

// serve runs one request through the server's handler.
func serve(t *testing.T, srv *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

// upstream is a test server that records what it received.
type upstream struct {
	*httptest.Server

	mu       sync.Mutex
	requests []recordedRequest
}

type recordedRequest struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     string
}

func newUpstream(t *testing.T, handler http.HandlerFunc) *upstream {
	t.Helper()
	u := &upstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		u.mu.Lock()
		u.requests = append(u.requests, recordedRequest{
			Method:   r.Method,
			Path:     r.URL.Path,
			RawQuery: r.URL.RawQuery,
			Header:   r.Header.Clone(),
			Body:     string(body),
		})
		u.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(u.Close)
	return u
}

func (u *upstream) calls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.requests)
}

func (u *upstream) last(t *testing.T) recordedRequest {
	t.Helper()
	u.mu.Lock()
	defer u.mu.Unlock()
	require.NotEmpty(t, u.requests, "upstream received no requests")
	return u.requests[len(u.requests)-1]
}

// recordingMetrics counts calls to each MetricsRecorder method.
type recordingMetrics struct {
	mu            sync.Mutex
	resolves      int
	resolveErrors int
	fetchStatuses []int
	fetchErrors   int
	cacheHits     int
	cacheMisses   int
}

func (m *recordingMetrics) RecordResolve(_ context.Context, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolves++
	if err != nil {
		m.resolveErrors++
	}
}

func (m *recordingMetrics) RecordFetch(_ context.Context, _ string, status int, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchStatuses = append(m.fetchStatuses, status)
	if err != nil {
		m.fetchErrors++
	}
}

func (m *recordingMetrics) RecordCache(_ context.Context, hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.cacheHits++
	} else {
		m.cacheMisses++
	}
}

// serveRequest runs a prepared request through the server's handler.
func serveRequest(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}
