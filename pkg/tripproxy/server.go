package tripproxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/randalmurphal/tripproxy/pkg/tripproxy/cache"
	proxyerr "github.com/randalmurphal/tripproxy/pkg/tripproxy/errors"
	"github.com/randalmurphal/tripproxy/pkg/tripproxy/observability"
	"github.com/randalmurphal/tripproxy/pkg/tripproxy/template"
)

// Reserved query parameters. Every other parameter is a template value.
const (
	ParamEncodedURL     = "encodedUrl"
	ParamEncodedOptions = "encodedOptions"
)

// Upstream response headers passed through to the browser.
var forwardedHeaders = []string{
	"Content-Type",
	"Content-Encoding",
	"Content-Language",
	"Cache-Control",
	"Etag",
	"Last-Modified",
	"Retry-After",
}

// shutdownTimeout bounds graceful shutdown in ServeListener.
const shutdownTimeout = 15 * time.Second

// Server is the trip planner's fetch proxy. It resolves templated URLs
// against the caller's query and the server's secrets, calls the upstream
// and relays its response.
//
// Server is safe for concurrent use.
type Server struct {
	cfg     serverConfig
	retrier *proxyerr.Handler
	once    *proxyerr.Handler
}

// NewServer creates a Server with the given options.
//
// Example:
//
//	srv := tripproxy.NewServer(
//	    tripproxy.WithCache(cache.NewMemoryStore(1000)),
//	    tripproxy.WithAllowedHosts("api.geo.test", "*.transit.test"),
//	)
//	http.ListenAndServe(":8080", srv.Handler())
func NewServer(opts ...Option) *Server {
	cfg := defaultServerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		cfg: cfg,
		retrier: proxyerr.NewHandler(
			proxyerr.WithRetryConfig(cfg.retry),
			proxyerr.WithLogger(cfg.logger),
		),
		once: proxyerr.NewHandler(
			proxyerr.WithRetryConfig(proxyerr.NoRetry),
			proxyerr.WithLogger(cfg.logger),
		),
	}
}

// Handler returns the HTTP handler serving /fetch and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /fetch", s.handleFetch)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return withRequestID(withCORS(mux))
}

// Serve listens on addr and serves until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.cfg.logger.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.cfg.logger.Info("proxy listening", slog.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.cfg.logger.Info("proxy shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// splitQuery separates the reserved parameters from template values.
// When a parameter repeats, the first value wins.
func splitQuery(q url.Values) (encodedURL, encodedOptions string, params map[string]string) {
	params = make(map[string]string, len(q))
	for k, vs := range q {
		if len(vs) == 0 {
			continue
		}
		switch k {
		case ParamEncodedURL:
			encodedURL = vs[0]
		case ParamEncodedOptions:
			encodedOptions = vs[0]
		default:
			params[k] = vs[0]
		}
	}
	return encodedURL, encodedOptions, params
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	requestID := RequestIDFromContext(r.Context())
	logger := observability.EnrichLogger(s.cfg.logger, requestID)

	ctx, span := s.cfg.spans.StartRequestSpan(r.Context(), "/fetch", requestID)
	var spanErr error
	defer func() { s.cfg.spans.EndSpanWithError(span, spanErr) }()

	// url.Values from r.URL.Query() silently drops pairs with bad escapes.
	query, err := url.ParseQuery(r.URL.RawQuery)
	if err != nil {
		err = &template.DecodingError{Field: "query", Err: err}
		s.cfg.metrics.RecordResolve(ctx, 0, err)
		spanErr = err
		observability.LogResolveError(logger, err)
		httpError(w, statusFor(err), err.Error())
		return
	}
	encodedURL, encodedOptions, params := splitQuery(query)

	resolveStart := time.Now()
	res, err := s.cfg.resolver.Resolve(encodedURL, encodedOptions, params)
	s.cfg.metrics.RecordResolve(ctx, time.Since(resolveStart), err)
	if err != nil {
		spanErr = err
		observability.LogResolveError(logger, err)
		httpError(w, statusFor(err), err.Error())
		return
	}

	opts, err := ParseFetchOptions(res.Options)
	if err != nil {
		spanErr = err
		httpError(w, statusFor(err), err.Error())
		return
	}

	target, err := s.checkTarget(res.URL)
	if err != nil {
		spanErr = err
		logger.Warn("upstream target rejected", slog.String("error", err.Error()))
		httpError(w, statusFor(err), publicMessage(err))
		return
	}

	cacheable := opts.Cacheable()
	var key string
	if cacheable {
		key = cache.Key(opts.Method, res.URL, opts.Header, nil)
		entry, err := s.cfg.cache.Get(key)
		switch {
		case err == nil:
			s.cfg.metrics.RecordCache(ctx, true)
			observability.LogCacheHit(logger, key, entry.Age(time.Now()))
			s.cfg.spans.AddSpanEvent(ctx, "cache_hit", attribute.String("cache.key", key))
			writeEntry(w, entry)
			return
		case !errors.Is(err, cache.ErrNotFound):
			observability.LogCacheError(logger, "get", err)
		}
		s.cfg.metrics.RecordCache(ctx, false)
	}

	fetchCtx, fetchSpan := s.cfg.spans.StartFetchSpan(ctx, opts.Method, target.Host)
	observability.LogFetchStart(logger, opts.Method, res.URL)
	done := observability.TimedOperation()
	start := time.Now()

	up, err := s.doUpstream(fetchCtx, res.URL, opts)
	if err != nil {
		err = &UpstreamError{Method: opts.Method, Host: target.Host, Attempts: up.attempts, Err: err}
		spanErr = err
		s.cfg.metrics.RecordFetch(ctx, opts.Method, 0, time.Since(start), err)
		s.cfg.spans.EndFetchSpan(fetchSpan, 0, up.attempts, err)
		if r.Context().Err() != nil {
			logger.Debug("client went away before upstream responded")
			return
		}
		observability.LogFetchError(logger, opts.Method, res.URL, err, done())
		httpError(w, statusFor(err), publicMessage(err))
		return
	}
	defer up.resp.Body.Close()

	status := up.resp.StatusCode
	s.cfg.metrics.RecordFetch(ctx, opts.Method, status, time.Since(start), nil)
	s.cfg.spans.EndFetchSpan(fetchSpan, status, up.attempts, nil)
	observability.LogFetchComplete(logger, opts.Method, res.URL, status, done(), up.attempts)

	header := forwardHeaders(up.resp.Header)
	copyHeader(w.Header(), header)
	if cacheable {
		w.Header().Set("X-Cache", "MISS")
	}

	if !cacheable || status < 200 || status > 299 {
		w.WriteHeader(status)
		_, _ = io.Copy(w, up.resp.Body)
		return
	}

	// Buffer up to the cache limit; anything longer is streamed uncached.
	body, err := io.ReadAll(io.LimitReader(up.resp.Body, s.cfg.maxBodyBytes+1))
	complete := err == nil && int64(len(body)) <= s.cfg.maxBodyBytes
	if complete {
		entry := cache.Entry{Status: status, Header: header, Body: body}
		if err := s.cfg.cache.Set(key, entry, s.cfg.cacheTTL); err != nil {
			observability.LogCacheError(logger, "set", err)
		}
	}

	w.WriteHeader(status)
	_, _ = w.Write(body)
	if err == nil && !complete {
		_, _ = io.Copy(w, up.resp.Body)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"status":        "ok",
		"cache_entries": s.cfg.cache.Len(),
	})
}

// forwardHeaders keeps the upstream headers worth relaying.
func forwardHeaders(src http.Header) http.Header {
	out := make(http.Header)
	for _, name := range forwardedHeaders {
		if vs := src.Values(name); len(vs) > 0 {
			out[http.CanonicalHeaderKey(name)] = append([]string(nil), vs...)
		}
	}
	return out
}

func copyHeader(dst, src http.Header) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

// writeEntry replays a cached response.
func writeEntry(w http.ResponseWriter, e cache.Entry) {
	copyHeader(w.Header(), e.Header)
	w.Header().Set("X-Cache", "HIT")
	w.WriteHeader(e.Status)
	_, _ = w.Write(e.Body)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func httpError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": msg})
}
