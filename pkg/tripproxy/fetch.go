package tripproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	proxyerr "github.com/randalmurphal/tripproxy/pkg/tripproxy/errors"
)

// FetchOptions is the upstream request described by the resolved options
// document. Only method, headers and body are honored; other keys that a
// browser fetch would accept (mode, credentials, ...) are ignored.
type FetchOptions struct {
	Method string
	Header http.Header
	Body   []byte
}

// Cacheable reports whether responses to this request may be cached.
func (o FetchOptions) Cacheable() bool {
	return (o.Method == http.MethodGet || o.Method == http.MethodHead) && len(o.Body) == 0
}

// ParseFetchOptions interprets a resolved options value. A nil value means
// a plain GET.
//
// The method is upper-cased and defaults to GET. Header values may be
// strings, arrays of strings, or scalars (formatted with fmt). A string body
// is sent verbatim; any other JSON value is re-encoded and, unless a
// Content-Type header is present, sent as application/json.
func ParseFetchOptions(v any) (FetchOptions, error) {
	opts := FetchOptions{Method: http.MethodGet, Header: http.Header{}}
	if v == nil {
		return opts, nil
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return FetchOptions{}, fmt.Errorf("%w: options must be a JSON object", ErrInvalidFetchOptions)
	}

	switch m := obj["method"].(type) {
	case nil:
	case string:
		if m != "" {
			opts.Method = strings.ToUpper(m)
		}
		if !isToken(opts.Method) {
			return FetchOptions{}, fmt.Errorf("%w: method %q", ErrInvalidFetchOptions, m)
		}
	default:
		return FetchOptions{}, fmt.Errorf("%w: method must be a string", ErrInvalidFetchOptions)
	}

	switch h := obj["headers"].(type) {
	case nil:
	case map[string]any:
		names := make([]string, 0, len(h))
		for name := range h {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if !isToken(name) {
				return FetchOptions{}, fmt.Errorf("%w: header name %q", ErrInvalidFetchOptions, name)
			}
			if err := addHeader(opts.Header, name, h[name]); err != nil {
				return FetchOptions{}, err
			}
		}
	default:
		return FetchOptions{}, fmt.Errorf("%w: headers must be an object", ErrInvalidFetchOptions)
	}

	switch b := obj["body"].(type) {
	case nil:
	case string:
		opts.Body = []byte(b)
	default:
		payload, err := json.Marshal(b)
		if err != nil {
			return FetchOptions{}, fmt.Errorf("%w: body: %v", ErrInvalidFetchOptions, err)
		}
		opts.Body = payload
		if opts.Header.Get("Content-Type") == "" {
			opts.Header.Set("Content-Type", "application/json")
		}
	}

	return opts, nil
}

func addHeader(h http.Header, name string, v any) error {
	switch val := v.(type) {
	case nil:
	case string:
		h.Add(name, val)
	case []any:
		for _, item := range val {
			if err := addHeader(h, name, item); err != nil {
				return err
			}
		}
	case map[string]any:
		return fmt.Errorf("%w: header %q must not be an object", ErrInvalidFetchOptions, name)
	default:
		h.Add(name, fmt.Sprint(val))
	}
	return nil
}

// isToken reports whether s is a non-empty RFC 7230 token.
func isToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		case strings.IndexByte("!#$%&'*+-.^_`|~", c) >= 0:
		default:
			return false
		}
	}
	return true
}

// checkTarget validates the resolved URL's scheme and host.
func (s *Server) checkTarget(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedScheme, stripURL(err))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrUnsupportedScheme)
	}
	if !s.hostAllowed(u.Hostname()) {
		return nil, fmt.Errorf("%w: %s", ErrHostNotAllowed, u.Hostname())
	}
	return u, nil
}

func (s *Server) hostAllowed(host string) bool {
	if len(s.cfg.allowedHosts) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, allowed := range s.cfg.allowedHosts {
		if suffix, ok := strings.CutPrefix(allowed, "*."); ok {
			if strings.HasSuffix(host, "."+suffix) {
				return true
			}
			continue
		}
		if host == allowed {
			return true
		}
	}
	return false
}

// upstreamResult is the final upstream response and how many attempts it
// took. The caller owns resp.Body.
type upstreamResult struct {
	resp     *http.Response
	attempts int
}

// retryableStatus reports whether an upstream status is worth another attempt.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// parseRetryAfter reads a Retry-After value in either delay-seconds or
// HTTP-date form. Unparseable or past values yield zero.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

// idempotent reports whether a method may be sent more than once.
func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions,
		http.MethodPut, http.MethodDelete, http.MethodTrace:
		return true
	}
	return false
}

// doUpstream sends the request, retrying network failures and retryable
// statuses while attempts remain. Non-idempotent methods get one attempt.
// A retryable status on the last attempt is returned as a normal response so
// the browser sees what the upstream said.
func (s *Server) doUpstream(ctx context.Context, target string, opts FetchOptions) (upstreamResult, error) {
	retrier := s.retrier
	if !idempotent(opts.Method) {
		retrier = s.once
	}
	maxAttempts := retrier.RetryConfig().MaxAttempts
	attempt := 0

	result := proxyerr.Execute(ctx, retrier, func(ctx context.Context) (*http.Response, error) {
		attempt++

		req, err := http.NewRequestWithContext(ctx, opts.Method, target, bytes.NewReader(opts.Body))
		if err != nil {
			return nil, proxyerr.Permanent(stripURL(err), "build request")
		}
		req.Header = opts.Header.Clone()

		resp, err := s.cfg.client.Do(req)
		if err != nil {
			return nil, stripURL(err)
		}

		if attempt < maxAttempts && retryableStatus(resp.StatusCode) {
			// Drain so the connection can be reused.
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
			resp.Body.Close()
			return nil, &proxyerr.HTTPError{
				StatusCode: resp.StatusCode,
				Message:    http.StatusText(resp.StatusCode),
				Endpoint:   req.URL.Host,
				RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
			}
		}
		return resp, nil
	})

	if result.Err != nil {
		return upstreamResult{attempts: result.Attempts}, result.Err
	}
	return upstreamResult{resp: result.Value, attempts: result.Attempts}, nil
}
