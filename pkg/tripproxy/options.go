package tripproxy

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/randalmurphal/tripproxy/pkg/tripproxy/cache"
	proxyerr "github.com/randalmurphal/tripproxy/pkg/tripproxy/errors"
	"github.com/randalmurphal/tripproxy/pkg/tripproxy/observability"
	"github.com/randalmurphal/tripproxy/pkg/tripproxy/template"
)

// serverConfig holds everything NewServer can configure.
type serverConfig struct {
	resolver     *template.Resolver
	client       *http.Client
	cache        cache.Store
	cacheTTL     time.Duration
	maxBodyBytes int64
	retry        proxyerr.RetryConfig
	allowedHosts []string
	logger       *slog.Logger
	metrics      observability.MetricsRecorder
	spans        observability.SpanManager
}

// defaultServerConfig returns the default server configuration.
func defaultServerConfig() serverConfig {
	return serverConfig{
		resolver:     template.NewResolver(),
		client:       NewHTTPClient(DefaultClientConfig()),
		cache:        cache.NoopStore{},
		cacheTTL:     5 * time.Minute,
		maxBodyBytes: 1 << 20,
		retry:        proxyerr.DefaultRetry,
		logger:       slog.Default(),
		metrics:      observability.NoopMetrics{},
		spans:        observability.NoopSpanManager{},
	}
}

// Option configures a Server.
type Option func(*serverConfig)

// WithResolver sets the template resolver.
// Default: template.NewResolver(), which reads the process environment.
func WithResolver(r *template.Resolver) Option {
	return func(c *serverConfig) {
		if r != nil {
			c.resolver = r
		}
	}
}

// WithHTTPClient sets the client used for upstream fetches.
func WithHTTPClient(client *http.Client) Option {
	return func(c *serverConfig) {
		if client != nil {
			c.client = client
		}
	}
}

// WithCache enables response caching with the given store.
// Default: no caching.
func WithCache(store cache.Store) Option {
	return func(c *serverConfig) {
		if store != nil {
			c.cache = store
		}
	}
}

// WithCacheTTL sets how long cached responses stay fresh.
// Zero keeps entries until evicted.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *serverConfig) {
		if ttl >= 0 {
			c.cacheTTL = ttl
		}
	}
}

// WithMaxBodyBytes sets the largest upstream body that will be cached.
// Larger bodies are still proxied.
func WithMaxBodyBytes(n int64) Option {
	return func(c *serverConfig) {
		if n >= 0 {
			c.maxBodyBytes = n
		}
	}
}

// WithRetry sets the upstream retry policy.
//
// Example:
//
//	srv := tripproxy.NewServer(tripproxy.WithRetry(errors.NoRetry))
func WithRetry(cfg proxyerr.RetryConfig) Option {
	return func(c *serverConfig) {
		c.retry = cfg
	}
}

// WithAllowedHosts restricts upstream hosts. Entries match the hostname
// exactly, or any subdomain when written as "*.example.com". An empty list
// allows every host.
func WithAllowedHosts(hosts ...string) Option {
	return func(c *serverConfig) {
		c.allowedHosts = nil
		for _, h := range hosts {
			h = strings.ToLower(strings.TrimSpace(h))
			if h != "" {
				c.allowedHosts = append(c.allowedHosts, h)
			}
		}
	}
}

// WithLogger sets the logger.
// Default: slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(c *serverConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
// Default: observability.NoopMetrics{}
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(c *serverConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithSpanManager sets the tracing span manager.
// Default: observability.NoopSpanManager{}
func WithSpanManager(sm observability.SpanManager) Option {
	return func(c *serverConfig) {
		if sm != nil {
			c.spans = sm
		}
	}
}
