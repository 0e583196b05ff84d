package tripproxy

import (
	"fmt"

	"github.com/randalmurphal/tripproxy/pkg/tripproxy/cache"
	"github.com/randalmurphal/tripproxy/pkg/tripproxy/config"
	proxyerr "github.com/randalmurphal/tripproxy/pkg/tripproxy/errors"
	"github.com/randalmurphal/tripproxy/pkg/tripproxy/template"
)

// NewServerFromSettings assembles a Server from loaded settings.
//
// Environment placeholders resolve through lookup (the process environment
// when nil) followed by the settings' .env files. opts are applied after the
// settings, so callers can add a logger, metrics or tracing. The returned
// close function releases the cache store.
func NewServerFromSettings(s config.Settings, lookup template.LookupFunc, opts ...Option) (*Server, func() error, error) {
	if err := s.Validate(); err != nil {
		return nil, nil, err
	}

	if lookup == nil {
		lookup = template.OSLookup
	}
	if len(s.EnvFiles) > 0 {
		dotenv, err := template.DotenvLookup(s.EnvFiles...)
		if err != nil {
			return nil, nil, fmt.Errorf("load env files: %w", err)
		}
		lookup = template.ChainLookup(lookup, dotenv)
	}

	store, err := OpenCache(s.Cache)
	if err != nil {
		return nil, nil, err
	}

	clientCfg := DefaultClientConfig()
	clientCfg.Timeout = s.Upstream.Timeout
	if clientCfg.ResponseHeader > s.Upstream.Timeout {
		clientCfg.ResponseHeader = s.Upstream.Timeout
	}

	base := []Option{
		WithResolver(template.NewResolver(
			template.WithLookup(lookup),
			template.WithMissingAction(s.MissingEnv),
		)),
		WithHTTPClient(NewHTTPClient(clientCfg)),
		WithRetry(proxyerr.NewRetryConfig(proxyerr.WithMaxAttempts(s.Upstream.Retries))),
		WithAllowedHosts(s.Upstream.AllowedHosts...),
		WithCache(store),
		WithCacheTTL(s.Cache.TTL),
		WithMaxBodyBytes(s.Cache.MaxBodyBytes),
	}

	return NewServer(append(base, opts...)...), store.Close, nil
}

// OpenCache opens the store selected by the cache settings.
func OpenCache(cs config.CacheSettings) (cache.Store, error) {
	switch cs.Backend {
	case config.CacheMemory:
		return cache.NewMemoryStore(cs.Size), nil
	case config.CacheSQLite:
		store, err := cache.NewSQLiteStore(cs.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite cache: %w", err)
		}
		return store, nil
	case config.CacheNone, "":
		return cache.NoopStore{}, nil
	default:
		return nil, fmt.Errorf("%w: cache.backend %q", config.ErrInvalidSetting, cs.Backend)
	}
}
