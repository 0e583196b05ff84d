package config

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/randalmurphal/tripproxy/pkg/tripproxy/template"
)

// ErrInvalidSetting is wrapped by every validation failure returned from Load.
var ErrInvalidSetting = errors.New("invalid setting")

// Cache backends.
const (
	CacheMemory = "memory"
	CacheSQLite = "sqlite"
	CacheNone   = "none"
)

// Settings is the proxy server configuration.
type Settings struct {
	// Listen is the HTTP listen address.
	Listen string

	// EnvFiles are .env files consulted after the process environment
	// when resolving ${VAR} placeholders.
	EnvFiles []string

	// MissingEnv controls unresolved ${VAR} placeholders.
	MissingEnv template.MissingAction

	Upstream  UpstreamSettings
	Cache     CacheSettings
	Log       LogSettings
	Telemetry TelemetrySettings
}

// UpstreamSettings configures outbound fetches.
type UpstreamSettings struct {
	Timeout time.Duration

	// Retries is the maximum number of attempts per fetch, including the first.
	Retries int

	// AllowedHosts restricts resolved URLs to these hosts. Empty allows all.
	AllowedHosts []string
}

// CacheSettings configures the upstream response cache.
type CacheSettings struct {
	Backend string
	Size    int
	TTL     time.Duration
	Path    string

	// MaxBodyBytes is the largest response body that will be cached.
	MaxBodyBytes int64
}

// LogSettings configures the slog handler built by the binary.
type LogSettings struct {
	Level  string
	Format string
}

// TelemetrySettings toggles OpenTelemetry providers.
type TelemetrySettings struct {
	Enabled bool
}

// Defaults returns the settings used when no configuration file is given.
func Defaults() Settings {
	return Settings{
		Listen:     ":8080",
		MissingEnv: template.MissingEmpty,
		Upstream: UpstreamSettings{
			Timeout: 12 * time.Second,
			Retries: 3,
		},
		Cache: CacheSettings{
			Backend:      CacheMemory,
			Size:         1000,
			TTL:          5 * time.Minute,
			Path:         "tripproxy.db",
			MaxBodyBytes: 1 << 20,
		},
		Log: LogSettings{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads settings from cfg on top of Defaults and validates them.
func Load(cfg Config) (Settings, error) {
	s := Defaults()

	s.Listen = cfg.String("listen", s.Listen)
	s.EnvFiles = cfg.StringSlice("env_files", s.EnvFiles)

	missing := cfg.String("resolver.missing_env", s.MissingEnv.String())
	action, ok := template.ParseMissingAction(missing)
	if !ok {
		return Settings{}, fmt.Errorf("%w: resolver.missing_env %q (want empty, keep or error)", ErrInvalidSetting, missing)
	}
	s.MissingEnv = action

	up := cfg.Sub("upstream")
	s.Upstream.Timeout = up.Duration("timeout", s.Upstream.Timeout)
	s.Upstream.Retries = up.Int("retries", s.Upstream.Retries)
	s.Upstream.AllowedHosts = up.StringSlice("allowed_hosts", s.Upstream.AllowedHosts)

	cache := cfg.Sub("cache")
	s.Cache.Backend = cache.String("backend", s.Cache.Backend)
	s.Cache.Size = cache.Int("size", s.Cache.Size)
	s.Cache.TTL = cache.Duration("ttl", s.Cache.TTL)
	s.Cache.Path = cache.String("path", s.Cache.Path)
	s.Cache.MaxBodyBytes = cache.Int64("max_body_bytes", s.Cache.MaxBodyBytes)

	s.Log.Level = cfg.String("log.level", s.Log.Level)
	s.Log.Format = cfg.String("log.format", s.Log.Format)
	s.Telemetry.Enabled = cfg.Bool("telemetry.enabled", s.Telemetry.Enabled)

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// LoadFile reads a YAML or JSON file, expands ${VAR} references against
// lookup and loads the result.
func LoadFile(path string, lookup template.LookupFunc) (Settings, error) {
	cfg, err := FromFile(path)
	if err != nil {
		return Settings{}, err
	}
	if lookup != nil {
		if cfg, err = cfg.Expand(lookup); err != nil {
			return Settings{}, err
		}
	}
	return Load(cfg)
}

// ApplyEnv applies environment overrides. PORT replaces the listen port.
func (s *Settings) ApplyEnv(lookup template.LookupFunc) {
	if lookup == nil {
		return
	}
	if port, ok := lookup("PORT"); ok && port != "" {
		host, _, err := net.SplitHostPort(s.Listen)
		if err != nil {
			host = ""
		}
		s.Listen = net.JoinHostPort(host, port)
	}
}

// Validate checks that the settings are usable.
func (s Settings) Validate() error {
	if s.Listen == "" {
		return fmt.Errorf("%w: listen must not be empty", ErrInvalidSetting)
	}
	if s.Upstream.Timeout <= 0 {
		return fmt.Errorf("%w: upstream.timeout must be positive", ErrInvalidSetting)
	}
	if s.Upstream.Retries < 1 {
		return fmt.Errorf("%w: upstream.retries must be at least 1", ErrInvalidSetting)
	}
	switch s.Cache.Backend {
	case CacheMemory, CacheSQLite, CacheNone:
	default:
		return fmt.Errorf("%w: cache.backend %q (want memory, sqlite or none)", ErrInvalidSetting, s.Cache.Backend)
	}
	if s.Cache.Backend == CacheMemory && s.Cache.Size <= 0 {
		return fmt.Errorf("%w: cache.size must be positive", ErrInvalidSetting)
	}
	if s.Cache.Backend == CacheSQLite && s.Cache.Path == "" {
		return fmt.Errorf("%w: cache.path is required for the sqlite backend", ErrInvalidSetting)
	}
	if s.Cache.TTL < 0 || s.Cache.MaxBodyBytes < 0 {
		return fmt.Errorf("%w: cache.ttl and cache.max_body_bytes must not be negative", ErrInvalidSetting)
	}
	return nil
}
