// Package cache stores upstream responses so repeated proxy requests can be
// served without another upstream call.
package cache

import (
	"errors"
	"time"
)

// Store holds cached upstream responses keyed by request fingerprint.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the entry for key.
	// Returns ErrNotFound if the key is absent or expired.
	Get(key string) (Entry, error)

	// Set stores an entry, replacing any existing one. A ttl <= 0 means the
	// entry never expires.
	Set(key string, entry Entry, ttl time.Duration) error

	// Delete removes an entry.
	// Returns nil if the key doesn't exist.
	Delete(key string) error

	// Len returns the number of live entries.
	Len() int

	// Close releases any resources (connections, files).
	Close() error
}

// Clock supplies the current time. gcache.FakeClock satisfies it, which
// keeps expiry tests off the wall clock.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Option configures a store.
type Option func(*options)

type options struct {
	clock Clock
}

// WithClock sets the time source used for StoredAt stamps and expiry.
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{clock: realClock{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Sentinel errors for cache operations.
var (
	// ErrNotFound indicates a key is absent or expired.
	ErrNotFound = errors.New("cache entry not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("cache store closed")
)
