package cache

import "time"

// NoopStore caches nothing. Use it when caching is disabled.
type NoopStore struct{}

// Compile-time interface checks.
var (
	_ Store = NoopStore{}
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)

// Get always reports ErrNotFound.
func (NoopStore) Get(string) (Entry, error) { return Entry{}, ErrNotFound }

// Set discards the entry.
func (NoopStore) Set(string, Entry, time.Duration) error { return nil }

// Delete does nothing.
func (NoopStore) Delete(string) error { return nil }

// Len is always zero.
func (NoopStore) Len() int { return 0 }

// Close does nothing.
func (NoopStore) Close() error { return nil }
