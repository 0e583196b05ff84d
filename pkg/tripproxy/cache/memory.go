package cache

import (
	"errors"
	"sync"
	"time"

	"github.com/bluele/gcache"
)

// DefaultMemorySize is used when NewMemoryStore is given a non-positive size.
const DefaultMemorySize = 1000

// MemoryStore is an in-process LRU cache. Data is lost when the process
// exits.
//
// gcache evicts expired items on access using the configured clock, but its
// Len and GetALL compare against the wall clock, so each item also carries
// its own deadline.
type MemoryStore struct {
	mu     sync.RWMutex
	lru    gcache.Cache
	clock  Clock
	closed bool
}

type memoryItem struct {
	entry     Entry
	expiresAt time.Time
}

func (it memoryItem) expired(now time.Time) bool {
	return !it.expiresAt.IsZero() && !now.Before(it.expiresAt)
}

// NewMemoryStore creates an LRU store holding at most size entries.
func NewMemoryStore(size int, opts ...Option) *MemoryStore {
	if size <= 0 {
		size = DefaultMemorySize
	}
	o := buildOptions(opts)
	return &MemoryStore{
		lru:   gcache.New(size).LRU().Clock(o.clock).Build(),
		clock: o.clock,
	}
}

// Get implements Store.
func (m *MemoryStore) Get(key string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return Entry{}, ErrStoreClosed
	}

	v, err := m.lru.Get(key)
	if errors.Is(err, gcache.KeyNotFoundError) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}

	it := v.(memoryItem)
	if it.expired(m.clock.Now()) {
		m.lru.Remove(key)
		return Entry{}, ErrNotFound
	}

	// Return a copy to prevent modification
	return it.entry.Clone(), nil
}

// Set implements Store.
func (m *MemoryStore) Set(key string, entry Entry, ttl time.Duration) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrStoreClosed
	}

	now := m.clock.Now()
	it := memoryItem{entry: entry.Clone()}
	if it.entry.StoredAt.IsZero() {
		it.entry.StoredAt = now.UTC()
	}

	if ttl > 0 {
		it.expiresAt = now.Add(ttl)
		return m.lru.SetWithExpire(key, it, ttl)
	}
	return m.lru.Set(key, it)
}

// Delete implements Store.
func (m *MemoryStore) Delete(key string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrStoreClosed
	}

	m.lru.Remove(key)
	return nil
}

// Len implements Store. Expired entries are not counted.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0
	}

	now := m.clock.Now()
	n := 0
	for _, v := range m.lru.GetALL(false) {
		if !v.(memoryItem).expired(now) {
			n++
		}
	}
	return n
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.lru.Purge()
	return nil
}
