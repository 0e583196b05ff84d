package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists cached responses to SQLite so they survive restarts.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	clock  Clock
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens (or creates) a response cache database.
// The path should be a file path (e.g., "./tripproxy.db") or ":memory:" for testing.
func NewSQLiteStore(path string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Each connection to :memory: is a separate database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS responses (
			key TEXT PRIMARY KEY,
			status INTEGER NOT NULL,
			header TEXT NOT NULL,
			body BLOB NOT NULL,
			stored_at TEXT NOT NULL,
			expires_at INTEGER NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_responses_expires_at
		ON responses(expires_at)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	o := buildOptions(opts)
	return &SQLiteStore{db: db, clock: o.clock}, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(key string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Entry{}, ErrStoreClosed
	}

	var (
		entry     Entry
		header    string
		storedAt  string
		expiresAt int64
	)
	err := s.db.QueryRow(`
		SELECT status, header, body, stored_at, expires_at
		FROM responses WHERE key = ?
	`, key).Scan(&entry.Status, &header, &entry.Body, &storedAt, &expiresAt)

	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("load response: %w", err)
	}
	if expiresAt != 0 && expiresAt <= s.clock.Now().UnixNano() {
		return Entry{}, ErrNotFound
	}

	entry.Header = http.Header{}
	if err := json.Unmarshal([]byte(header), &entry.Header); err != nil {
		return Entry{}, fmt.Errorf("decode header: %w", err)
	}
	entry.StoredAt, _ = time.Parse(time.RFC3339Nano, storedAt)
	if entry.Body == nil {
		entry.Body = []byte{}
	}
	return entry, nil
}

// Set implements Store.
func (s *SQLiteStore) Set(key string, entry Entry, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	header, err := json.Marshal(entry.Header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	now := s.clock.Now()
	storedAt := entry.StoredAt
	if storedAt.IsZero() {
		storedAt = now.UTC()
	}
	var expiresAt int64
	if ttl > 0 {
		expiresAt = now.Add(ttl).UnixNano()
	}
	body := entry.Body
	if body == nil {
		body = []byte{}
	}

	_, err = s.db.Exec(`
		INSERT INTO responses (key, status, header, body, stored_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			status = excluded.status,
			header = excluded.header,
			body = excluded.body,
			stored_at = excluded.stored_at,
			expires_at = excluded.expires_at
	`, key, entry.Status, string(header), body, storedAt.Format(time.RFC3339Nano), expiresAt)
	if err != nil {
		return fmt.Errorf("save response: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.db.Exec(`DELETE FROM responses WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete response: %w", err)
	}
	return nil
}

// Len implements Store. It returns 0 if the count query fails.
func (s *SQLiteStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}

	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM responses
		WHERE expires_at = 0 OR expires_at > ?
	`, s.clock.Now().UnixNano()).Scan(&n)
	if err != nil {
		return 0
	}
	return n
}

// Prune deletes expired rows and reports how many were removed.
func (s *SQLiteStore) Prune() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	res, err := s.db.Exec(`
		DELETE FROM responses
		WHERE expires_at != 0 AND expires_at <= ?
	`, s.clock.Now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune responses: %w", err)
	}
	return res.RowsAffected()
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}
