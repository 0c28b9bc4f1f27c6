// Package cache provides the durable local key/value store that acts as the
// read/write source of truth for all domain collections.
//
// The cache runs on embedded SQLite (ncruces/go-sqlite3) with WAL mode.
// Every write lands locally and synchronously before any remote sync is even
// scheduled: domain operations succeed against the cache regardless of
// network health (optimistic local-first semantics).
//
// Keys are namespaced per collection: one key per domain collection, each
// holding the collection's records as a JSON array.
//
// A successful Set broadcasts the change over the configured notify.Notifier
// so sibling instances refresh without polling, and invokes locally
// registered change listeners so the sync manager can mark state dirty.
package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/tallyhq/tally/internal/notify"
)

// ErrQuotaExceeded is returned when the backing medium rejects a write
// because it is full. This is non-transient: it is surfaced synchronously to
// the caller of the mutation and never queued or retried.
var ErrQuotaExceeded = errors.New("local storage quota exceeded")

// Cache is the durable local key/value store.
type Cache struct {
	conn     *sql.DB
	path     string
	logger   *log.Logger
	notifier notify.Notifier

	mu        sync.Mutex
	listeners map[int]func(key string)
	nextID    int
}

// Open creates or opens the cache database at path.
//
// The parent directory is created if needed. The caller must Close the cache
// when done.
func Open(path string, logger *log.Logger) (*Cache, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[cache] ", log.LstdFlags)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping cache database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(5 * time.Minute)

	c := &Cache{
		conn:      conn,
		path:      path,
		logger:    logger,
		notifier:  notify.Noop{},
		listeners: make(map[int]func(key string)),
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := c.initSchema(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return c, nil
}

func (c *Cache) initSchema() error {
	const schema = `
		CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`
	if _, err := c.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize cache schema: %w", err)
	}
	return nil
}

// SetNotifier installs the cross-process notifier used to broadcast writes.
// By default writes are not broadcast anywhere.
func (c *Cache) SetNotifier(n notify.Notifier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n == nil {
		n = notify.Noop{}
	}
	c.notifier = n
}

// Get returns the value stored under key. The second result reports whether
// the key exists.
func (c *Cache) Get(key string) (string, bool, error) {
	var value string
	err := c.conn.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read cache key %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key, durable on return, then broadcasts the change
// to sibling instances and invokes local change listeners.
//
// A full backing medium surfaces ErrQuotaExceeded; the write is not queued.
func (c *Cache) Set(key, value string) error {
	if err := c.put(key, value); err != nil {
		return err
	}

	c.mu.Lock()
	notifier := c.notifier
	c.mu.Unlock()
	if err := notifier.Broadcast(key, value); err != nil {
		// Best-effort: siblings fall behind on display but local state is
		// already durable.
		c.logger.Printf("Failed to broadcast change for %s: %v", key, err)
	}

	c.fireChanged(key)
	return nil
}

// ApplyForeign stores a value received from a sibling instance. The write is
// durable and local listeners fire, but the change is not re-broadcast;
// echoing it back would loop between instances.
func (c *Cache) ApplyForeign(key, value string) error {
	if err := c.put(key, value); err != nil {
		return err
	}
	c.fireChanged(key)
	return nil
}

func (c *Cache) put(key, value string) error {
	_, err := c.conn.Exec(
		"INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?) "+
			"ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at",
		key, value, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isQuotaErr(err) {
			return fmt.Errorf("failed to write cache key %s: %w", key, ErrQuotaExceeded)
		}
		return fmt.Errorf("failed to write cache key %s: %w", key, err)
	}
	return nil
}

// Remove deletes the key. Removing an absent key is not an error.
func (c *Cache) Remove(key string) error {
	if _, err := c.conn.Exec("DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to remove cache key %s: %w", key, err)
	}
	c.fireChanged(key)
	return nil
}

// Keys returns all stored keys sorted.
func (c *Cache) Keys() ([]string, error) {
	rows, err := c.conn.Query("SELECT key FROM kv ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("failed to list cache keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan cache key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cache keys: %w", err)
	}
	return keys, nil
}

// OnChange registers a listener invoked with the key after every local
// mutation (Set, ApplyForeign, Remove). Returns an unsubscribe function.
func (c *Cache) OnChange(fn func(key string)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

func (c *Cache) fireChanged(key string) {
	c.mu.Lock()
	listeners := make([]func(string), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(key)
	}
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	if c.conn == nil {
		return nil
	}
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("failed to close cache database: %w", err)
	}
	c.conn = nil
	return nil
}

// isQuotaErr reports whether err is SQLite's disk-full condition.
func isQuotaErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "database or disk is full")
}
