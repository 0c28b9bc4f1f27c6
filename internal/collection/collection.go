// Package collection provides the one generic synced-collection abstraction
// shared by every domain collection.
//
// Historically each domain area (inventory, customers, ledger, loadings,
// booked stock) carried its own copy of the optimistic-cache-plus-sync hook
// pattern, and the copies drifted apart. Collection[T] is that pattern once:
// typed reads, order-preserving writes through the local cache, and change
// propagation left to the cache's own listeners (which the sync manager
// subscribes to).
//
// Mutations operate on the raw stored records and only re-encode the record
// being touched, so fields written by a newer schema survive a round trip
// through an older process.
package collection

import (
	"encoding/json"
	"fmt"

	"github.com/tallyhq/tally/internal/cache"
)

// Record is any domain record with a collection-unique identifier.
type Record interface {
	RecordID() string
}

// Collection is a typed view over one cache key holding a JSON array.
type Collection[T Record] struct {
	cache *cache.Cache
	key   string
}

// New binds a collection to its cache key.
func New[T Record](c *cache.Cache, key string) *Collection[T] {
	return &Collection[T]{cache: c, key: key}
}

// Key returns the cache key (which is also the snapshot collection name).
func (c *Collection[T]) Key() string {
	return c.key
}

// List returns all records in stored order.
func (c *Collection[T]) List() ([]T, error) {
	raw, err := c.load()
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raw))
	for _, r := range raw {
		var rec T
		if err := json.Unmarshal(r, &rec); err != nil {
			return nil, fmt.Errorf("corrupt record in %s: %w", c.key, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Get returns the record with the given id.
func (c *Collection[T]) Get(id string) (T, bool, error) {
	var zero T
	records, err := c.List()
	if err != nil {
		return zero, false, err
	}
	for _, rec := range records {
		if rec.RecordID() == id {
			return rec, true, nil
		}
	}
	return zero, false, nil
}

// Upsert inserts the record or replaces the stored record with the same id,
// keeping its position. New records append.
func (c *Collection[T]) Upsert(rec T) error {
	id := rec.RecordID()
	if id == "" {
		return fmt.Errorf("record for %s has no id", c.key)
	}

	encoded, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode %s record %s: %w", c.key, id, err)
	}

	raw, err := c.load()
	if err != nil {
		return err
	}

	replaced := false
	for i, r := range raw {
		if storedID(r) == id {
			raw[i] = encoded
			replaced = true
			break
		}
	}
	if !replaced {
		raw = append(raw, encoded)
	}
	return c.store(raw)
}

// Delete removes the record with the given id, reporting whether it existed.
func (c *Collection[T]) Delete(id string) (bool, error) {
	raw, err := c.load()
	if err != nil {
		return false, err
	}
	for i, r := range raw {
		if storedID(r) == id {
			raw = append(raw[:i], raw[i+1:]...)
			return true, c.store(raw)
		}
	}
	return false, nil
}

// ReplaceAll overwrites the whole collection with the given records.
func (c *Collection[T]) ReplaceAll(records []T) error {
	raw := make([]json.RawMessage, len(records))
	for i, rec := range records {
		encoded, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to encode %s record: %w", c.key, err)
		}
		raw[i] = encoded
	}
	return c.store(raw)
}

// Raw returns the stored records without decoding them.
func (c *Collection[T]) Raw() ([]json.RawMessage, error) {
	return c.load()
}

func (c *Collection[T]) load() ([]json.RawMessage, error) {
	value, ok, err := c.cache.Get(c.key)
	if err != nil {
		return nil, err
	}
	if !ok || value == "" {
		return nil, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(value), &raw); err != nil {
		return nil, fmt.Errorf("corrupt collection %s: %w", c.key, err)
	}
	return raw, nil
}

func (c *Collection[T]) store(raw []json.RawMessage) error {
	if raw == nil {
		raw = []json.RawMessage{}
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to encode collection %s: %w", c.key, err)
	}
	return c.cache.Set(c.key, string(encoded))
}

func storedID(record json.RawMessage) string {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(record, &probe); err != nil {
		return ""
	}
	return probe.ID
}
