package domain

import (
	"encoding/json"
	"fmt"

	"github.com/tallyhq/tally/internal/cache"
	"github.com/tallyhq/tally/internal/collection"
	"github.com/tallyhq/tally/internal/snapshot"
)

// Store binds every synchronized collection to the local cache. One Store
// per process; all domain reads and writes go through it. Writes land in
// the cache synchronously; the sync engine picks them up via the cache's
// change listeners and ships them in the background.
type Store struct {
	cache *cache.Cache

	Products      *collection.Collection[Product]
	Categories    *collection.Collection[Category]
	Movements     *collection.Collection[Movement]
	Customers     *collection.Collection[Customer]
	Suppliers     *collection.Collection[Supplier]
	Sales         *collection.Collection[Sale]
	LedgerEntries *collection.Collection[LedgerEntry]
	BookedStock   *collection.Collection[BookedStock]
	Loadings      *collection.Collection[Loading]
}

// NewStore wires the collections to their cache keys.
func NewStore(c *cache.Cache) *Store {
	return &Store{
		cache:         c,
		Products:      collection.New[Product](c, "products"),
		Categories:    collection.New[Category](c, "categories"),
		Movements:     collection.New[Movement](c, "movements"),
		Customers:     collection.New[Customer](c, "customers"),
		Suppliers:     collection.New[Supplier](c, "suppliers"),
		Sales:         collection.New[Sale](c, "sales"),
		LedgerEntries: collection.New[LedgerEntry](c, "ledgerEntries"),
		BookedStock:   collection.New[BookedStock](c, "bookedStock"),
		Loadings:      collection.New[Loading](c, "loadings"),
	}
}

// Snapshot assembles the current snapshot from the cache. This is the
// SnapshotFunc handed to the sync manager.
func (s *Store) Snapshot() (*snapshot.Snapshot, error) {
	snap := snapshot.New()
	for _, name := range snapshot.DefaultCollections {
		value, ok, err := s.cache.Get(name)
		if err != nil {
			return nil, err
		}
		if !ok || value == "" {
			continue
		}
		var records []json.RawMessage
		if err := json.Unmarshal([]byte(value), &records); err != nil {
			return nil, fmt.Errorf("corrupt collection %s in cache: %w", name, err)
		}
		snap.SetRecords(name, records)
	}
	return snap, nil
}

// Apply writes a remotely fetched snapshot into the cache. This is the
// ApplyFunc handed to the sync manager's Pull: the writes fire local change
// listeners but are not re-broadcast to sibling instances, which pull for
// themselves.
func (s *Store) Apply(snap *snapshot.Snapshot) error {
	for _, name := range snapshot.DefaultCollections {
		records := snap.Records(name)
		if records == nil {
			records = []json.RawMessage{}
		}
		encoded, err := json.Marshal(records)
		if err != nil {
			return fmt.Errorf("failed to encode collection %s: %w", name, err)
		}
		if err := s.cache.ApplyForeign(name, string(encoded)); err != nil {
			return err
		}
	}
	return nil
}

// Clear removes every synchronized collection from the cache.
func (s *Store) Clear() error {
	for _, name := range snapshot.DefaultCollections {
		if err := s.cache.Remove(name); err != nil {
			return err
		}
	}
	return nil
}
