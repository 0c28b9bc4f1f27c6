package domain

import (
	"encoding/json"
	"io"
	"log"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tallyhq/tally/internal/cache"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	c, err := cache.Open(filepath.Join(t.TempDir(), "tally.db"), log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("failed to open cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return NewStore(c)
}

func TestSnapshotAssembly(t *testing.T) {
	store := setupStore(t)

	now := time.Now().UTC()
	if err := store.Products.Upsert(Product{ID: "p1", Name: "Flour", Price: 40, Stock: 12, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("product upsert failed: %v", err)
	}
	if err := store.Customers.Upsert(Customer{ID: "c1", Name: "Corner Shop", Balance: -150}); err != nil {
		t.Fatalf("customer upsert failed: %v", err)
	}

	snap, err := store.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if got := len(snap.Records("products")); got != 1 {
		t.Errorf("expected 1 product in snapshot, got %d", got)
	}
	if got := len(snap.Records("customers")); got != 1 {
		t.Errorf("expected 1 customer in snapshot, got %d", got)
	}
	if snap.Count() != 2 {
		t.Errorf("expected 2 records total, got %d", snap.Count())
	}
}

func TestSnapshotChangesHashOnWrite(t *testing.T) {
	store := setupStore(t)

	before, err := store.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	if err := store.Sales.Upsert(Sale{ID: "s1", Total: 500, Paid: 500, At: time.Now()}); err != nil {
		t.Fatalf("sale upsert failed: %v", err)
	}

	after, err := store.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if before.Hash() == after.Hash() {
		t.Error("snapshot hash unchanged after a write")
	}
}

func TestApplyThenSnapshotRoundTrip(t *testing.T) {
	source := setupStore(t)
	source.Products.Upsert(Product{ID: "p1", Name: "Flour"})
	source.Loadings.Upsert(Loading{ID: "ld1", Date: "2026-08-25", Items: []LoadingItem{{ProductID: "p1", Quantity: 3}}})

	snap, err := source.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	target := setupStore(t)
	if err := target.Apply(snap); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	applied, err := target.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if applied.Hash() != snap.Hash() {
		t.Error("apply/assemble round trip changed the snapshot")
	}

	loadings, err := target.Loadings.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(loadings) != 1 || loadings[0].Items[0].Quantity != 3 {
		t.Errorf("unexpected loadings: %+v", loadings)
	}
}

func TestClear(t *testing.T) {
	store := setupStore(t)
	store.Products.Upsert(Product{ID: "p1"})

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	snap, err := store.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.Count() != 0 {
		t.Errorf("expected empty snapshot after Clear, got %d records", snap.Count())
	}
}

func TestRecordJSONShape(t *testing.T) {
	entry := LedgerEntry{
		ID:        "l1",
		PartyType: "customer",
		PartyID:   "c1",
		Amount:    -250,
		At:        time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	for _, field := range []string{`"id"`, `"partyType"`, `"partyId"`, `"amount"`} {
		if !strings.Contains(string(data), field) {
			t.Errorf("missing %s in %s", field, data)
		}
	}
}

func TestNewID(t *testing.T) {
	a := NewID("prod")
	b := NewID("prod")
	if a == b {
		t.Error("NewID returned duplicate ids")
	}
	if !strings.HasPrefix(a, "prod-") {
		t.Errorf("missing prefix: %s", a)
	}
}
