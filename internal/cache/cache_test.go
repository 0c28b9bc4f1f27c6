package cache

import (
	"errors"
	"io"
	"log"
	"path/filepath"
	"sync"
	"testing"

	"github.com/tallyhq/tally/internal/notify"
)

// setupCache creates a cache backed by a temp database.
func setupCache(t *testing.T) *Cache {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tally.db")
	c, err := Open(path, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("failed to open cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestGetMissingKey(t *testing.T) {
	c := setupCache(t)

	value, ok, err := c.Get("products")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok || value != "" {
		t.Errorf("expected missing key, got ok=%v value=%q", ok, value)
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	c := setupCache(t)

	if err := c.Set("products", `[{"id":"p1"}]`); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	value, ok, err := c.Get("products")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok || value != `[{"id":"p1"}]` {
		t.Errorf("unexpected value: ok=%v value=%q", ok, value)
	}

	// Overwrite
	if err := c.Set("products", `[{"id":"p1"},{"id":"p2"}]`); err != nil {
		t.Fatalf("second Set failed: %v", err)
	}
	value, _, _ = c.Get("products")
	if value != `[{"id":"p1"},{"id":"p2"}]` {
		t.Errorf("overwrite failed: %q", value)
	}
}

func TestRemove(t *testing.T) {
	c := setupCache(t)

	if err := c.Set("sales", `[]`); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := c.Remove("sales"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, ok, _ := c.Get("sales"); ok {
		t.Error("key still present after Remove")
	}

	// Removing again is not an error.
	if err := c.Remove("sales"); err != nil {
		t.Errorf("idempotent Remove failed: %v", err)
	}
}

func TestKeys(t *testing.T) {
	c := setupCache(t)

	for _, key := range []string{"sales", "products", "customers"} {
		if err := c.Set(key, "[]"); err != nil {
			t.Fatalf("Set %s failed: %v", key, err)
		}
	}

	keys, err := c.Keys()
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	want := []string{"customers", "products", "sales"}
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %d", len(want), len(keys))
	}
	for i, key := range want {
		if keys[i] != key {
			t.Errorf("keys[%d] = %s, want %s", i, keys[i], key)
		}
	}
}

func TestOnChangeFires(t *testing.T) {
	c := setupCache(t)

	var (
		mu      sync.Mutex
		changed []string
	)
	unsub := c.OnChange(func(key string) {
		mu.Lock()
		changed = append(changed, key)
		mu.Unlock()
	})

	c.Set("products", "[]")
	c.ApplyForeign("sales", "[]")
	c.Remove("products")

	mu.Lock()
	got := append([]string(nil), changed...)
	mu.Unlock()
	if len(got) != 3 || got[0] != "products" || got[1] != "sales" || got[2] != "products" {
		t.Errorf("unexpected change sequence: %v", got)
	}

	unsub()
	c.Set("products", "[]")
	mu.Lock()
	defer mu.Unlock()
	if len(changed) != 3 {
		t.Error("listener fired after unsubscribe")
	}
}

func TestSetBroadcastsForeignApplyDoesNot(t *testing.T) {
	broker := notify.NewBroker()
	local := broker.Attach()
	sibling := broker.Attach()
	defer local.Close()
	defer sibling.Close()

	c := setupCache(t)
	c.SetNotifier(local)

	var (
		mu  sync.Mutex
		got []string
	)
	sibling.Subscribe("products", func(v string) {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
	})

	if err := c.Set("products", `[{"id":"p1"}]`); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := c.ApplyForeign("products", `[{"id":"p2"}]`); err != nil {
		t.Fatalf("ApplyForeign failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != `[{"id":"p1"}]` {
		t.Errorf("expected exactly the local Set to broadcast, got %v", got)
	}
}

func TestQuotaErrorMapping(t *testing.T) {
	if !isQuotaErr(errors.New("sqlite3: database or disk is full (13)")) {
		t.Error("disk-full error not recognized")
	}
	if isQuotaErr(errors.New("sqlite3: constraint failed")) {
		t.Error("unrelated error classified as quota")
	}
	if isQuotaErr(nil) {
		t.Error("nil classified as quota")
	}
}
