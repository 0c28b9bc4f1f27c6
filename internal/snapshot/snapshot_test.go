package snapshot

import (
	"encoding/json"
	"testing"
)

func record(t *testing.T, s string) json.RawMessage {
	t.Helper()
	if !json.Valid([]byte(s)) {
		t.Fatalf("invalid test record: %s", s)
	}
	return json.RawMessage(s)
}

func TestHashStableAcrossFormatting(t *testing.T) {
	a := New()
	a.SetRecords("products", []json.RawMessage{
		record(t, `{"id":"p1","name":"Flour","qty":10}`),
	})

	b := New()
	b.SetRecords("products", []json.RawMessage{
		record(t, `{ "id": "p1", "name": "Flour", "qty": 10 }`),
	})

	if a.Hash() != b.Hash() {
		t.Errorf("whitespace changed the hash: %s vs %s", a.Hash(), b.Hash())
	}
}

func TestHashIgnoresEmptyCollections(t *testing.T) {
	a := New()
	a.SetRecords("products", []json.RawMessage{record(t, `{"id":"p1"}`)})

	b := a.Clone()
	b.SetRecords("sales", []json.RawMessage{})
	b.SetRecords("customers", nil)

	if a.Hash() != b.Hash() {
		t.Error("empty collections should not affect the hash")
	}
}

func TestHashChangesOnMutation(t *testing.T) {
	s := New()
	s.SetRecords("products", []json.RawMessage{record(t, `{"id":"p1","qty":10}`)})
	before := s.Hash()

	s.SetRecords("products", []json.RawMessage{record(t, `{"id":"p1","qty":11}`)})
	if s.Hash() == before {
		t.Error("record mutation did not change the hash")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	s := New()
	s.SetRecords("products", []json.RawMessage{
		record(t, `{"id":"p1","name":"Flour"}`),
		record(t, `{"id":"p2","name":"Sugar"}`),
	})
	s.SetRecords("ledgerEntries", []json.RawMessage{
		record(t, `{"id":"l1","amount":-250}`),
	})

	data, err := s.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if decoded.Hash() != s.Hash() {
		t.Errorf("round trip changed the hash")
	}
	if got := len(decoded.Records("products")); got != 2 {
		t.Errorf("expected 2 products, got %d", got)
	}
}

func TestDecodePreservesUnknownCollections(t *testing.T) {
	data := []byte(`{"products":[{"id":"p1"}],"futureThings":[{"id":"f1"}]}`)
	s, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got := len(s.Records("futureThings")); got != 1 {
		t.Errorf("unknown collection dropped: got %d records", got)
	}
}

func TestCompare(t *testing.T) {
	base := New()
	base.SetRecords("products", []json.RawMessage{
		record(t, `{"id":"p1","qty":10}`),
		record(t, `{"id":"p2","qty":5}`),
	})
	base.SetRecords("customers", []json.RawMessage{
		record(t, `{"id":"c1"}`),
	})

	current := base.Clone()
	current.SetRecords("products", []json.RawMessage{
		record(t, `{"id":"p1","qty":12}`), // modified
		record(t, `{"id":"p3","qty":1}`),  // added, p2 removed
	})

	d := Compare(base, current)
	if d.Added != 1 || d.Removed != 1 || d.Modified != 1 {
		t.Errorf("unexpected diff %+v", d)
	}
	if d.Total() != 3 {
		t.Errorf("expected total 3, got %d", d.Total())
	}
}

func TestCompareDroppedCollection(t *testing.T) {
	base := New()
	base.SetRecords("sales", []json.RawMessage{
		record(t, `{"id":"s1"}`),
		record(t, `{"id":"s2"}`),
	})

	d := Compare(base, New())
	if d.Removed != 2 || d.Total() != 2 {
		t.Errorf("expected 2 removals, got %+v", d)
	}
}

func TestCompareIdenticalIsEmpty(t *testing.T) {
	s := New()
	s.SetRecords("products", []json.RawMessage{record(t, `{"id":"p1"}`)})

	if d := Compare(s, s.Clone()); d.Total() != 0 {
		t.Errorf("identical snapshots diff as %+v", d)
	}
}
