// Package snapshot defines the aggregate of domain collections that is
// synchronized as one logical unit, along with content hashing and
// record-level diffing against a baseline.
//
// A Snapshot holds named, ordered collections of JSON records. Record order
// inside a collection is preserved for display but carries no other meaning.
// Each record is expected to carry an "id" field unique within its
// collection; records without one are keyed by position.
package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Collections synchronized by default, in display order.
var DefaultCollections = []string{
	"products",
	"categories",
	"movements",
	"customers",
	"suppliers",
	"sales",
	"ledgerEntries",
	"bookedStock",
	"loadings",
}

// Snapshot is the full in-memory aggregate of all synchronized collections.
type Snapshot struct {
	collections map[string][]json.RawMessage
}

// New returns an empty snapshot with no collections.
func New() *Snapshot {
	return &Snapshot{collections: make(map[string][]json.RawMessage)}
}

// Names returns the collection names present in the snapshot, sorted.
func (s *Snapshot) Names() []string {
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Records returns the records of the named collection in stored order.
// A missing collection yields nil.
func (s *Snapshot) Records(name string) []json.RawMessage {
	return s.collections[name]
}

// SetRecords replaces the named collection with the given records.
func (s *Snapshot) SetRecords(name string, records []json.RawMessage) {
	if s.collections == nil {
		s.collections = make(map[string][]json.RawMessage)
	}
	s.collections[name] = records
}

// Count returns the total number of records across all collections.
func (s *Snapshot) Count() int {
	n := 0
	for _, records := range s.collections {
		n += len(records)
	}
	return n
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	c := New()
	for name, records := range s.collections {
		copied := make([]json.RawMessage, len(records))
		for i, r := range records {
			copied[i] = append(json.RawMessage(nil), r...)
		}
		c.collections[name] = copied
	}
	return c
}

// Encode serializes the snapshot as a single JSON object mapping collection
// names to record arrays. This is the wire format of the remote document.
func (s *Snapshot) Encode() ([]byte, error) {
	doc := make(map[string][]json.RawMessage, len(s.collections))
	for name, records := range s.collections {
		if records == nil {
			records = []json.RawMessage{}
		}
		doc[name] = records
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// Decode parses the wire format produced by Encode.
//
// Unknown collections are preserved so that a newer remote schema round-trips
// through an older process without data loss.
func Decode(data []byte) (*Snapshot, error) {
	var doc map[string][]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	s := New()
	for name, records := range doc {
		s.collections[name] = records
	}
	return s, nil
}

// recordID extracts the "id" field from a record. Returns false when the
// record has no usable identifier.
func recordID(record json.RawMessage) (string, bool) {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(record, &probe); err != nil || probe.ID == "" {
		return "", false
	}
	return probe.ID, true
}

// compact returns the record with insignificant whitespace removed, so that
// formatting differences do not register as changes.
func compact(record json.RawMessage) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, record); err != nil {
		return record
	}
	return buf.Bytes()
}
