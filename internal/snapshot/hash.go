package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
)

// Hash computes the content fingerprint of the snapshot: SHA-256 over the
// collections in sorted name order with whitespace-normalized records.
//
// Two snapshots with the same records in the same per-collection order hash
// identically regardless of how their JSON was formatted. Empty and absent
// collections hash the same, so pulling a document that spells out empty
// arrays does not register as a change.
func (s *Snapshot) Hash() string {
	h := sha256.New()
	for _, name := range s.Names() {
		records := s.collections[name]
		if len(records) == 0 {
			continue
		}
		h.Write([]byte(name))
		h.Write([]byte{0})
		for _, record := range records {
			h.Write(compact(record))
			h.Write([]byte{0})
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Diff summarizes record-level differences between a baseline and the
// current snapshot.
type Diff struct {
	Added    int
	Removed  int
	Modified int
}

// Total returns the number of records that differ in any way.
func (d Diff) Total() int {
	return d.Added + d.Removed + d.Modified
}

// String renders the diff for log lines and status output.
func (d Diff) String() string {
	return fmt.Sprintf("+%d -%d ~%d", d.Added, d.Removed, d.Modified)
}

// Compare diffs current against base record by record. Records are matched
// by their "id" field; records without one are matched by position within
// their collection.
func Compare(base, current *Snapshot) Diff {
	var d Diff
	seen := make(map[string]bool)

	names := current.Names()
	for _, name := range names {
		seen[name] = true
		baseIdx := indexRecords(base.Records(name))
		curIdx := indexRecords(current.Records(name))
		for id, rec := range curIdx {
			old, ok := baseIdx[id]
			switch {
			case !ok:
				d.Added++
			case old != rec:
				d.Modified++
			}
		}
		for id := range baseIdx {
			if _, ok := curIdx[id]; !ok {
				d.Removed++
			}
		}
	}
	for _, name := range base.Names() {
		if !seen[name] {
			d.Removed += len(base.Records(name))
		}
	}
	return d
}

// indexRecords builds an id -> compacted-JSON index for one collection.
func indexRecords(records []json.RawMessage) map[string]string {
	idx := make(map[string]string, len(records))
	for i, record := range records {
		id, ok := recordID(record)
		if !ok {
			id = "#" + strconv.Itoa(i)
		}
		idx[id] = string(compact(record))
	}
	return idx
}
