package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Deduplicator accumulates records, dropping repeated ids whose payloads are
// equivalent and rejecting repeated ids whose payloads differ.
//
// Payloads are compared after canonical re-encoding, so differences in key
// order or whitespace do not count as conflicts.
type Deduplicator struct {
	seen    map[string][]byte
	records []*SceneRecord
}

// NewDeduplicator returns an empty Deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{seen: make(map[string][]byte)}
}

// Add appends rec unless its id was already seen. It returns
// ErrInconsistentCatalog when the id was seen with a different payload.
func (d *Deduplicator) Add(rec *SceneRecord) (added bool, err error) {
	canon, err := canonicalJSON(rec.Raw)
	if err != nil {
		return false, fmt.Errorf("%w: scene %s: %v", ErrMalformedScene, rec.ID, err)
	}

	if prev, ok := d.seen[rec.ID]; ok {
		if bytes.Equal(prev, canon) {
			return false, nil
		}
		return false, fmt.Errorf("%w: duplicate id %s for different features", ErrInconsistentCatalog, rec.ID)
	}

	d.seen[rec.ID] = canon
	d.records = append(d.records, rec)
	return true, nil
}

// Records returns the unique records in first-seen order.
func (d *Deduplicator) Records() []*SceneRecord {
	return d.records
}

// Len returns the number of unique records.
func (d *Deduplicator) Len() int {
	return len(d.records)
}

// Dedup removes repeated ids from records, keeping the first occurrence.
func Dedup(records []*SceneRecord) ([]*SceneRecord, error) {
	d := NewDeduplicator()
	for _, rec := range records {
		if _, err := d.Add(rec); err != nil {
			return nil, err
		}
	}
	return d.Records(), nil
}

func canonicalJSON(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 {
		return []byte("null"), nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}
