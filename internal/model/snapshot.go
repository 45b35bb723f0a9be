package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"time"
)

// Snapshot holds the records of every collection fetched in one sync cycle.
// A Snapshot is immutable once built: it is replaced wholesale, never
// patched. A collection that failed to fetch is absent, which is different
// from a collection that was fetched and returned zero records.
type Snapshot struct {
	fetchedAt   time.Time
	collections map[Collection][]Record
}

// ErrRecordType is wrapped by RecordTypeError.
var ErrRecordType = errors.New("record type does not match collection")

// RecordTypeError reports a record whose concrete type is not the one its
// collection holds. Such a record could not survive a cache round trip.
type RecordTypeError struct {
	Collection Collection
	Index      int
	Got        string
	Want       string
}

func (e *RecordTypeError) Error() string {
	return fmt.Sprintf("%s: record %d is %s, want %s", e.Collection, e.Index, e.Got, e.Want)
}

func (e *RecordTypeError) Unwrap() error {
	return ErrRecordType
}

// CheckRecords reports the first record in recs whose type does not belong
// to c, or nil when every record matches. Unknown collections always pass.
func CheckRecords(c Collection, recs []Record) error {
	want, ok := recordTypes[c]
	if !ok {
		return nil
	}
	for i, r := range recs {
		if got := reflect.TypeOf(r); got != want {
			name := "nil"
			if got != nil {
				name = got.String()
			}
			return &RecordTypeError{Collection: c, Index: i, Got: name, Want: want.String()}
		}
	}
	return nil
}

// NewSnapshot builds a Snapshot from the given per-collection records.
// Unknown collections are dropped; a nil slice for a known collection means
// "present with zero records". The input map and slices are copied. A record
// of the wrong type for its collection fails with a *RecordTypeError.
func NewSnapshot(fetchedAt time.Time, collections map[Collection][]Record) (*Snapshot, error) {
	s := &Snapshot{
		fetchedAt:   fetchedAt.UTC(),
		collections: make(map[Collection][]Record, len(collections)),
	}
	for c, recs := range collections {
		if !c.Valid() {
			continue
		}
		if err := CheckRecords(c, recs); err != nil {
			return nil, err
		}
		cp := make([]Record, len(recs))
		copy(cp, recs)
		s.collections[c] = cp
	}
	return s, nil
}

// FetchedAt returns the time the snapshot was assembled.
func (s *Snapshot) FetchedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.fetchedAt
}

// Records returns a copy of the records for c and whether c is present.
func (s *Snapshot) Records(c Collection) ([]Record, bool) {
	if s == nil {
		return nil, false
	}
	recs, ok := s.collections[c]
	if !ok {
		return nil, false
	}
	return slices.Clone(recs), true
}

// Has reports whether c was fetched successfully in this snapshot.
func (s *Snapshot) Has(c Collection) bool {
	if s == nil {
		return false
	}
	_, ok := s.collections[c]
	return ok
}

// Count returns the number of records for c, or 0 when absent.
func (s *Snapshot) Count(c Collection) int {
	if s == nil {
		return 0
	}
	return len(s.collections[c])
}

// TotalRecords returns the number of records across all present collections.
func (s *Snapshot) TotalRecords() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, recs := range s.collections {
		n += len(recs)
	}
	return n
}

// Present returns the collections held by the snapshot in display order.
func (s *Snapshot) Present() []Collection {
	if s == nil {
		return nil
	}
	var out []Collection
	for _, c := range collectionOrder {
		if _, ok := s.collections[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

// IsEmpty reports whether every collection is absent. A snapshot whose
// collections are present but hold zero records is not empty.
func (s *Snapshot) IsEmpty() bool {
	return s == nil || len(s.collections) == 0
}

// Equal reports whether both snapshots carry the same fetch time and the same
// records, field for field.
func (s *Snapshot) Equal(other *Snapshot) bool {
	if s == nil || other == nil {
		return s == other
	}
	if !s.fetchedAt.Equal(other.fetchedAt) {
		return false
	}
	a, errA := MarshalCache(s)
	b, errB := MarshalCache(other)
	return errA == nil && errB == nil && bytes.Equal(a, b)
}

const fetchedAtKey = "fetched_at"

// object returns the snapshot as a JSON object keyed by collection name, with
// null for absent collections.
func (s *Snapshot) object() map[string]any {
	obj := make(map[string]any, len(collectionOrder)+1)
	for _, c := range collectionOrder {
		if recs, ok := s.collections[c]; ok {
			obj[string(c)] = recs
		} else {
			obj[string(c)] = nil
		}
	}
	return obj
}

// MarshalPayload renders the snapshot in the form delivered to rendering
// surfaces: a pretty-printed JSON object keyed by collection name, each value
// null or an array of records. Keys are sorted, so equal snapshots always
// produce identical text.
func MarshalPayload(s *Snapshot) (string, error) {
	if s == nil {
		return "", fmt.Errorf("marshal payload: nil snapshot")
	}
	b, err := json.MarshalIndent(s.object(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(b), nil
}

// MarshalCollection renders the records of one collection as a
// pretty-printed JSON array, or "null" when c is absent from s.
func MarshalCollection(s *Snapshot, c Collection) (string, error) {
	if s == nil {
		return "", fmt.Errorf("marshal %s: nil snapshot", c)
	}
	if !c.Valid() {
		return "", fmt.Errorf("marshal %s: unknown collection", c)
	}
	var v any
	if recs, ok := s.collections[c]; ok {
		v = recs
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", c, err)
	}
	return string(b), nil
}

// MarshalCache renders the snapshot in its persisted form: the payload
// schema plus a fetched_at timestamp.
func MarshalCache(s *Snapshot) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("marshal cache: nil snapshot")
	}
	obj := s.object()
	obj[fetchedAtKey] = s.fetchedAt.Format(time.RFC3339Nano)
	b, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("marshal cache: %w", err)
	}
	return b, nil
}

// UnmarshalCache decodes a snapshot written by MarshalCache.
func UnmarshalCache(data []byte) (*Snapshot, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("unmarshal cache: %w", err)
	}
	if obj == nil {
		return nil, fmt.Errorf("unmarshal cache: not an object")
	}

	rawAt := fields(obj).raw(fetchedAtKey)
	if rawAt == nil {
		return nil, fmt.Errorf("unmarshal cache: missing %s", fetchedAtKey)
	}
	atStr, err := parseString(rawAt)
	if err != nil {
		return nil, fmt.Errorf("unmarshal cache: %s: %w", fetchedAtKey, err)
	}
	fetchedAt, err := ParseTime(atStr)
	if err != nil {
		return nil, fmt.Errorf("unmarshal cache: %s: %w", fetchedAtKey, err)
	}

	collections := make(map[Collection][]Record)
	for _, c := range collectionOrder {
		raw := fields(obj).raw(string(c))
		if raw == nil {
			continue
		}
		res, err := DecodeRecords(c, raw, fetchedAt)
		if err != nil {
			return nil, fmt.Errorf("unmarshal cache: %w", err)
		}
		collections[c] = res.Records
	}
	s, err := NewSnapshot(fetchedAt, collections)
	if err != nil {
		return nil, fmt.Errorf("unmarshal cache: %w", err)
	}
	return s, nil
}
