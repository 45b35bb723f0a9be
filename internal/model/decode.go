package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMissingField is wrapped by FieldError when a mandatory field is absent or null.
var ErrMissingField = errors.New("missing mandatory field")

// FieldError reports a mandatory field that could not be decoded.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// RecordError reports one record that was dropped during decoding.
type RecordError struct {
	Index int
	Err   error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// DecodeResult holds the records of one collection that decoded successfully
// plus the records that were skipped.
type DecodeResult struct {
	Records []Record
	Skipped []*RecordError
}

// DecodeRecords decodes a JSON array of records for collection c. Each
// element decodes independently: a record whose mandatory fields are missing
// is skipped and reported in Skipped, and optional fields that fail to decode
// are left empty. Only a body that is not a JSON array returns an error.
//
// fallback is used as last_updated for records that do not carry one.
func DecodeRecords(c Collection, data []byte, fallback time.Time) (DecodeResult, error) {
	decode, ok := decoders[c]
	if !ok {
		return DecodeResult{}, fmt.Errorf("unknown collection %q", c)
	}
	if isNull(data) {
		return DecodeResult{}, fmt.Errorf("%s: expected JSON array, got null", c)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return DecodeResult{}, fmt.Errorf("%s: expected JSON array: %w", c, err)
	}

	res := DecodeResult{Records: make([]Record, 0, len(items))}
	for i, item := range items {
		var f fields
		if err := json.Unmarshal(item, &f); err != nil || f == nil {
			if err == nil {
				err = errors.New("record is null")
			}
			res.Skipped = append(res.Skipped, &RecordError{Index: i, Err: err})
			continue
		}
		rec, err := decode(f, fallback)
		if err != nil {
			res.Skipped = append(res.Skipped, &RecordError{Index: i, Err: err})
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

// fields is one JSON object keyed by wire name.
type fields map[string]json.RawMessage

// raw returns the value for key, or nil when it is absent or null.
func (f fields) raw(key string) json.RawMessage {
	v, ok := f[key]
	if !ok || isNull(v) {
		return nil
	}
	return v
}

func isNull(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) == 0 || bytes.Equal(b, []byte("null"))
}

// fieldReader decodes mandatory fields, keeping the first error so decoders
// can read every field in sequence and check once at the end.
type fieldReader struct {
	f   fields
	err error
}

func (r *fieldReader) fail(key string, err error) {
	if r.err == nil {
		r.err = &FieldError{Field: key, Err: err}
	}
}

func (r *fieldReader) string(key string) string {
	raw := r.f.raw(key)
	if raw == nil {
		r.fail(key, ErrMissingField)
		return ""
	}
	v, err := parseString(raw)
	if err != nil {
		r.fail(key, err)
	}
	return v
}

func (r *fieldReader) float(key string) float64 {
	raw := r.f.raw(key)
	if raw == nil {
		r.fail(key, ErrMissingField)
		return 0
	}
	v, err := parseFloat(raw)
	if err != nil {
		r.fail(key, err)
	}
	return v
}

func (r *fieldReader) int(key string) int {
	raw := r.f.raw(key)
	if raw == nil {
		r.fail(key, ErrMissingField)
		return 0
	}
	v, err := parseFloat(raw)
	if err != nil {
		r.fail(key, err)
		return 0
	}
	if v != float64(int(v)) {
		r.fail(key, fmt.Errorf("%v is not an integer", v))
		return 0
	}
	return int(v)
}

func (f fields) optString(key string) *string {
	raw := f.raw(key)
	if raw == nil {
		return nil
	}
	v, err := parseString(raw)
	if err != nil {
		return nil
	}
	return &v
}

func (f fields) optFloat(key string) *float64 {
	raw := f.raw(key)
	if raw == nil {
		return nil
	}
	v, err := parseFloat(raw)
	if err != nil {
		return nil
	}
	return &v
}

func (f fields) optBool(key string) *bool {
	raw := f.raw(key)
	if raw == nil {
		return nil
	}
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return &v
}

// timestamp parses key as a date-time, returning fallback when it is absent
// or unparseable.
func (f fields) timestamp(key string, fallback time.Time) time.Time {
	raw := f.raw(key)
	if raw == nil {
		return fallback.UTC()
	}
	s, err := parseString(raw)
	if err != nil {
		return fallback.UTC()
	}
	t, err := ParseTime(s)
	if err != nil {
		return fallback.UTC()
	}
	return t
}

func parseString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("expected string: %w", err)
	}
	return s, nil
}

// parseFloat accepts a JSON number or a string holding one; numeric columns
// are sometimes serialized as strings by the backend.
func parseFloat(raw json.RawMessage) (float64, error) {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("expected number, got %s", truncateRaw(raw))
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("expected number, got %q", s)
	}
	return n, nil
}

func truncateRaw(raw json.RawMessage) string {
	const n = 40
	if len(raw) <= n {
		return string(raw)
	}
	return string(raw[:n]) + "..."
}

// timeLayouts are tried in order by ParseTime. Layouts without a zone are
// interpreted as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTime parses a backend date-time in RFC 3339 form or one of the
// zone-less forms Postgres emits. The result is always in UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date-time %q", s)
}
