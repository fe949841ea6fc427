package domain

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
)

// Record is a schemaless document stored in a collection
type Record map[string]any

// ID returns the record identifier or an empty string
func (r Record) ID() string {
	return r.String("id")
}

// String returns the value under key rendered as a string.
// JSON numbers render without exponents.
func (r Record) String(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case json.Number:
		return x.String()
	}
	return fmt.Sprint(v)
}

// Clone returns a shallow copy of the record
func (r Record) Clone() Record {
	if r == nil {
		return Record{}
	}
	return maps.Clone(r)
}

// EncodeRecord converts a typed value into a Record through its JSON form
func EncodeRecord(v any) (Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return rec, nil
}

// DecodeRecord converts a Record into a typed value through its JSON form
func DecodeRecord[T any](rec Record) (T, error) {
	var out T
	data, err := json.Marshal(rec)
	if err != nil {
		return out, fmt.Errorf("failed to marshal record: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("failed to decode record: %w", err)
	}
	return out, nil
}
