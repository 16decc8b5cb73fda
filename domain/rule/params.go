// Package rule provides the detection rule domain model: installed rules,
// prebuilt rule assets and the per-type schema of upgradable fields.
package rule

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Params holds every field of a rule object keyed by its snake_case name.
//
// Values are kept in canonical JSON form: numbers are float64, arrays are
// []any and objects are map[string]any. Use NewParams to build a Params from
// arbitrary decoded input so that values coming from YAML, JSON or a database
// driver compare equal when they carry the same data.
type Params map[string]any

// NewParams normalizes the given map into canonical form.
func NewParams(m map[string]any) (Params, error) {
	if m == nil {
		return Params{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return DecodeParams(data)
}

// DecodeParams decodes a JSON object into canonical Params.
func DecodeParams(data []byte) (Params, error) {
	var p Params
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if p == nil {
		p = Params{}
	}
	return p, nil
}

// MustParams is NewParams for literals in tests and fixtures.
func MustParams(m map[string]any) Params {
	p, err := NewParams(m)
	if err != nil {
		panic(err)
	}
	return p
}

// Clone returns a deep copy.
func (p Params) Clone() Params {
	data, err := json.Marshal(p)
	if err != nil {
		// Params in canonical form always marshal.
		panic(err)
	}
	out, err := DecodeParams(data)
	if err != nil {
		panic(err)
	}
	return out
}

// With returns a copy of p with key set to value. The value is normalized.
func (p Params) With(key string, value any) Params {
	out := p.Clone()
	out[key] = Canonical(value)
	return out
}

// Without returns a copy of p with the given keys removed.
func (p Params) Without(keys ...string) Params {
	out := p.Clone()
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// Get returns the raw value stored under key. Absent keys yield nil.
func (p Params) Get(key string) any {
	if p == nil {
		return nil
	}
	return p[key]
}

// Has reports whether key is present.
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// String returns the string value of key, or "" when absent or not a string.
func (p Params) String(key string) string {
	s, _ := p.Get(key).(string)
	return s
}

// Int returns the integer value of key, or 0 when absent or not a number.
func (p Params) Int(key string) int {
	switch v := p.Get(key).(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}

// Strings returns the value of key as a string slice, skipping non-strings.
func (p Params) Strings(key string) []string {
	items, _ := p.Get(key).([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Keys returns the field names in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Canonical converts a single field value to canonical JSON form.
func Canonical(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}
