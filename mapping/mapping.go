// Package mapping implements the insertion-ordered key → string map that
// every transkit component exchanges.
//
// Translation tables carry presentation order (the reference language's key
// order is reproduced on export), so a plain Go map is not enough. Mapping
// keeps keys in first-insertion order; setting an existing key replaces its
// value in place without moving it.
//
// JSON encoding writes keys in that order, and decoding preserves the order
// found in the document.
package mapping

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Mapping is an ordered set of key/value pairs. The zero value is ready to use.
type Mapping struct {
	keys   []string
	values map[string]string
}

// New returns an empty mapping.
func New() *Mapping {
	return &Mapping{values: make(map[string]string)}
}

// FromPairs builds a mapping from alternating key, value arguments.
// It panics on an odd number of arguments; intended for tests and literals.
func FromPairs(kv ...string) *Mapping {
	if len(kv)%2 != 0 {
		panic("mapping.FromPairs: odd number of arguments")
	}
	m := New()
	for i := 0; i < len(kv); i += 2 {
		m.Set(kv[i], kv[i+1])
	}
	return m
}

// FromMap builds a mapping from a Go map. Keys are sorted so the result is
// deterministic.
func FromMap(src map[string]string) *Mapping {
	keys := make([]string, 0, len(src))
	for k := range src {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	m := New()
	for _, k := range keys {
		m.Set(k, src[k])
	}
	return m
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Len returns the number of keys.
func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in insertion order. The slice is a copy.
func (m *Mapping) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Get returns the value for key and whether it is present.
func (m *Mapping) Get(key string) (string, bool) {
	if m == nil || m.values == nil {
		return "", false
	}
	v, ok := m.values[key]
	return v, ok
}

// Value returns the value for key or "" when absent.
func (m *Mapping) Value(key string) string {
	v, _ := m.Get(key)
	return v
}

// Has reports whether key is present (even with an empty value).
func (m *Mapping) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Set stores value under key. New keys are appended; existing keys keep
// their position.
func (m *Mapping) Set(key, value string) {
	if m.values == nil {
		m.values = make(map[string]string)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Delete removes key. It is a no-op for absent keys.
func (m *Mapping) Delete(key string) {
	if m == nil || m.values == nil {
		return
	}
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Range calls fn for each pair in order until fn returns false.
func (m *Mapping) Range(fn func(key, value string) bool) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		if !fn(k, m.values[k]) {
			return
		}
	}
}

// Clone returns an independent copy. Cloning nil yields an empty mapping.
func (m *Mapping) Clone() *Mapping {
	out := New()
	m.Range(func(k, v string) bool {
		out.Set(k, v)
		return true
	})
	return out
}

// Assign copies every pair of src into m (src wins on collision).
func (m *Mapping) Assign(src *Mapping) {
	src.Range(func(k, v string) bool {
		m.Set(k, v)
		return true
	})
}

// Map returns the pairs as an unordered Go map.
func (m *Mapping) Map() map[string]string {
	out := make(map[string]string, m.Len())
	m.Range(func(k, v string) bool {
		out[k] = v
		return true
	})
	return out
}

// Equal reports whether both mappings hold the same pairs, ignoring order.
func (m *Mapping) Equal(other *Mapping) bool {
	if m.Len() != other.Len() {
		return false
	}
	equal := true
	m.Range(func(k, v string) bool {
		ov, ok := other.Get(k)
		if !ok || ov != v {
			equal = false
			return false
		}
		return true
	})
	return equal
}

// IsBlank reports whether s is empty or whitespace only. Blank values count
// as "untranslated" throughout transkit.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// ---------------------------------------------------------------------------
// JSON
// ---------------------------------------------------------------------------

// MarshalJSON writes the mapping as a JSON object in insertion order.
func (m *Mapping) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	i := 0
	var err error
	m.Range(func(k, v string) bool {
		if i > 0 {
			buf.WriteByte(',')
		}
		i++
		var kb, vb []byte
		if kb, err = marshalString(k); err != nil {
			return false
		}
		if vb, err = marshalString(v); err != nil {
			return false
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
		return true
	})
	if err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshalString encodes s without HTML escaping so exported files stay readable.
func marshalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalJSON reads a JSON object of string values, keeping document order.
// Non-string values are rejected.
func (m *Mapping) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decoding mapping: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("decoding mapping: expected '{', got %v", tok)
	}

	m.keys = nil
	m.values = make(map[string]string)

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decoding mapping key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("decoding mapping: expected string key, got %T", keyTok)
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("decoding mapping value for %q: %w", key, err)
		}
		m.Set(key, value)
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("decoding mapping: %w", err)
	}
	return nil
}
