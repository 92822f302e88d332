// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fieldmap provides the ordered name→text mapping carried by
// every request and reply document, together with the typed coercion
// helpers consumers use to read flags, numbers, and URLs out of it.
//
// Values are always stored as text. Coercion happens at the point of
// use, so a field that fails to parse affects only the consumer that
// asked for it; the map itself never rejects a value.
package fieldmap

import (
	"iter"
	"strings"
)

// Map is an ordered mapping from field name to text value. The zero
// value is an empty map ready to use. Set on an existing key replaces
// the value and keeps the key's first-seen position.
//
// Map is not safe for concurrent mutation. Each request and reply gets
// its own Map.
type Map struct {
	keys   []string
	values map[string]string
}

// New returns an empty Map.
func New() *Map {
	return &Map{}
}

// FromPairs builds a Map from alternating name, value arguments.
// Panics on an odd argument count; it exists for literals in callers
// and tests, where that is a programming error.
func FromPairs(pairs ...string) *Map {
	if len(pairs)%2 != 0 {
		panic("fieldmap.FromPairs: odd number of arguments")
	}
	m := New()
	for i := 0; i < len(pairs); i += 2 {
		m.Set(pairs[i], pairs[i+1])
	}
	return m
}

// Set stores value under name.
func (m *Map) Set(name, value string) {
	if m.values == nil {
		m.values = make(map[string]string)
	}
	if _, exists := m.values[name]; !exists {
		m.keys = append(m.keys, name)
	}
	m.values[name] = value
}

// Get returns the value stored under name and whether it was present.
func (m *Map) Get(name string) (string, bool) {
	if m == nil {
		return "", false
	}
	value, ok := m.values[name]
	return value, ok
}

// Has reports whether name is present.
func (m *Map) Has(name string) bool {
	_, ok := m.Get(name)
	return ok
}

// Delete removes name. Deleting an absent key is a no-op.
func (m *Map) Delete(name string) {
	if m == nil {
		return
	}
	if _, ok := m.values[name]; !ok {
		return
	}
	delete(m.values, name)
	for i, key := range m.keys {
		if key == name {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of fields.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the field names in insertion order. The returned slice
// is a copy.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	keys := make([]string, len(m.keys))
	copy(keys, m.keys)
	return keys
}

// All iterates over fields in insertion order.
func (m *Map) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		if m == nil {
			return
		}
		for _, key := range m.keys {
			if !yield(key, m.values[key]) {
				return
			}
		}
	}
}

// Merge copies every field of other into m, in other's order.
func (m *Map) Merge(other *Map) {
	for name, value := range other.All() {
		m.Set(name, value)
	}
}

// Clone returns an independent copy of m.
func (m *Map) Clone() *Map {
	clone := New()
	clone.Merge(m)
	return clone
}

// Equal reports whether m and other hold the same fields in the same
// order.
func (m *Map) Equal(other *Map) bool {
	if m.Len() != other.Len() {
		return false
	}
	otherKeys := other.Keys()
	for i, key := range m.Keys() {
		if otherKeys[i] != key {
			return false
		}
		mine, _ := m.Get(key)
		theirs, _ := other.Get(key)
		if mine != theirs {
			return false
		}
	}
	return true
}

// String renders the map as space-separated name=value pairs, for log
// output.
func (m *Map) String() string {
	var builder strings.Builder
	for name, value := range m.All() {
		if builder.Len() > 0 {
			builder.WriteByte(' ')
		}
		builder.WriteString(name)
		builder.WriteByte('=')
		builder.WriteString(value)
	}
	return builder.String()
}
