// Package flatten converts arbitrarily nested sales-event payloads into
// single-level records suitable for tabular storage.
//
// Keys of nested values are joined with underscores (`parent_child`), list
// elements that are themselves mappings are expanded per zero-based index
// (`parent_0_child`), and lists of scalars collapse to a single ", " joined
// string. Flattening is lossy on purpose: records are never converted back to
// their nested form.
package flatten

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Record is a single-level mapping from field name to scalar value which
// preserves key insertion order.
type Record struct {
	keys   []string
	values map[string]any
}

// NewRecord returns an empty record.
func NewRecord() Record {
	return Record{values: make(map[string]any)}
}

// Set stores a value under key. Setting an existing key overwrites the value
// but keeps the key's original position.
func (r *Record) Set(key string, value any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Keys returns the field names in insertion order.
func (r Record) Keys() []string {
	return r.keys
}

// Value returns the value stored under key, or nil when absent.
func (r Record) Value(key string) any {
	return r.values[key]
}

// Has reports whether the record contains key.
func (r Record) Has(key string) bool {
	_, ok := r.values[key]
	return ok
}

// Len returns the number of fields in the record.
func (r Record) Len() int {
	return len(r.keys)
}

// Map returns an unordered copy of the record's fields.
func (r Record) Map() map[string]any {
	m := make(map[string]any, len(r.keys))
	for k, v := range r.values {
		m[k] = v
	}
	return m
}

// kind is the classification of a payload value. Every value maps to exactly
// one kind; there is no fallthrough.
type kind int

const (
	kindScalar kind = iota
	kindMapping
	kindMappingSeq
	kindScalarSeq
)

func classify(value any) kind {
	switch v := value.(type) {
	case map[string]any, *object:
		return kindMapping
	case []any:
		if len(v) == 0 {
			return kindScalarSeq
		}
		if k := classify(v[0]); k == kindMapping {
			return kindMappingSeq
		}
		return kindScalarSeq
	default:
		return kindScalar
	}
}

// Flatten flattens a nested mapping into a Record. Keys at each nesting level
// are visited in sorted order so the result is deterministic.
func Flatten(data map[string]any) Record {
	rec := NewRecord()
	flattenInto(&rec, "", sortedKeys(data), func(k string) any { return data[k] })
	return rec
}

// FromJSON decodes a JSON object and flattens it, preserving the document's
// key order.
func FromJSON(r io.Reader) (Record, error) {
	dec := json.NewDecoder(r)
	v, err := decodeValue(dec)
	if err != nil {
		return Record{}, fmt.Errorf("invalid JSON payload: %v", err)
	}
	obj, ok := v.(*object)
	if !ok {
		return Record{}, fmt.Errorf("payload must be a JSON object")
	}

	rec := NewRecord()
	flattenInto(&rec, "", obj.keys, obj.value)
	return rec, nil
}

func flattenInto(rec *Record, prefix string, keys []string, value func(string) any) {
	for _, key := range keys {
		name := key
		if prefix != "" {
			name = prefix + "_" + key
		}
		flattenValue(rec, name, value(key))
	}
}

func flattenValue(rec *Record, name string, v any) {
	switch classify(v) {
	case kindMapping:
		ks, get := mappingAccessors(v)
		flattenInto(rec, name, ks, get)
	case kindMappingSeq:
		// Elements are classified individually: a list may mix mappings
		// with scalars or nested lists.
		for i, item := range v.([]any) {
			flattenValue(rec, fmt.Sprintf("%s_%d", name, i), item)
		}
	case kindScalarSeq:
		items := v.([]any)
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = fmt.Sprint(item)
		}
		rec.Set(name, strings.Join(parts, ", "))
	case kindScalar:
		rec.Set(name, v)
	}
}

func mappingAccessors(v any) ([]string, func(string) any) {
	switch m := v.(type) {
	case *object:
		return m.keys, m.value
	case map[string]any:
		return sortedKeys(m), func(k string) any { return m[k] }
	default:
		// classify guarantees a mapping.
		panic(fmt.Sprintf("flatten: not a mapping: %T", v))
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// object is a JSON object decoded with its key order intact.
type object struct {
	keys   []string
	values map[string]any
}

func (o *object) value(key string) any {
	return o.values[key]
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeObject(dec)
		case '[':
			return decodeArray(dec)
		default:
			return nil, fmt.Errorf("unexpected token %q", t)
		}
	default:
		// string, float64, bool or nil.
		return tok, nil
	}
}

func decodeObject(dec *json.Decoder) (*object, error) {
	obj := &object{values: make(map[string]any)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected object key %v", tok)
		}

		v, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		if _, exists := obj.values[key]; !exists {
			obj.keys = append(obj.keys, key)
		}
		obj.values[key] = v
	}

	// Consume the closing brace.
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return obj, nil
}

func decodeArray(dec *json.Decoder) ([]any, error) {
	var items []any
	for dec.More() {
		v, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return items, nil
}
