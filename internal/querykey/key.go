// Package querykey builds the hierarchical cache keys that identify remote
// reads. Keys are ordered token slices: resource, scope ("list" or
// "detail"), an optional id and an optional normalized filter token.
// Invalidation works on key prefixes, so a broader key clears every narrower
// key below it.
package querykey

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
)

const (
	scopeList   = "list"
	scopeDetail = "detail"
)

// Key identifies one cached read. The zero value matches nothing.
type Key []string

// Filters are the request parameters folded into a key. Entries whose value
// is nil (or a nil pointer, slice or map) are treated as absent.
type Filters map[string]any

// String returns the canonical form of the key, used as the cache store key.
func (k Key) String() string {
	b, _ := json.Marshal([]string(k))
	return string(b)
}

// Equal reports whether both keys have the same tokens.
func (k Key) Equal(other Key) bool {
	return slices.Equal(k, other)
}

// HasPrefix reports whether every token of prefix leads k. Matching is per
// token, so "variant_1" never matches "variant_10".
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) == 0 || len(prefix) > len(k) {
		return false
	}
	return slices.Equal(k[:len(prefix)], prefix)
}

// Resource returns the leading token.
func (k Key) Resource() string {
	if len(k) == 0 {
		return ""
	}
	return k[0]
}

// Parse is the inverse of String.
func Parse(s string) (Key, error) {
	var tokens []string
	if err := json.Unmarshal([]byte(s), &tokens); err != nil {
		return nil, fmt.Errorf("parse query key %q: %w", s, err)
	}
	return Key(tokens), nil
}

// Factory produces keys for one resource.
type Factory struct {
	resource string
}

// New returns the key factory for resource.
func New(resource string) Factory {
	return Factory{resource: resource}
}

// All is the root key of the resource; it prefixes every other key.
func (f Factory) All() Key {
	return Key{f.resource}
}

// Lists prefixes every list key of the resource.
func (f Factory) Lists() Key {
	return Key{f.resource, scopeList}
}

// List identifies a list read with the given filters.
func (f Factory) List(filters Filters) Key {
	return withFilters(f.Lists(), filters)
}

// Details prefixes every detail key of the resource.
func (f Factory) Details() Key {
	return Key{f.resource, scopeDetail}
}

// Detail identifies a single-entity read. Detail(id, nil) prefixes every
// filtered variant of the same id.
func (f Factory) Detail(id string, filters Filters) Key {
	return withFilters(append(f.Details(), id), filters)
}

func withFilters(base Key, filters Filters) Key {
	token := Normalize(filters)
	if token == "" {
		return base
	}
	return append(base, token)
}

// Normalize encodes filters into a single token independent of insertion
// order. It returns "" when no defined filter remains.
func Normalize(filters Filters) string {
	defined := make(map[string]any, len(filters))
	for name, v := range filters {
		if isUndefined(v) {
			continue
		}
		defined[name] = v
	}
	if len(defined) == 0 {
		return ""
	}
	// encoding/json writes map keys in sorted order, nested maps included.
	b, err := json.Marshal(defined)
	if err != nil {
		return fmt.Sprintf("%v", defined)
	}
	return string(b)
}

func isUndefined(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
