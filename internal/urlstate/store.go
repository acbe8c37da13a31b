// Package urlstate holds the query-string state of a list view and the
// binders that give each table its own slice of it.
package urlstate

import (
	"maps"
	"net/url"
	"slices"
	"sync"
)

// Store is an observable query-string store. Every write goes through Update;
// subscribers run after a write that changed at least one value.
type Store struct {
	mu     sync.RWMutex
	values url.Values
	subs   map[int]func(url.Values)
	nextID int
}

// NewStore returns a store seeded with a copy of initial.
func NewStore(initial url.Values) *Store {
	return &Store{
		values: cloneValues(initial),
		subs:   make(map[int]func(url.Values)),
	}
}

// ParseStore returns a store seeded from a raw query string.
func ParseStore(rawQuery string) (*Store, error) {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, err
	}
	return NewStore(values), nil
}

// Values returns a copy of the current state.
func (s *Store) Values() url.Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneValues(s.values)
}

// Get returns the first value of name and whether it is present.
func (s *Store) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vs, ok := s.values[name]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

// Encode returns the current state as a query string with sorted keys.
func (s *Store) Encode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values.Encode()
}

// Update applies fn to a working copy of the state. When the result differs
// from the current state it is stored and subscribers are notified with the
// new state.
func (s *Store) Update(fn func(v url.Values)) {
	s.mu.Lock()
	next := cloneValues(s.values)
	fn(next)
	if equalValues(next, s.values) {
		s.mu.Unlock()
		return
	}
	s.values = next
	subs := make([]func(url.Values), 0, len(s.subs))
	for _, id := range slices.Sorted(maps.Keys(s.subs)) {
		subs = append(subs, s.subs[id])
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(cloneValues(next))
	}
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (s *Store) Subscribe(fn func(url.Values)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = slices.Clone(vs)
	}
	return out
}

func equalValues(a, b url.Values) bool {
	return maps.EqualFunc(a, b, func(x, y []string) bool { return slices.Equal(x, y) })
}
