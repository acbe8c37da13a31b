package urlstate

import (
	"maps"
	"net/url"
	"slices"
	"sync"
)

// Params maps recognized, unprefixed parameter names to their raw values.
// Absent parameters are not in the map.
type Params map[string]string

// Get returns the value of name and whether it is present.
func (p Params) Get(name string) (string, bool) {
	v, ok := p[name]
	return v, ok
}

// Binder exposes the subset of a Store recognized by one table. With a
// prefix, a recognized name "offset" lives on the URL as "<prefix>_offset",
// so several tables can share one store.
type Binder struct {
	store  *Store
	names  []string
	prefix string
}

// NewBinder returns a binder over store restricted to names.
func NewBinder(store *Store, names []string, prefix string) *Binder {
	return &Binder{
		store:  store,
		names:  slices.Clone(names),
		prefix: prefix,
	}
}

// Names returns the recognized parameter names.
func (b *Binder) Names() []string {
	return slices.Clone(b.names)
}

// Prefix returns the binder's URL prefix.
func (b *Binder) Prefix() string {
	return b.prefix
}

// URLName returns the URL parameter that carries name.
func (b *Binder) URLName(name string) string {
	if b.prefix == "" {
		return name
	}
	return b.prefix + "_" + name
}

// Recognizes reports whether name is one of the binder's parameters.
func (b *Binder) Recognizes(name string) bool {
	return slices.Contains(b.names, name)
}

// Read returns the current recognized parameters. Absent parameters are
// omitted, never defaulted.
func (b *Binder) Read() Params {
	return b.read(b.store.Values())
}

func (b *Binder) read(values url.Values) Params {
	out := make(Params, len(b.names))
	for _, name := range b.names {
		if v := values.Get(b.URLName(name)); v != "" {
			out[name] = v
		}
	}
	return out
}

// Set merges update into the URL. An empty value removes the parameter.
// Names the binder does not recognize are ignored, and parameters outside
// the binder are left untouched.
func (b *Binder) Set(update Params) {
	b.store.Update(func(v url.Values) {
		for name, value := range update {
			if !b.Recognizes(name) {
				continue
			}
			if value == "" {
				v.Del(b.URLName(name))
				continue
			}
			v.Set(b.URLName(name), value)
		}
	})
}

// Subscribe calls fn with the binder's parameters whenever a store write
// changed at least one of them.
func (b *Binder) Subscribe(fn func(Params)) (unsubscribe func()) {
	var mu sync.Mutex
	last := b.Read()
	return b.store.Subscribe(func(values url.Values) {
		next := b.read(values)
		mu.Lock()
		changed := !maps.Equal(next, last)
		if changed {
			last = next
		}
		mu.Unlock()
		if changed {
			fn(maps.Clone(next))
		}
	})
}
