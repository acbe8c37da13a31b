package datatable

import "slices"

// WorkingSet is a list of chosen rows kept apart from the persisted
// selection until the user saves. Rows chosen on other pages stay in the
// set while the table shows a different page.
type WorkingSet[T any] struct {
	items []T
	id    func(T) string
}

// NewWorkingSet creates a working set seeded with initial.
func NewWorkingSet[T any](initial []T, id func(T) string) *WorkingSet[T] {
	return &WorkingSet[T]{items: slices.Clone(initial), id: id}
}

// Apply removes the rows in delta.Removed and appends the rows of
// candidates whose id is in delta.Added. Added ids missing from candidates
// are skipped; ids already in the set are not duplicated.
func (w *WorkingSet[T]) Apply(delta SelectionDelta, candidates []T) {
	if len(delta.Removed) > 0 {
		w.items = slices.DeleteFunc(w.items, func(item T) bool {
			return slices.Contains(delta.Removed, w.id(item))
		})
	}
	for _, c := range candidates {
		id := w.id(c)
		if !slices.Contains(delta.Added, id) || w.contains(id) {
			continue
		}
		w.items = append(w.items, c)
	}
}

func (w *WorkingSet[T]) contains(id string) bool {
	return slices.ContainsFunc(w.items, func(item T) bool {
		return w.id(item) == id
	})
}

// Items returns the rows in the set.
func (w *WorkingSet[T]) Items() []T {
	return append([]T{}, w.items...)
}

// IDs returns the ids of the rows in the set, in set order.
func (w *WorkingSet[T]) IDs() []string {
	ids := make([]string, 0, len(w.items))
	for _, item := range w.items {
		ids = append(ids, w.id(item))
	}
	return ids
}

// Selection returns the set as a table selection.
func (w *WorkingSet[T]) Selection() Selection {
	return NewSelection(w.IDs()...)
}
