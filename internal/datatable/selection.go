package datatable

import (
	"maps"
	"slices"
)

// Selection is a set of selected row ids. Only true entries count.
type Selection map[string]bool

// NewSelection returns a selection holding ids.
func NewSelection(ids ...string) Selection {
	s := make(Selection, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}

// Clone returns a normalized copy of s without false entries.
func (s Selection) Clone() Selection {
	out := make(Selection, len(s))
	for id, on := range s {
		if on {
			out[id] = true
		}
	}
	return out
}

// Has reports whether id is selected.
func (s Selection) Has(id string) bool {
	return s[id]
}

// IDs returns the selected ids in sorted order.
func (s Selection) IDs() []string {
	ids := make([]string, 0, len(s))
	for id, on := range s {
		if on {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// SelectionUpdater computes the next selection from the previous one. It
// must not modify prev.
type SelectionUpdater func(prev Selection) Selection

// Replace returns an updater that ignores the previous selection.
func Replace(next Selection) SelectionUpdater {
	return func(Selection) Selection {
		return next
	}
}

// SelectionDelta lists the ids a selection change added and removed, both
// sorted.
type SelectionDelta struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

// Empty reports whether the change did nothing.
func (d SelectionDelta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// Diff returns what changed from prev to next.
func Diff(prev, next Selection) SelectionDelta {
	var d SelectionDelta
	for _, id := range next.IDs() {
		if !prev.Has(id) {
			d.Added = append(d.Added, id)
		}
	}
	for _, id := range prev.IDs() {
		if !next.Has(id) {
			d.Removed = append(d.Removed, id)
		}
	}
	return d
}

// SelectionOptions configures row selection.
type SelectionOptions struct {
	Enabled bool
	Initial Selection

	// OnChange is called after every change with the new selection and the
	// delta from the previous one. It is not called for no-op updates or
	// for ResetSelection.
	OnChange func(next Selection, delta SelectionDelta)
}

// Selection returns a copy of the current selection.
func (t *Table[T]) Selection() Selection {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.selection.Clone()
}

// SetRowSelection applies update and returns the resulting delta. It is a
// no-op when selection is disabled.
//
// update runs without the table lock held, so it may read the table. When
// another change lands while update runs, update is called again with the
// newer selection.
func (t *Table[T]) SetRowSelection(update SelectionUpdater) SelectionDelta {
	if !t.opts.Selection.Enabled {
		return SelectionDelta{}
	}

	var next Selection
	var delta SelectionDelta
	for {
		t.mu.Lock()
		prev, version := t.selection, t.selVersion
		t.mu.Unlock()

		next = update(prev.Clone()).Clone()

		t.mu.Lock()
		if t.selVersion != version {
			t.mu.Unlock()
			continue
		}
		delta = Diff(prev, next)
		t.selection = next
		t.selVersion++
		t.mu.Unlock()
		break
	}

	if !delta.Empty() && t.opts.Selection.OnChange != nil {
		t.opts.Selection.OnChange(next.Clone(), delta)
	}
	return delta
}

// ResetSelection overrides the selection without notifying OnChange. It is
// how a parent that owns the selection pushes an external change.
func (t *Table[T]) ResetSelection(s Selection) {
	t.mu.Lock()
	t.selection = s.Clone()
	t.selVersion++
	t.mu.Unlock()
}

// ToggleRow selects or deselects one row.
func (t *Table[T]) ToggleRow(id string, selected bool) SelectionDelta {
	return t.SetRowSelection(func(prev Selection) Selection {
		next := maps.Clone(prev)
		if selected {
			next[id] = true
		} else {
			delete(next, id)
		}
		return next
	})
}

// ToggleAllPageRows selects or deselects every row of the current page,
// leaving rows of other pages untouched.
func (t *Table[T]) ToggleAllPageRows(selected bool) SelectionDelta {
	ids := t.RowIDs()
	return t.SetRowSelection(func(prev Selection) Selection {
		next := maps.Clone(prev)
		for _, id := range ids {
			if selected {
				next[id] = true
			} else {
				delete(next, id)
			}
		}
		return next
	})
}

// IsAllPageRowsSelected reports whether the page has rows and all of them
// are selected.
func (t *Table[T]) IsAllPageRowsSelected() bool {
	ids := t.RowIDs()
	if len(ids) == 0 {
		return false
	}
	sel := t.Selection()
	for _, id := range ids {
		if !sel.Has(id) {
			return false
		}
	}
	return true
}

// IsSomePageRowsSelected reports whether some, but not all, rows of the
// page are selected.
func (t *Table[T]) IsSomePageRowsSelected() bool {
	sel := t.Selection()
	some := false
	for _, id := range t.RowIDs() {
		if sel.Has(id) {
			some = true
			break
		}
	}
	return some && !t.IsAllPageRowsSelected()
}
