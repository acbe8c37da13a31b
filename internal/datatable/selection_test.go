package datatable

import (
	"slices"
	"testing"
	"time"
)

func TestDiff(t *testing.T) {
	d := Diff(NewSelection("a", "b"), NewSelection("b", "c", "d"))
	if !slices.Equal(d.Added, []string{"c", "d"}) {
		t.Errorf("Added = %v, want [c d]", d.Added)
	}
	if !slices.Equal(d.Removed, []string{"a"}) {
		t.Errorf("Removed = %v, want [a]", d.Removed)
	}
	if !Diff(NewSelection("a"), Selection{"a": true, "b": false}).Empty() {
		t.Error("false entries must not count as selected")
	}
}

func selectableTable(t *testing.T, initial Selection, onChange func(Selection, SelectionDelta)) *Table[row] {
	t.Helper()
	tbl, _ := newTable(t, "", Options[row]{
		PageSize: 3,
		Rows:     rows("a", "b", "c"),
		Count:    6,
		Selection: SelectionOptions{
			Enabled:  true,
			Initial:  initial,
			OnChange: onChange,
		},
	})
	return tbl
}

func TestTable_SetRowSelection_function_and_replace(t *testing.T) {
	var deltas []SelectionDelta
	tbl := selectableTable(t, NewSelection("x"), func(_ Selection, d SelectionDelta) {
		deltas = append(deltas, d)
	})

	tbl.SetRowSelection(func(prev Selection) Selection {
		prev["a"] = true
		return prev
	})
	tbl.SetRowSelection(Replace(NewSelection("a", "b")))
	tbl.SetRowSelection(Replace(NewSelection("a", "b")))

	if len(deltas) != 2 {
		t.Fatalf("OnChange calls = %d, want 2 (no-op update is silent)", len(deltas))
	}
	if !slices.Equal(deltas[0].Added, []string{"a"}) || len(deltas[0].Removed) != 0 {
		t.Errorf("first delta = %+v", deltas[0])
	}
	if !slices.Equal(deltas[1].Added, []string{"b"}) || !slices.Equal(deltas[1].Removed, []string{"x"}) {
		t.Errorf("second delta = %+v", deltas[1])
	}
	if got := tbl.Selection().IDs(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("Selection() = %v", got)
	}
}

func TestTable_updater_cannot_mutate_state(t *testing.T) {
	tbl := selectableTable(t, NewSelection("a"), nil)
	var leaked Selection
	tbl.SetRowSelection(func(prev Selection) Selection {
		leaked = prev
		return NewSelection("b")
	})
	leaked["z"] = true
	if tbl.Selection().Has("z") {
		t.Error("writes to the updater's argument leaked into table state")
	}
}

func TestTable_updater_may_read_table(t *testing.T) {
	tbl := selectableTable(t, NewSelection("a"), nil)

	done := make(chan SelectionDelta, 1)
	go func() {
		done <- tbl.SetRowSelection(func(prev Selection) Selection {
			next := tbl.Selection()
			next["b"] = prev.Has("a")
			return next
		})
	}()

	select {
	case d := <-done:
		if !slices.Equal(d.Added, []string{"b"}) {
			t.Errorf("Added = %v, want [b]", d.Added)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SetRowSelection deadlocked when the updater read the table")
	}
	if got := tbl.Selection().IDs(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("Selection() = %v, want [a b]", got)
	}
}

func TestTable_updater_retries_on_concurrent_change(t *testing.T) {
	tbl := selectableTable(t, NewSelection("a"), nil)

	calls := 0
	d := tbl.SetRowSelection(func(prev Selection) Selection {
		calls++
		if calls == 1 {
			// A parent pushes a change while the first attempt runs.
			tbl.ResetSelection(NewSelection("x"))
		}
		prev["c"] = true
		return prev
	})

	if calls != 2 {
		t.Errorf("updater calls = %d, want 2", calls)
	}
	if got := tbl.Selection().IDs(); !slices.Equal(got, []string{"c", "x"}) {
		t.Errorf("Selection() = %v, want [c x]", got)
	}
	if !slices.Equal(d.Added, []string{"c"}) || len(d.Removed) != 0 {
		t.Errorf("delta = %+v, want only c added", d)
	}
}

func TestTable_selection_disabled(t *testing.T) {
	tbl, _ := newTable(t, "", Options[row]{Rows: rows("a")})
	if d := tbl.ToggleRow("a", true); !d.Empty() {
		t.Errorf("ToggleRow() on a non-selectable table = %+v", d)
	}
	if len(tbl.Selection()) != 0 {
		t.Error("selection should stay empty")
	}
}

func TestTable_ResetSelection_is_silent(t *testing.T) {
	calls := 0
	tbl := selectableTable(t, nil, func(Selection, SelectionDelta) { calls++ })
	tbl.ResetSelection(NewSelection("a", "c"))
	if calls != 0 {
		t.Errorf("OnChange calls = %d, want 0", calls)
	}
	if got := tbl.Selection().IDs(); !slices.Equal(got, []string{"a", "c"}) {
		t.Errorf("Selection() = %v", got)
	}
}

func TestTable_page_selection_helpers(t *testing.T) {
	tbl := selectableTable(t, NewSelection("other-page"), nil)

	if tbl.IsSomePageRowsSelected() || tbl.IsAllPageRowsSelected() {
		t.Error("nothing on the page is selected yet")
	}

	tbl.ToggleRow("b", true)
	if !tbl.IsSomePageRowsSelected() {
		t.Error("IsSomePageRowsSelected() = false with one row selected")
	}

	d := tbl.ToggleAllPageRows(true)
	if !slices.Equal(d.Added, []string{"a", "c"}) {
		t.Errorf("ToggleAllPageRows(true) added %v", d.Added)
	}
	if !tbl.IsAllPageRowsSelected() || tbl.IsSomePageRowsSelected() {
		t.Error("all page rows should be selected")
	}

	tbl.ToggleAllPageRows(false)
	if got := tbl.Selection().IDs(); !slices.Equal(got, []string{"other-page"}) {
		t.Errorf("Selection() = %v, rows of other pages must survive", got)
	}
}

func TestWorkingSet_Apply(t *testing.T) {
	ws := NewWorkingSet(rows("x", "a"), rowID)
	page := []row{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}, {ID: "c", Name: "C"}}

	ws.Apply(SelectionDelta{Added: []string{"b", "a", "missing"}, Removed: []string{"x"}}, page)

	if got := ws.IDs(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("IDs() = %v, want [a b]", got)
	}
	if got := ws.Selection().IDs(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("Selection() = %v", got)
	}
	if ws.Items()[1].Name != "B" {
		t.Errorf("added row = %+v, want the candidate row", ws.Items()[1])
	}
}
