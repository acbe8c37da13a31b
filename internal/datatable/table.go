// Package datatable holds the state of one rendered list table: pagination
// and sort derived from the URL binder, the current page of rows and the
// row selection.
package datatable

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/pitabwire/storedesk/internal/urlstate"
	"github.com/pitabwire/storedesk/model"
)

// Column describes one rendered column.
type Column = model.ColumnDescriptor

// OrderBy is one sort option offered to the user.
type OrderBy = model.OrderByDescriptor

// Sort is the active sort of a table.
type Sort struct {
	Key  string `json:"key"`
	Desc bool   `json:"desc"`
}

// ParseOrder parses an order parameter. A leading "-" means descending.
func ParseOrder(order string) (Sort, bool) {
	if order == "" || order == "-" {
		return Sort{}, false
	}
	if key, ok := strings.CutPrefix(order, "-"); ok {
		return Sort{Key: key, Desc: true}, true
	}
	return Sort{Key: order}, true
}

// String renders s as an order parameter.
func (s Sort) String() string {
	if s.Desc {
		return "-" + s.Key
	}
	return s.Key
}

// Options configures a Table.
type Options[T any] struct {
	Rows     []T
	Count    int
	PageSize int
	RowID    func(T) string
	Binder   *urlstate.Binder
	Columns  []Column
	OrderBy  []OrderBy

	// ClientPagination means Rows holds every result and the table slices
	// the current page out of it.
	ClientPagination bool

	Selection SelectionOptions

	// Navigate is called by NavigateTo with the id of the activated row.
	Navigate func(rowID string)
}

// Table is the state of one list table. It is safe for concurrent use.
type Table[T any] struct {
	opts Options[T]

	mu         sync.Mutex
	selection  Selection
	selVersion uint64
}

// New creates a Table. A page size below 1 falls back to 20.
func New[T any](opts Options[T]) *Table[T] {
	if opts.PageSize < 1 {
		opts.PageSize = 20
	}
	if opts.RowID == nil {
		opts.RowID = func(T) string { return "" }
	}
	return &Table[T]{
		opts:      opts,
		selection: opts.Selection.Initial.Clone(),
	}
}

// Columns returns the table's columns.
func (t *Table[T]) Columns() []Column {
	return t.opts.Columns
}

// OrderBy returns the sort options.
func (t *Table[T]) OrderBy() []OrderBy {
	return t.opts.OrderBy
}

// Count returns the total number of rows across all pages.
func (t *Table[T]) Count() int {
	return t.opts.Count
}

// PageSize returns the fixed page size.
func (t *Table[T]) PageSize() int {
	return t.opts.PageSize
}

func (t *Table[T]) params() urlstate.Params {
	if t.opts.Binder == nil {
		return urlstate.Params{}
	}
	return t.opts.Binder.Read()
}

func (t *Table[T]) set(update urlstate.Params) {
	if t.opts.Binder != nil {
		t.opts.Binder.Set(update)
	}
}

// offset reads the URL offset. Malformed offsets are rejected by the table
// query before a table is built, so here they read as zero.
func (t *Table[T]) offset() int {
	raw, ok := t.params().Get("offset")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// PageIndex returns the zero-based index of the current page.
func (t *Table[T]) PageIndex() int {
	return t.offset() / t.opts.PageSize
}

// PageCount returns the number of pages, at least 1.
func (t *Table[T]) PageCount() int {
	if t.opts.Count <= 0 {
		return 1
	}
	return (t.opts.Count + t.opts.PageSize - 1) / t.opts.PageSize
}

// CanPreviousPage reports whether a previous page exists.
func (t *Table[T]) CanPreviousPage() bool {
	return t.PageIndex() > 0
}

// CanNextPage reports whether a next page exists.
func (t *Table[T]) CanNextPage() bool {
	return t.PageIndex() < t.PageCount()-1
}

// SetPageIndex moves to page index by writing the offset to the URL. Page 0
// removes the offset.
func (t *Table[T]) SetPageIndex(index int) {
	if index < 0 {
		index = 0
	}
	t.set(urlstate.Params{"offset": offsetParam(index * t.opts.PageSize)})
}

// NextPage moves forward one page when possible.
func (t *Table[T]) NextPage() {
	if t.CanNextPage() {
		t.SetPageIndex(t.PageIndex() + 1)
	}
}

// PreviousPage moves back one page when possible.
func (t *Table[T]) PreviousPage() {
	if t.CanPreviousPage() {
		t.SetPageIndex(t.PageIndex() - 1)
	}
}

func offsetParam(offset int) string {
	if offset <= 0 {
		return ""
	}
	return strconv.Itoa(offset)
}

// Sort returns the active sort, if any.
func (t *Table[T]) Sort() (Sort, bool) {
	order, _ := t.params().Get("order")
	return ParseOrder(order)
}

// SetSort sorts by key and returns to the first page. When sort options are
// configured, key must be one of them.
func (t *Table[T]) SetSort(key string, desc bool) error {
	if !t.sortable(key) {
		return model.NewInvalidParameterError("order", fmt.Sprintf("cannot sort by %q", key))
	}
	t.set(urlstate.Params{
		"order":  Sort{Key: key, Desc: desc}.String(),
		"offset": "",
	})
	return nil
}

func (t *Table[T]) sortable(key string) bool {
	if key == "" {
		return false
	}
	if len(t.opts.OrderBy) == 0 {
		return true
	}
	for _, o := range t.opts.OrderBy {
		if o.Key == key {
			return true
		}
	}
	return false
}

// ClearSort removes the sort and returns to the first page.
func (t *Table[T]) ClearSort() {
	t.set(urlstate.Params{"order": "", "offset": ""})
}

// SetSearch sets the free-text search and returns to the first page. An
// empty q clears it.
func (t *Table[T]) SetSearch(q string) {
	t.set(urlstate.Params{"q": q, "offset": ""})
}

// SetFilter sets one filter parameter and returns to the first page. An
// empty value clears it; names the table does not recognize are ignored.
func (t *Table[T]) SetFilter(name, value string) {
	t.set(urlstate.Params{name: value, "offset": ""})
}

// Rows returns the rows of the current page.
func (t *Table[T]) Rows() []T {
	if !t.opts.ClientPagination {
		return t.opts.Rows
	}
	start := t.offset()
	if start >= len(t.opts.Rows) {
		return []T{}
	}
	end := min(start+t.opts.PageSize, len(t.opts.Rows))
	return t.opts.Rows[start:end]
}

// RowIDs returns the ids of the current page's rows.
func (t *Table[T]) RowIDs() []string {
	rows := t.Rows()
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, t.opts.RowID(r))
	}
	return ids
}

// NavigateTo activates the row with id. It reports whether a navigation
// target was configured.
func (t *Table[T]) NavigateTo(rowID string) bool {
	if t.opts.Navigate == nil || rowID == "" {
		return false
	}
	t.opts.Navigate(rowID)
	return true
}
