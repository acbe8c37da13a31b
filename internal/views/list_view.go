package views

import (
	"context"
	"fmt"

	"github.com/pitabwire/storedesk/internal/datatable"
	"github.com/pitabwire/storedesk/internal/tablequery"
	"github.com/pitabwire/storedesk/internal/urlstate"
	"github.com/pitabwire/storedesk/model"
)

// listView is a view over a list of T parsed into SearchParams P.
type listView[T, P any] struct {
	id         string
	title      string
	route      string
	breadcrumb []model.BreadcrumbDescriptor

	prefix           string
	pageSize         int
	selectable       bool
	clientPagination bool
	rowLink          string

	columns []model.ColumnDescriptor
	filters []model.FilterDescriptor
	orderBy []model.OrderByDescriptor

	// scope names query parameters outside the table's own that the view
	// requires, such as the parent entity id of a detail section.
	scope []string

	query   func(*urlstate.Store, tablequery.Options) *tablequery.Query[P]
	prepare func(params P, scope map[string]string) P
	list    func(ctx context.Context, params P) (model.ListPage[T], error)
	rowID   func(T) string
	summary func(T) model.SelectedRow
}

func (v *listView[T, P]) descriptor() model.PageDescriptor {
	table := &model.TableDescriptor{
		Columns:      v.columns,
		Filters:      v.filters,
		OrderBy:      v.orderBy,
		DataEndpoint: fmt.Sprintf("/ui/views/%s/data", v.id),
		Prefix:       v.prefix,
		PageSize:     v.pageSize,
		Selectable:   v.selectable,
		Search:       true,
		Pagination:   true,
		ScopeParams:  v.scope,
	}
	if v.rowLink != "" {
		table.RowLink = &model.LinkDescriptor{Route: v.rowLink}
	}
	return model.PageDescriptor{
		ID:         v.id,
		Title:      v.title,
		Route:      v.route,
		Breadcrumb: v.breadcrumb,
		Table:      table,
	}
}

// loaded is a view's table for one request.
type loaded[T, P any] struct {
	query  *tablequery.Query[P]
	result tablequery.Result[P]
	table  *datatable.Table[T]
}

func (v *listView[T, P]) load(ctx context.Context, store *urlstate.Store, sel datatable.SelectionOptions) (loaded[T, P], error) {
	scope := make(map[string]string, len(v.scope))
	for _, name := range v.scope {
		value, ok := store.Get(name)
		if !ok || value == "" {
			return loaded[T, P]{}, model.NewInvalidParameterError(name, fmt.Sprintf("%s is required", name))
		}
		scope[name] = value
	}

	q := v.query(store, tablequery.Options{Prefix: v.prefix, PageSize: v.pageSize})
	res, err := q.Result()
	if err != nil {
		return loaded[T, P]{}, err
	}

	params := res.SearchParams
	if v.prepare != nil {
		params = v.prepare(params, scope)
	}
	page, err := v.list(ctx, params)
	if err != nil {
		return loaded[T, P]{}, err
	}

	count := page.Count
	if v.clientPagination {
		count = len(page.Items)
	}
	sel.Enabled = v.selectable
	table := datatable.New(datatable.Options[T]{
		Rows:             page.Items,
		Count:            count,
		PageSize:         q.PageSize(),
		RowID:            v.rowID,
		Binder:           q.Binder(),
		Columns:          v.columns,
		OrderBy:          v.orderBy,
		ClientPagination: v.clientPagination,
		Selection:        sel,
	})
	return loaded[T, P]{query: q, result: res, table: table}, nil
}

func (v *listView[T, P]) data(ctx context.Context, store *urlstate.Store) (model.DataResponse, error) {
	l, err := v.load(ctx, store, datatable.SelectionOptions{})
	if err != nil {
		return model.DataResponse{}, err
	}
	t := l.table

	payload := model.DataPayload{
		Items:     t.Rows(),
		Count:     t.Count(),
		Offset:    t.PageIndex() * t.PageSize(),
		PageIndex: t.PageIndex(),
		PageCount: t.PageCount(),
		PageSize:  t.PageSize(),
	}
	if s, ok := t.Sort(); ok {
		payload.Sort = &model.SortDescriptor{Key: s.Key, Desc: s.Desc}
	}
	if t.CanNextPage() {
		payload.NextQuery = adjacentQuery(store, l.query.Binder(), t, (*datatable.Table[T]).NextPage)
	}
	if t.CanPreviousPage() {
		payload.PrevQuery = adjacentQuery(store, l.query.Binder(), t, (*datatable.Table[T]).PreviousPage)
	}

	raw := make(map[string]string, len(l.result.Raw))
	for k, val := range l.result.Raw {
		raw[k] = val
	}
	return model.DataResponse{Data: payload, Raw: raw}, nil
}

// adjacentQuery returns the query string after move on a copy of store.
func adjacentQuery[T any](store *urlstate.Store, b *urlstate.Binder, t *datatable.Table[T], move func(*datatable.Table[T])) string {
	next := urlstate.NewStore(store.Values())
	moved := datatable.New(datatable.Options[T]{
		Count:    t.Count(),
		PageSize: t.PageSize(),
		Binder:   urlstate.NewBinder(next, b.Names(), b.Prefix()),
	})
	move(moved)
	return next.Encode()
}

func (v *listView[T, P]) selection(ctx context.Context, store *urlstate.Store, req model.SelectionRequest) (model.SelectionResponse, error) {
	if !v.selectable {
		return model.SelectionResponse{}, model.NewBadRequestError(fmt.Sprintf("view %q does not support selection", v.id))
	}
	if n := countChanges(req); n != 1 {
		return model.SelectionResponse{}, model.NewBadRequestError("exactly one of replace, toggle or toggle_page is required")
	}

	working := datatable.NewWorkingSet(req.WorkingSet, func(r model.SelectedRow) string { return r.ID })
	var table *datatable.Table[T]
	l, err := v.load(ctx, store, datatable.SelectionOptions{
		Initial: datatable.NewSelection(req.Selected...),
		OnChange: func(_ datatable.Selection, delta datatable.SelectionDelta) {
			working.Apply(delta, v.candidates(table.Rows()))
		},
	})
	if err != nil {
		return model.SelectionResponse{}, err
	}
	table = l.table

	var delta datatable.SelectionDelta
	switch {
	case req.Replace != nil:
		delta = table.SetRowSelection(datatable.Replace(datatable.NewSelection(req.Replace...)))
	case req.Toggle != nil:
		delta = table.ToggleRow(req.Toggle.ID, req.Toggle.Selected)
	case req.TogglePage != nil:
		delta = table.ToggleAllPageRows(*req.TogglePage)
	}

	return model.SelectionResponse{
		Selection:  table.Selection().IDs(),
		Added:      nonNil(delta.Added),
		Removed:    nonNil(delta.Removed),
		WorkingSet: working.Items(),
		AllOnPage:  table.IsAllPageRowsSelected(),
		SomeOnPage: table.IsSomePageRowsSelected(),
	}, nil
}

func (v *listView[T, P]) candidates(rows []T) []model.SelectedRow {
	out := make([]model.SelectedRow, 0, len(rows))
	for _, r := range rows {
		if v.summary != nil {
			out = append(out, v.summary(r))
			continue
		}
		out = append(out, model.SelectedRow{ID: v.rowID(r)})
	}
	return out
}

func countChanges(req model.SelectionRequest) int {
	n := 0
	if req.Replace != nil {
		n++
	}
	if req.Toggle != nil {
		n++
	}
	if req.TogglePage != nil {
		n++
	}
	return n
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
