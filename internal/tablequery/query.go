// Package tablequery turns the raw URL parameters of a list view into typed
// search parameters for the commerce API. Every entity has a fixed set of
// recognized names, parsing rules and a field selection string.
package tablequery

import (
	"strconv"
	"strings"

	"github.com/pitabwire/storedesk/internal/urlstate"
	"github.com/pitabwire/storedesk/model"
)

// DefaultPageSize is the list limit used when Options.PageSize is unset.
const DefaultPageSize = 20

// Options configures a table query.
type Options struct {
	// Prefix namespaces the URL parameters so several tables can share a URL.
	Prefix string
	// PageSize becomes the request limit. It is never read from the URL.
	PageSize int
}

func (o Options) pageSize() int {
	if o.PageSize <= 0 {
		return DefaultPageSize
	}
	return o.PageSize
}

// Result carries both the typed parameters and the raw parameter bag they
// were parsed from. The raw bag feeds the data table's filter and sort
// controls; the typed parameters feed the request.
type Result[P any] struct {
	SearchParams P
	Raw          urlstate.Params
}

// ParseFunc parses a raw parameter bag with the given page size.
type ParseFunc[P any] func(raw urlstate.Params, pageSize int) (P, error)

// Query binds an entity parser to a URL store.
type Query[P any] struct {
	binder   *urlstate.Binder
	pageSize int
	parse    ParseFunc[P]
}

// NewQuery returns a query over store recognizing names. The per-entity
// constructors in this package are the usual entry points.
func NewQuery[P any](store *urlstate.Store, names []string, opts Options, parse ParseFunc[P]) *Query[P] {
	return &Query[P]{
		binder:   urlstate.NewBinder(store, names, opts.Prefix),
		pageSize: opts.pageSize(),
		parse:    parse,
	}
}

// Binder returns the binder the query reads from. Tables write their
// pagination, sort and filter changes through it.
func (q *Query[P]) Binder() *urlstate.Binder {
	return q.binder
}

// PageSize returns the effective page size.
func (q *Query[P]) PageSize() int {
	return q.pageSize
}

// Result parses the current URL state. Parse errors are returned as
// INVALID_PARAMETER envelopes.
func (q *Query[P]) Result() (Result[P], error) {
	raw := q.binder.Read()
	params, err := q.parse(raw, q.pageSize)
	if err != nil {
		return Result[P]{Raw: raw}, err
	}
	return Result[P]{SearchParams: params, Raw: raw}, nil
}

// parseOffset returns 0 for an absent offset.
func parseOffset(raw urlstate.Params) (int, error) {
	v, ok := raw.Get("offset")
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, model.NewInvalidParameterError("offset", "must be a non-negative integer")
	}
	return n, nil
}

// splitList returns nil, not an empty slice, for an absent parameter.
func splitList(raw urlstate.Params, name string) []string {
	v, ok := raw.Get(name)
	if !ok {
		return nil
	}
	return strings.Split(v, ",")
}

// parseBool maps "true" to true, any other present value to false and an
// absent value to nil.
func parseBool(raw urlstate.Params, name string) *bool {
	v, ok := raw.Get(name)
	if !ok {
		return nil
	}
	b := v == "true"
	return &b
}

func encodeOffset(out urlstate.Params, offset int) {
	if offset != 0 {
		out["offset"] = strconv.Itoa(offset)
	}
}

func encodeList(out urlstate.Params, name string, values []string) {
	if values != nil {
		out[name] = strings.Join(values, ",")
	}
}

func encodeBool(out urlstate.Params, name string, v *bool) {
	if v != nil {
		out[name] = strconv.FormatBool(*v)
	}
}

func encodeString(out urlstate.Params, name, v string) {
	if v != "" {
		out[name] = v
	}
}
