package tablequery

import (
	"net/url"

	"github.com/pitabwire/storedesk/internal/querykey"
	"github.com/pitabwire/storedesk/internal/urlstate"
)

// ProductTagFields is the field selection sent with every product tag list read.
const ProductTagFields = "id,value,created_at,updated_at"

// ProductTagNames are the URL parameters a product tag table recognizes.
var ProductTagNames = names()

// ProductTagSearchParams are the typed product tag list parameters.
type ProductTagSearchParams struct {
	Common
}

// NewProductTagQuery binds a product tag table to store.
func NewProductTagQuery(store *urlstate.Store, opts Options) *Query[ProductTagSearchParams] {
	return NewQuery(store, ProductTagNames, opts, ParseProductTag)
}

// ParseProductTag parses the raw product tag table parameters.
func ParseProductTag(raw urlstate.Params, pageSize int) (ProductTagSearchParams, error) {
	common, err := parseCommon(raw, pageSize, ProductTagFields)
	if err != nil {
		return ProductTagSearchParams{}, err
	}
	return ProductTagSearchParams{Common: common}, nil
}

// Encode returns the raw parameters that parse back into p.
func (p ProductTagSearchParams) Encode() urlstate.Params {
	out := urlstate.Params{}
	p.Common.encode(out)
	return out
}

// Filters returns the cache key filters of the read.
func (p ProductTagSearchParams) Filters() querykey.Filters {
	return keyFilters(p)
}

// RemoteQuery renders p for GET /admin/product-tags.
func (p ProductTagSearchParams) RemoteQuery() url.Values {
	return p.Common.remote()
}
