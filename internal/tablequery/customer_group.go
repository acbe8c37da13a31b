package tablequery

import (
	"net/url"

	"github.com/pitabwire/storedesk/internal/querykey"
	"github.com/pitabwire/storedesk/internal/urlstate"
)

// CustomerGroupFields is the field selection sent with every customer group
// list read.
const CustomerGroupFields = "id,name,created_at,updated_at,customers.id"

// CustomerGroupNames are the URL parameters a customer group table recognizes.
var CustomerGroupNames = names()

// CustomerGroupSearchParams are the typed customer group list parameters.
type CustomerGroupSearchParams struct {
	Common
}

// NewCustomerGroupQuery binds a customer group table to store.
func NewCustomerGroupQuery(store *urlstate.Store, opts Options) *Query[CustomerGroupSearchParams] {
	return NewQuery(store, CustomerGroupNames, opts, ParseCustomerGroup)
}

// ParseCustomerGroup parses the raw customer group table parameters.
func ParseCustomerGroup(raw urlstate.Params, pageSize int) (CustomerGroupSearchParams, error) {
	common, err := parseCommon(raw, pageSize, CustomerGroupFields)
	if err != nil {
		return CustomerGroupSearchParams{}, err
	}
	return CustomerGroupSearchParams{Common: common}, nil
}

// Encode returns the raw parameters that parse back into p.
func (p CustomerGroupSearchParams) Encode() urlstate.Params {
	out := urlstate.Params{}
	p.Common.encode(out)
	return out
}

// Filters returns the cache key filters of the read.
func (p CustomerGroupSearchParams) Filters() querykey.Filters {
	return keyFilters(p)
}

// RemoteQuery renders p for GET /admin/customer-groups.
func (p CustomerGroupSearchParams) RemoteQuery() url.Values {
	return p.Common.remote()
}
