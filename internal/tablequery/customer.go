package tablequery

import (
	"net/url"

	"github.com/pitabwire/storedesk/internal/querykey"
	"github.com/pitabwire/storedesk/internal/urlstate"
)

// CustomerFields is the field selection sent with every customer list read.
const CustomerFields = "id,email,first_name,last_name,company_name,has_account,created_at,updated_at,*groups"

// CustomerNames are the URL parameters a customer table recognizes.
var CustomerNames = names("groups", "has_account")

// CustomerSearchParams are the typed customer list parameters.
type CustomerSearchParams struct {
	Common
	Groups     []string `json:"groups,omitempty"`
	HasAccount *bool    `json:"has_account,omitempty"`
}

// NewCustomerQuery binds a customer table to store.
func NewCustomerQuery(store *urlstate.Store, opts Options) *Query[CustomerSearchParams] {
	return NewQuery(store, CustomerNames, opts, ParseCustomer)
}

// ParseCustomer parses the raw customer table parameters.
func ParseCustomer(raw urlstate.Params, pageSize int) (CustomerSearchParams, error) {
	common, err := parseCommon(raw, pageSize, CustomerFields)
	if err != nil {
		return CustomerSearchParams{}, err
	}
	return CustomerSearchParams{
		Common:     common,
		Groups:     splitList(raw, "groups"),
		HasAccount: parseBool(raw, "has_account"),
	}, nil
}

// Encode returns the raw parameters that parse back into p.
func (p CustomerSearchParams) Encode() urlstate.Params {
	out := urlstate.Params{}
	p.Common.encode(out)
	encodeList(out, "groups", p.Groups)
	encodeBool(out, "has_account", p.HasAccount)
	return out
}

// Filters returns the cache key filters of the read.
func (p CustomerSearchParams) Filters() querykey.Filters {
	return keyFilters(p)
}

// RemoteQuery renders p for GET /admin/customers.
func (p CustomerSearchParams) RemoteQuery() url.Values {
	q := p.Common.remote()
	setRemoteList(q, "groups", p.Groups)
	setRemoteBool(q, "has_account", p.HasAccount)
	return q
}
