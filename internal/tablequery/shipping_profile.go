package tablequery

import (
	"net/url"

	"github.com/pitabwire/storedesk/internal/querykey"
	"github.com/pitabwire/storedesk/internal/urlstate"
)

// ShippingProfileFields is the field selection sent with every shipping
// profile list read.
const ShippingProfileFields = "id,name,type,created_at,updated_at"

// ShippingProfileNames are the URL parameters a shipping profile table
// recognizes.
var ShippingProfileNames = names("name", "type")

// ShippingProfileSearchParams are the typed shipping profile list parameters.
type ShippingProfileSearchParams struct {
	Common
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
}

// NewShippingProfileQuery binds a shipping profile table to store.
func NewShippingProfileQuery(store *urlstate.Store, opts Options) *Query[ShippingProfileSearchParams] {
	return NewQuery(store, ShippingProfileNames, opts, ParseShippingProfile)
}

// ParseShippingProfile parses the raw shipping profile table parameters.
func ParseShippingProfile(raw urlstate.Params, pageSize int) (ShippingProfileSearchParams, error) {
	common, err := parseCommon(raw, pageSize, ShippingProfileFields)
	if err != nil {
		return ShippingProfileSearchParams{}, err
	}
	name, _ := raw.Get("name")
	typ, _ := raw.Get("type")
	return ShippingProfileSearchParams{Common: common, Name: name, Type: typ}, nil
}

// Encode returns the raw parameters that parse back into p.
func (p ShippingProfileSearchParams) Encode() urlstate.Params {
	out := urlstate.Params{}
	p.Common.encode(out)
	encodeString(out, "name", p.Name)
	encodeString(out, "type", p.Type)
	return out
}

// Filters returns the cache key filters of the read.
func (p ShippingProfileSearchParams) Filters() querykey.Filters {
	return keyFilters(p)
}

// RemoteQuery renders p for GET /admin/shipping-profiles.
func (p ShippingProfileSearchParams) RemoteQuery() url.Values {
	q := p.Common.remote()
	setRemoteString(q, "name", p.Name)
	setRemoteString(q, "type", p.Type)
	return q
}
