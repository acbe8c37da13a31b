package tablequery

import (
	"net/url"

	"github.com/pitabwire/storedesk/internal/querykey"
	"github.com/pitabwire/storedesk/internal/urlstate"
)

// ProductFields is the field selection sent with every product list read.
const ProductFields = "id,title,handle,status,*collection,*sales_channels,variants.id"

// ProductNames are the URL parameters a product table recognizes. "id" is
// kept in the raw bag only.
var ProductNames = names(
	"sales_channel_id",
	"category_id",
	"collection_id",
	"is_giftcard",
	"tagId",
	"type_id",
	"status",
	"id",
)

// ProductSearchParams are the typed product list parameters.
type ProductSearchParams struct {
	Common
	SalesChannelID []string `json:"sales_channel_id,omitempty"`
	CategoryID     []string `json:"category_id,omitempty"`
	CollectionID   []string `json:"collection_id,omitempty"`
	IsGiftcard     *bool    `json:"is_giftcard,omitempty"`
	TagID          []string `json:"tagId,omitempty"`
	TypeID         []string `json:"type_id,omitempty"`
	Status         []string `json:"status,omitempty"`
}

// NewProductQuery binds a product table to store.
func NewProductQuery(store *urlstate.Store, opts Options) *Query[ProductSearchParams] {
	return NewQuery(store, ProductNames, opts, ParseProduct)
}

// ParseProduct parses the raw product table parameters.
func ParseProduct(raw urlstate.Params, pageSize int) (ProductSearchParams, error) {
	common, err := parseCommon(raw, pageSize, ProductFields)
	if err != nil {
		return ProductSearchParams{}, err
	}
	return ProductSearchParams{
		Common:         common,
		SalesChannelID: splitList(raw, "sales_channel_id"),
		CategoryID:     splitList(raw, "category_id"),
		CollectionID:   splitList(raw, "collection_id"),
		IsGiftcard:     parseBool(raw, "is_giftcard"),
		TagID:          splitList(raw, "tagId"),
		TypeID:         splitList(raw, "type_id"),
		Status:         splitList(raw, "status"),
	}, nil
}

// Encode returns the raw parameters that parse back into p.
func (p ProductSearchParams) Encode() urlstate.Params {
	out := urlstate.Params{}
	p.Common.encode(out)
	encodeList(out, "sales_channel_id", p.SalesChannelID)
	encodeList(out, "category_id", p.CategoryID)
	encodeList(out, "collection_id", p.CollectionID)
	encodeBool(out, "is_giftcard", p.IsGiftcard)
	encodeList(out, "tagId", p.TagID)
	encodeList(out, "type_id", p.TypeID)
	encodeList(out, "status", p.Status)
	return out
}

// Filters returns the cache key filters of the read.
func (p ProductSearchParams) Filters() querykey.Filters {
	return keyFilters(p)
}

// RemoteQuery renders p for GET /admin/products.
func (p ProductSearchParams) RemoteQuery() url.Values {
	q := p.Common.remote()
	setRemoteList(q, "sales_channel_id", p.SalesChannelID)
	setRemoteList(q, "category_id", p.CategoryID)
	setRemoteList(q, "collection_id", p.CollectionID)
	setRemoteBool(q, "is_giftcard", p.IsGiftcard)
	setRemoteList(q, "tag_id", p.TagID)
	setRemoteList(q, "type_id", p.TypeID)
	setRemoteList(q, "status", p.Status)
	return q
}
