package model

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// The commerce API expects amounts as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// Product is a catalog product as returned by the admin product endpoints.
type Product struct {
	ID            string           `json:"id"`
	Title         string           `json:"title"`
	Handle        string           `json:"handle"`
	Status        string           `json:"status"`
	IsGiftcard    bool             `json:"is_giftcard"`
	Thumbnail     *string          `json:"thumbnail"`
	TypeID        *string          `json:"type_id,omitempty"`
	Collection    *Collection      `json:"collection,omitempty"`
	SalesChannels []SalesChannel   `json:"sales_channels,omitempty"`
	Variants      []ProductVariant `json:"variants,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Collection is the product collection reference embedded in a product.
type Collection struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// SalesChannel is a sales channel reference embedded in a product.
type SalesChannel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ProductVariant is a purchasable variant of a product.
type ProductVariant struct {
	ID     string  `json:"id"`
	Title  string  `json:"title,omitempty"`
	SKU    *string `json:"sku,omitempty"`
	Prices []Price `json:"prices,omitempty"`
}

// Price is a core variant price. Rules narrow it to a region.
type Price struct {
	ID           string          `json:"id"`
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currency_code"`
	Rules        PriceRules      `json:"rules"`
}

// PriceRules holds the rule set attached to a price.
type PriceRules struct {
	RegionID string `json:"region_id,omitempty"`
}

// Customer is a storefront customer.
type Customer struct {
	ID          string          `json:"id"`
	Email       string          `json:"email"`
	FirstName   *string         `json:"first_name"`
	LastName    *string         `json:"last_name"`
	CompanyName *string         `json:"company_name,omitempty"`
	HasAccount  bool            `json:"has_account"`
	Groups      []CustomerGroup `json:"groups,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// CustomerGroup is a named group of customers.
type CustomerGroup struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Customers []CustomerRef  `json:"customers,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// CustomerRef is the id-only customer projection embedded in groups.
type CustomerRef struct {
	ID string `json:"id"`
}

// ProductTag is a free-form product tag.
type ProductTag struct {
	ID        string    `json:"id"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ShippingProfile groups products that share shipping options.
type ShippingProfile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Buyer types a vendor price can target.
const (
	BuyerAdmin    = "admin"
	BuyerReseller = "reseller"
	BuyerCustomer = "customer"
)

// VendorVariantPrice is a vendor-specific price row for a variant.
type VendorVariantPrice struct {
	ID           string          `json:"id"`
	VariantID    string          `json:"variant_id"`
	BuyerType    string          `json:"buyer_type"`
	BuyerID      *string         `json:"buyer_id,omitempty"`
	BuyerGroupID *string         `json:"buyer_group_id,omitempty"`
	Price        decimal.Decimal `json:"price"`
}

// VendorVariantInventory is the vendor stock level of a variant.
type VendorVariantInventory struct {
	ID        string `json:"id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

// ListPage is the entity-neutral form of a paginated list response.
type ListPage[T any] struct {
	Items  []T `json:"items"`
	Count  int `json:"count"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// ProductListResponse is the wire shape of GET /admin/products.
type ProductListResponse struct {
	Products []Product `json:"products"`
	Count    int       `json:"count"`
	Offset   int       `json:"offset"`
	Limit    int       `json:"limit"`
}

// Page returns the entity-neutral list page.
func (r ProductListResponse) Page() ListPage[Product] {
	return ListPage[Product]{Items: r.Products, Count: r.Count, Offset: r.Offset, Limit: r.Limit}
}

// CustomerListResponse is the wire shape of GET /admin/customers.
type CustomerListResponse struct {
	Customers []Customer `json:"customers"`
	Count     int        `json:"count"`
	Offset    int        `json:"offset"`
	Limit     int        `json:"limit"`
}

// Page returns the entity-neutral list page.
func (r CustomerListResponse) Page() ListPage[Customer] {
	return ListPage[Customer]{Items: r.Customers, Count: r.Count, Offset: r.Offset, Limit: r.Limit}
}

// CustomerGroupListResponse is the wire shape of GET /admin/customer-groups.
type CustomerGroupListResponse struct {
	CustomerGroups []CustomerGroup `json:"customer_groups"`
	Count          int             `json:"count"`
	Offset         int             `json:"offset"`
	Limit          int             `json:"limit"`
}

// Page returns the entity-neutral list page.
func (r CustomerGroupListResponse) Page() ListPage[CustomerGroup] {
	return ListPage[CustomerGroup]{Items: r.CustomerGroups, Count: r.Count, Offset: r.Offset, Limit: r.Limit}
}

// ProductTagListResponse is the wire shape of GET /admin/product-tags.
type ProductTagListResponse struct {
	ProductTags []ProductTag `json:"product_tags"`
	Count       int          `json:"count"`
	Offset      int          `json:"offset"`
	Limit       int          `json:"limit"`
}

// Page returns the entity-neutral list page.
func (r ProductTagListResponse) Page() ListPage[ProductTag] {
	return ListPage[ProductTag]{Items: r.ProductTags, Count: r.Count, Offset: r.Offset, Limit: r.Limit}
}

// ShippingProfileListResponse is the wire shape of GET /admin/shipping-profiles.
// Each entry wraps the profile in its own object.
type ShippingProfileListResponse struct {
	ShippingProfiles []ShippingProfileEntry `json:"shipping_profiles"`
	Count            int                    `json:"count"`
	Offset           int                    `json:"offset"`
	Limit            int                    `json:"limit"`
}

// ShippingProfileEntry is one element of ShippingProfileListResponse.
type ShippingProfileEntry struct {
	ShippingProfile ShippingProfile `json:"shipping_profile"`
}

// Page returns the entity-neutral list page with the profiles unwrapped.
func (r ShippingProfileListResponse) Page() ListPage[ShippingProfile] {
	items := make([]ShippingProfile, 0, len(r.ShippingProfiles))
	for _, e := range r.ShippingProfiles {
		items = append(items, e.ShippingProfile)
	}
	return ListPage[ShippingProfile]{Items: items, Count: r.Count, Offset: r.Offset, Limit: r.Limit}
}

// CustomerGroupResponse is the wire shape of GET /admin/customer-groups/{id}.
type CustomerGroupResponse struct {
	CustomerGroup CustomerGroup `json:"customer_group"`
}

// VendorPricesResponse is the wire shape of the vendor price read endpoints.
type VendorPricesResponse struct {
	Prices []VendorVariantPrice `json:"prices"`
}

// VendorInventoryResponse is the wire shape of the vendor inventory endpoints.
// Inventory is nil when the variant has no vendor stock record yet.
type VendorInventoryResponse struct {
	Inventory *VendorVariantInventory `json:"inventory"`
}
