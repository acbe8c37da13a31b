package resource

import (
	"context"

	"github.com/pitabwire/storedesk/internal/tablequery"
	"github.com/pitabwire/storedesk/model"
)

// Products reads /admin/products.
type Products struct{ d *deps }

// List returns one page of products matching params.
func (s *Products) List(ctx context.Context, params tablequery.ProductSearchParams) (model.ListPage[model.Product], error) {
	return list[model.Product, model.ProductListResponse](ctx, s.d, ProductKeys, "/admin/products", params)
}

// Get returns one product. fields may be empty.
func (s *Products) Get(ctx context.Context, id, fields string) (model.Product, error) {
	return detail(ctx, s.d, ProductKeys, "/admin/products", id, fields,
		func(r struct {
			Product model.Product `json:"product"`
		}) model.Product {
			return r.Product
		})
}

// Customers reads /admin/customers.
type Customers struct{ d *deps }

// List returns one page of customers matching params.
func (s *Customers) List(ctx context.Context, params tablequery.CustomerSearchParams) (model.ListPage[model.Customer], error) {
	return list[model.Customer, model.CustomerListResponse](ctx, s.d, CustomerKeys, "/admin/customers", params)
}

// Get returns one customer.
func (s *Customers) Get(ctx context.Context, id, fields string) (model.Customer, error) {
	return detail(ctx, s.d, CustomerKeys, "/admin/customers", id, fields,
		func(r struct {
			Customer model.Customer `json:"customer"`
		}) model.Customer {
			return r.Customer
		})
}

// CustomerGroups reads /admin/customer-groups.
type CustomerGroups struct{ d *deps }

// List returns one page of customer groups matching params.
func (s *CustomerGroups) List(ctx context.Context, params tablequery.CustomerGroupSearchParams) (model.ListPage[model.CustomerGroup], error) {
	return list[model.CustomerGroup, model.CustomerGroupListResponse](ctx, s.d, CustomerGroupKeys, "/admin/customer-groups", params)
}

// Get returns one customer group.
func (s *CustomerGroups) Get(ctx context.Context, id, fields string) (model.CustomerGroup, error) {
	return detail(ctx, s.d, CustomerGroupKeys, "/admin/customer-groups", id, fields,
		func(r model.CustomerGroupResponse) model.CustomerGroup {
			return r.CustomerGroup
		})
}

// ProductTags reads /admin/product-tags.
type ProductTags struct{ d *deps }

// List returns one page of product tags matching params.
func (s *ProductTags) List(ctx context.Context, params tablequery.ProductTagSearchParams) (model.ListPage[model.ProductTag], error) {
	return list[model.ProductTag, model.ProductTagListResponse](ctx, s.d, ProductTagKeys, "/admin/product-tags", params)
}

// Get returns one product tag.
func (s *ProductTags) Get(ctx context.Context, id, fields string) (model.ProductTag, error) {
	return detail(ctx, s.d, ProductTagKeys, "/admin/product-tags", id, fields,
		func(r struct {
			ProductTag model.ProductTag `json:"product_tag"`
		}) model.ProductTag {
			return r.ProductTag
		})
}

// ShippingProfiles reads /admin/shipping-profiles.
type ShippingProfiles struct{ d *deps }

// List returns one page of shipping profiles matching params.
func (s *ShippingProfiles) List(ctx context.Context, params tablequery.ShippingProfileSearchParams) (model.ListPage[model.ShippingProfile], error) {
	return list[model.ShippingProfile, model.ShippingProfileListResponse](ctx, s.d, ShippingProfileKeys, "/admin/shipping-profiles", params)
}

// Get returns one shipping profile.
func (s *ShippingProfiles) Get(ctx context.Context, id, fields string) (model.ShippingProfile, error) {
	return detail(ctx, s.d, ShippingProfileKeys, "/admin/shipping-profiles", id, fields,
		func(r struct {
			ShippingProfile model.ShippingProfile `json:"shipping_profile"`
		}) model.ShippingProfile {
			return r.ShippingProfile
		})
}
