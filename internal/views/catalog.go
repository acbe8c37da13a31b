package views

import (
	"github.com/pitabwire/storedesk/internal/resource"
	"github.com/pitabwire/storedesk/internal/tablequery"
	"github.com/pitabwire/storedesk/model"
)

var (
	byCreated = model.OrderByDescriptor{Key: "created_at", Label: "Created"}
	byUpdated = model.OrderByDescriptor{Key: "updated_at", Label: "Updated"}

	createdColumn = model.ColumnDescriptor{Field: "created_at", Label: "Created", Type: "date", Sortable: true, Format: "date"}
)

const (
	pickerPageSize = 50
	pickerFields   = "id,name,customers.id"

	typeSectionPageSize = 10
	typeSectionLimit    = 9999
	typeSectionFields   = "+type_id"
	productTypeScope    = "product_type_id"
)

var productStatusFilter = model.FilterDescriptor{
	Field: "status",
	Label: "Status",
	Type:  "select",
	Multi: true,
	Options: []model.OptionDescriptor{
		{Label: "Draft", Value: "draft"},
		{Label: "Proposed", Value: "proposed"},
		{Label: "Published", Value: "published"},
		{Label: "Rejected", Value: "rejected"},
	},
}

var productColumns = []model.ColumnDescriptor{
	{Field: "title", Label: "Product", Type: "text", Sortable: true},
	{Field: "collection.title", Label: "Collection", Type: "text"},
	{Field: "sales_channels", Label: "Sales channels", Type: "list"},
	{Field: "variants", Label: "Variants", Type: "count"},
	{Field: "status", Label: "Status", Type: "status"},
}

var productOrderBy = []model.OrderByDescriptor{
	{Key: "title", Label: "Title"},
	byCreated,
	byUpdated,
}

func productID(p model.Product) string { return p.ID }

func productsView(products *resource.Products) view {
	return &listView[model.Product, tablequery.ProductSearchParams]{
		id:       "products",
		title:    "Products",
		route:    "/products",
		pageSize: tablequery.DefaultPageSize,
		rowLink:  "/products/{id}",
		columns:  productColumns,
		filters: []model.FilterDescriptor{
			productStatusFilter,
			{Field: "sales_channel_id", Label: "Sales channel", Type: "select", Multi: true},
			{Field: "collection_id", Label: "Collection", Type: "select", Multi: true},
			{Field: "category_id", Label: "Category", Type: "select", Multi: true},
			{Field: "tagId", Label: "Tag", Type: "select", Multi: true},
			{Field: "type_id", Label: "Type", Type: "select", Multi: true},
			{Field: "is_giftcard", Label: "Gift card", Type: "boolean"},
			{Field: "created_at", Label: "Created", Type: "date"},
			{Field: "updated_at", Label: "Updated", Type: "date"},
		},
		orderBy: productOrderBy,
		query:   tablequery.NewProductQuery,
		list:    products.List,
		rowID:   productID,
	}
}

// productTypeProductsView is the product section of a product type page. It
// reads every product of the type at once and pages through them locally.
func productTypeProductsView(products *resource.Products) view {
	return &listView[model.Product, tablequery.ProductSearchParams]{
		id:    "product-type-products",
		title: "Products",
		route: "/settings/product-types/{" + productTypeScope + "}",
		breadcrumb: []model.BreadcrumbDescriptor{
			{Label: "Product types", Route: "/settings/product-types"},
		},
		pageSize:         typeSectionPageSize,
		clientPagination: true,
		rowLink:          "/products/{id}",
		columns:          productColumns,
		filters:          []model.FilterDescriptor{productStatusFilter},
		orderBy:          productOrderBy,
		scope:            []string{productTypeScope},
		query:            tablequery.NewProductQuery,
		prepare: func(p tablequery.ProductSearchParams, scope map[string]string) tablequery.ProductSearchParams {
			p.Fields = typeSectionFields
			p.Limit = typeSectionLimit
			p.Offset = 0
			p.TypeID = []string{scope[productTypeScope]}
			return p
		},
		list:  products.List,
		rowID: productID,
	}
}

func customersView(customers *resource.Customers) view {
	return &listView[model.Customer, tablequery.CustomerSearchParams]{
		id:       "customers",
		title:    "Customers",
		route:    "/customers",
		pageSize: tablequery.DefaultPageSize,
		rowLink:  "/customers/{id}",
		columns: []model.ColumnDescriptor{
			{Field: "email", Label: "Email", Type: "text", Sortable: true},
			{Field: "first_name", Label: "First name", Type: "text", Sortable: true},
			{Field: "last_name", Label: "Last name", Type: "text", Sortable: true},
			{Field: "has_account", Label: "Account", Type: "boolean", Sortable: true},
			createdColumn,
		},
		filters: []model.FilterDescriptor{
			{Field: "groups", Label: "Groups", Type: "select", Multi: true},
			{Field: "has_account", Label: "Account", Type: "boolean"},
			{Field: "created_at", Label: "Created", Type: "date"},
			{Field: "updated_at", Label: "Updated", Type: "date"},
		},
		orderBy: []model.OrderByDescriptor{
			{Key: "email", Label: "Email"},
			{Key: "first_name", Label: "First name"},
			{Key: "last_name", Label: "Last name"},
			{Key: "has_account", Label: "Account"},
			byCreated,
			byUpdated,
		},
		query: tablequery.NewCustomerQuery,
		list:  customers.List,
		rowID: func(c model.Customer) string { return c.ID },
	}
}

var customerGroupColumns = []model.ColumnDescriptor{
	{Field: "name", Label: "Name", Type: "text", Sortable: true},
	{Field: "customers", Label: "Customers", Type: "count"},
	createdColumn,
}

var customerGroupOrderBy = []model.OrderByDescriptor{
	{Key: "name", Label: "Name"},
	byCreated,
	byUpdated,
}

func customerGroupID(g model.CustomerGroup) string { return g.ID }

func customerGroupsView(groups *resource.CustomerGroups) view {
	return &listView[model.CustomerGroup, tablequery.CustomerGroupSearchParams]{
		id:       "customer-groups",
		title:    "Customer groups",
		route:    "/customer-groups",
		pageSize: tablequery.DefaultPageSize,
		rowLink:  "/customer-groups/{id}",
		columns:  customerGroupColumns,
		filters: []model.FilterDescriptor{
			{Field: "created_at", Label: "Created", Type: "date"},
			{Field: "updated_at", Label: "Updated", Type: "date"},
		},
		orderBy: customerGroupOrderBy,
		query:   tablequery.NewCustomerGroupQuery,
		list:    groups.List,
		rowID:   customerGroupID,
	}
}

// customerGroupPickerView chooses the customer groups of a price list rule.
// It shares the URL with the page hosting it, hence the prefix.
func customerGroupPickerView(groups *resource.CustomerGroups) view {
	return &listView[model.CustomerGroup, tablequery.CustomerGroupSearchParams]{
		id:         "customer-group-picker",
		title:      "Customer groups",
		route:      "/price-lists/{id}/configuration",
		prefix:     "cg",
		pageSize:   pickerPageSize,
		selectable: true,
		columns:    customerGroupColumns,
		orderBy:    customerGroupOrderBy,
		query:      tablequery.NewCustomerGroupQuery,
		prepare: func(p tablequery.CustomerGroupSearchParams, _ map[string]string) tablequery.CustomerGroupSearchParams {
			p.Fields = pickerFields
			return p
		},
		list:  groups.List,
		rowID: customerGroupID,
		summary: func(g model.CustomerGroup) model.SelectedRow {
			return model.SelectedRow{ID: g.ID, Name: g.Name}
		},
	}
}

func productTagsView(tags *resource.ProductTags) view {
	return &listView[model.ProductTag, tablequery.ProductTagSearchParams]{
		id:       "product-tags",
		title:    "Product tags",
		route:    "/settings/product-tags",
		pageSize: tablequery.DefaultPageSize,
		rowLink:  "/settings/product-tags/{id}",
		columns: []model.ColumnDescriptor{
			{Field: "value", Label: "Value", Type: "text", Sortable: true},
			createdColumn,
			{Field: "updated_at", Label: "Updated", Type: "date", Sortable: true, Format: "date"},
		},
		orderBy: []model.OrderByDescriptor{
			{Key: "value", Label: "Value"},
			byCreated,
			byUpdated,
		},
		query: tablequery.NewProductTagQuery,
		list:  tags.List,
		rowID: func(t model.ProductTag) string { return t.ID },
	}
}

func shippingProfilesView(profiles *resource.ShippingProfiles) view {
	return &listView[model.ShippingProfile, tablequery.ShippingProfileSearchParams]{
		id:       "shipping-profiles",
		title:    "Shipping profiles",
		route:    "/settings/locations/shipping-profiles",
		pageSize: tablequery.DefaultPageSize,
		rowLink:  "/settings/locations/shipping-profiles/{id}",
		columns: []model.ColumnDescriptor{
			{Field: "name", Label: "Name", Type: "text", Sortable: true},
			{Field: "type", Label: "Type", Type: "text", Sortable: true},
			createdColumn,
		},
		filters: []model.FilterDescriptor{
			{Field: "type", Label: "Type", Type: "text"},
			{Field: "created_at", Label: "Created", Type: "date"},
			{Field: "updated_at", Label: "Updated", Type: "date"},
		},
		orderBy: []model.OrderByDescriptor{
			{Key: "name", Label: "Name"},
			{Key: "type", Label: "Type"},
			byCreated,
			byUpdated,
		},
		query: tablequery.NewShippingProfileQuery,
		list:  profiles.List,
		rowID: func(p model.ShippingProfile) string { return p.ID },
	}
}
