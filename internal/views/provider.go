// Package views composes the list views of the admin: each view binds a
// table query, a resource list read and a data table, and serves its
// descriptor, its data and its selection changes.
package views

import (
	"context"
	"fmt"
	"net/url"

	"github.com/pitabwire/storedesk/internal/observability"
	"github.com/pitabwire/storedesk/internal/resource"
	"github.com/pitabwire/storedesk/internal/urlstate"
	"github.com/pitabwire/storedesk/model"
)

// view is implemented by listView for every entity type.
type view interface {
	descriptor() model.PageDescriptor
	data(ctx context.Context, store *urlstate.Store) (model.DataResponse, error)
	selection(ctx context.Context, store *urlstate.Store, req model.SelectionRequest) (model.SelectionResponse, error)
}

// PageProvider serves the registered views.
type PageProvider struct {
	views map[string]view
	ids   []string
}

// NewPageProvider registers every view over svc.
func NewPageProvider(svc *resource.Services) *PageProvider {
	p := &PageProvider{views: make(map[string]view)}
	p.register("products", productsView(svc.Products))
	p.register("customers", customersView(svc.Customers))
	p.register("customer-groups", customerGroupsView(svc.CustomerGroups))
	p.register("customer-group-picker", customerGroupPickerView(svc.CustomerGroups))
	p.register("product-tags", productTagsView(svc.ProductTags))
	p.register("shipping-profiles", shippingProfilesView(svc.ShippingProfiles))
	p.register("product-type-products", productTypeProductsView(svc.Products))
	return p
}

func (p *PageProvider) register(id string, v view) {
	p.views[id] = v
	p.ids = append(p.ids, id)
}

// IDs returns the registered view ids in registration order.
func (p *PageProvider) IDs() []string {
	return append([]string(nil), p.ids...)
}

func (p *PageProvider) lookup(viewID string) (view, error) {
	v, ok := p.views[viewID]
	if !ok {
		return nil, model.NewNotFoundError(fmt.Sprintf("view %q not found", viewID))
	}
	return v, nil
}

// GetPage returns the descriptor of a view.
func (p *PageProvider) GetPage(viewID string) (model.PageDescriptor, error) {
	v, err := p.lookup(viewID)
	if err != nil {
		return model.PageDescriptor{}, err
	}
	return v.descriptor(), nil
}

// GetPageData returns the current page of a view. query is the view's URL
// state; parse and read errors are returned as they are.
func (p *PageProvider) GetPageData(ctx context.Context, viewID string, query url.Values) (resp model.DataResponse, err error) {
	v, err := p.lookup(viewID)
	if err != nil {
		return model.DataResponse{}, err
	}

	ctx, span := observability.StartSpan(ctx, "views.page_data", observability.AttrViewID.String(viewID))
	defer func() { observability.EndSpanWithError(span, err) }()

	resp, err = v.data(ctx, urlstate.NewStore(query))
	if err == nil {
		span.SetAttributes(observability.AttrItemCount.Int(resp.Data.Count))
	}
	return resp, err
}

// ApplySelection applies a selection change to the current page of a
// selectable view and updates the working set accordingly.
func (p *PageProvider) ApplySelection(ctx context.Context, viewID string, query url.Values, req model.SelectionRequest) (resp model.SelectionResponse, err error) {
	v, err := p.lookup(viewID)
	if err != nil {
		return model.SelectionResponse{}, err
	}
	if err := model.ValidatePayload(req); err != nil {
		return model.SelectionResponse{}, err
	}

	ctx, span := observability.StartSpan(ctx, "views.selection", observability.AttrViewID.String(viewID))
	defer func() { observability.EndSpanWithError(span, err) }()

	return v.selection(ctx, urlstate.NewStore(query), req)
}
