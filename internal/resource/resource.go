// Package resource holds the per-entity data-fetch services. Reads go through
// the query cache keyed by each entity's key factory; mutations validate
// their payload, make one write request and invalidate on success.
package resource

import (
	"context"
	"net/url"

	"go.uber.org/zap"

	"github.com/pitabwire/storedesk/internal/querycache"
	"github.com/pitabwire/storedesk/internal/querykey"
	"github.com/pitabwire/storedesk/model"
)

// Key factories, one per cached resource.
var (
	ProductKeys         = querykey.New("products")
	CustomerKeys        = querykey.New("customers")
	CustomerGroupKeys   = querykey.New("customer_groups")
	ProductTagKeys      = querykey.New("product_tags")
	ShippingProfileKeys = querykey.New("shipping_profiles")
	VendorPriceKeys     = querykey.New("vendor_variant_price")
	VendorInventoryKeys = querykey.New("vendor_variant_inv")
)

// API is the part of the commerce API client the services use.
// backend.Client implements it.
type API interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
	Post(ctx context.Context, path string, body, out any) error
}

// Recorder receives mutation outcomes. observability.Metrics implements it.
type Recorder interface {
	RecordMutation(operation, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordMutation(string, string) {}

// ListParams is implemented by every tablequery SearchParams type.
type ListParams interface {
	Filters() querykey.Filters
	RemoteQuery() url.Values
}

type pager[T any] interface {
	Page() model.ListPage[T]
}

// deps is shared by all services.
type deps struct {
	api      API
	cache    *querycache.Client
	logger   *zap.Logger
	recorder Recorder
}

// Option configures the services built by New.
type Option func(*deps)

// WithLogger sets the logger used for mutation logging.
func WithLogger(logger *zap.Logger) Option {
	return func(d *deps) {
		d.logger = logger
	}
}

// WithRecorder sets the mutation metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(d *deps) {
		d.recorder = r
	}
}

// Services bundles every resource service over one API client and one cache.
type Services struct {
	Products         *Products
	Customers        *Customers
	CustomerGroups   *CustomerGroups
	ProductTags      *ProductTags
	ShippingProfiles *ShippingProfiles
	VendorPrices     *VendorPrices
	VendorInventory  *VendorInventory
}

// New creates all services.
func New(api API, cache *querycache.Client, opts ...Option) *Services {
	d := &deps{
		api:      api,
		cache:    cache,
		logger:   zap.NewNop(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return &Services{
		Products:         &Products{d},
		Customers:        &Customers{d},
		CustomerGroups:   &CustomerGroups{d},
		ProductTags:      &ProductTags{d},
		ShippingProfiles: &ShippingProfiles{d},
		VendorPrices:     &VendorPrices{d},
		VendorInventory:  &VendorInventory{d},
	}
}

// list reads a paginated list through the cache. R is the wire envelope.
func list[T any, R pager[T]](ctx context.Context, d *deps, keys querykey.Factory, path string, params ListParams) (model.ListPage[T], error) {
	key := keys.List(params.Filters())
	return querycache.Fetch(ctx, d.cache, key, func(ctx context.Context) (model.ListPage[T], error) {
		var resp R
		if err := d.api.Get(ctx, path, params.RemoteQuery(), &resp); err != nil {
			return model.ListPage[T]{}, err
		}
		return resp.Page(), nil
	})
}

// detail reads one entity through the cache. unwrap extracts the entity
// from the wire envelope R.
func detail[T, R any](ctx context.Context, d *deps, keys querykey.Factory, path, id, fields string, unwrap func(R) T) (T, error) {
	var filters querykey.Filters
	var query url.Values
	if fields != "" {
		filters = querykey.Filters{"fields": fields}
		query = url.Values{"fields": {fields}}
	}
	return querycache.Fetch(ctx, d.cache, keys.Detail(id, filters), func(ctx context.Context) (T, error) {
		var resp R
		if err := d.api.Get(ctx, path+"/"+url.PathEscape(id), query, &resp); err != nil {
			var zero T
			return zero, err
		}
		return unwrap(resp), nil
	})
}

// mutate validates payload, performs one write and, only when it succeeded,
// invalidates every prefix in order.
func (d *deps) mutate(ctx context.Context, operation string, payload any, write func(context.Context) error, invalidate ...querykey.Key) error {
	if err := model.ValidatePayload(payload); err != nil {
		d.recorder.RecordMutation(operation, "invalid")
		return err
	}
	if err := write(ctx); err != nil {
		d.recorder.RecordMutation(operation, "failed")
		d.logger.Warn("mutation failed",
			zap.String("operation", operation),
			zap.Error(err),
		)
		return err
	}
	for _, prefix := range invalidate {
		d.cache.Invalidate(ctx, prefix)
	}
	d.recorder.RecordMutation(operation, "ok")
	d.logger.Info("mutation applied",
		zap.String("operation", operation),
		zap.Int("invalidated", len(invalidate)),
	)
	return nil
}
