package resource

import (
	"context"
	"net/url"
	"slices"
	"strings"

	"github.com/pitabwire/storedesk/internal/querycache"
	"github.com/pitabwire/storedesk/internal/querykey"
	"github.com/pitabwire/storedesk/model"
)

// VendorPrices reads and writes vendor-specific variant prices.
type VendorPrices struct{ d *deps }

// ForVariant returns the vendor prices of one variant.
func (s *VendorPrices) ForVariant(ctx context.Context, variantID string) ([]model.VendorVariantPrice, error) {
	key := VendorPriceKeys.Detail(variantID, nil)
	return querycache.Fetch(ctx, s.d.cache, key, func(ctx context.Context) ([]model.VendorVariantPrice, error) {
		var resp model.VendorPricesResponse
		if err := s.d.api.Get(ctx, "/vendor/variants/"+url.PathEscape(variantID)+"/prices", nil, &resp); err != nil {
			return nil, err
		}
		return resp.Prices, nil
	})
}

// ForVariants returns the vendor prices of several variants in one request.
// The id order does not affect caching.
func (s *VendorPrices) ForVariants(ctx context.Context, variantIDs []string) ([]model.VendorVariantPrice, error) {
	if len(variantIDs) == 0 {
		return nil, nil
	}
	ids := slices.Clone(variantIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	key := VendorPriceKeys.List(querykey.Filters{"variant_ids": ids})
	return querycache.Fetch(ctx, s.d.cache, key, func(ctx context.Context) ([]model.VendorVariantPrice, error) {
		var resp model.VendorPricesResponse
		query := url.Values{"variant_ids": {strings.Join(ids, ",")}}
		if err := s.d.api.Get(ctx, "/vendor/variants/prices", query, &resp); err != nil {
			return nil, err
		}
		return resp.Prices, nil
	})
}

// Upsert creates or replaces one vendor price of variantID.
func (s *VendorPrices) Upsert(ctx context.Context, variantID string, payload model.VendorPriceUpsert) (model.VendorVariantPrice, error) {
	var resp struct {
		Price model.VendorVariantPrice `json:"price"`
	}
	err := s.d.mutate(ctx, "vendor_price.upsert", payload,
		func(ctx context.Context) error {
			return s.d.api.Post(ctx, "/vendor/variants/"+url.PathEscape(variantID)+"/prices", payload, &resp)
		},
		VendorPriceKeys.Detail(variantID, nil),
		VendorPriceKeys.Lists(),
	)
	return resp.Price, err
}

// UpsertBatch writes vendor prices for many variants in one request and
// invalidates each affected variant once.
func (s *VendorPrices) UpsertBatch(ctx context.Context, batch model.VendorPriceBatch) error {
	return s.d.mutate(ctx, "vendor_price.batch", batch,
		func(ctx context.Context) error {
			return s.d.api.Post(ctx, "/vendor/variants/prices/batch", batch, nil)
		},
		batchInvalidations(batch)...,
	)
}

// batchInvalidations returns the detail key of every distinct variant in
// first-seen order, followed by the multi-variant lists.
func batchInvalidations(batch model.VendorPriceBatch) []querykey.Key {
	seen := make(map[string]struct{}, len(batch.Prices))
	keys := make([]querykey.Key, 0, len(batch.Prices)+1)
	for _, p := range batch.Prices {
		if _, ok := seen[p.VariantID]; ok {
			continue
		}
		seen[p.VariantID] = struct{}{}
		keys = append(keys, VendorPriceKeys.Detail(p.VariantID, nil))
	}
	return append(keys, VendorPriceKeys.Lists())
}

// VendorInventory reads and adjusts vendor stock levels.
type VendorInventory struct{ d *deps }

// Get returns the vendor stock of variantID, or nil when none is recorded.
func (s *VendorInventory) Get(ctx context.Context, variantID string) (*model.VendorVariantInventory, error) {
	key := VendorInventoryKeys.Detail(variantID, nil)
	return querycache.Fetch(ctx, s.d.cache, key, func(ctx context.Context) (*model.VendorVariantInventory, error) {
		var resp model.VendorInventoryResponse
		if err := s.d.api.Get(ctx, "/vendor/variants/"+url.PathEscape(variantID)+"/inventory", nil, &resp); err != nil {
			return nil, err
		}
		return resp.Inventory, nil
	})
}

// Adjust changes the vendor stock of variantID and returns the new level.
func (s *VendorInventory) Adjust(ctx context.Context, variantID string, adj model.InventoryAdjustment) (*model.VendorVariantInventory, error) {
	var resp model.VendorInventoryResponse
	err := s.d.mutate(ctx, "vendor_inventory.adjust", adj,
		func(ctx context.Context) error {
			return s.d.api.Post(ctx, "/vendor/variants/"+url.PathEscape(variantID)+"/inventory", adj, &resp)
		},
		VendorInventoryKeys.Detail(variantID, nil),
	)
	return resp.Inventory, err
}
