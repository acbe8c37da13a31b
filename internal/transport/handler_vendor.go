package transport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/storedesk/internal/pricing"
	"github.com/pitabwire/storedesk/model"
)

// CustomerGroupReader reads one customer group. resource.CustomerGroups
// implements it.
type CustomerGroupReader interface {
	Get(ctx context.Context, id, fields string) (model.CustomerGroup, error)
}

// VendorPriceStore reads and writes vendor variant prices.
// resource.VendorPrices implements it.
type VendorPriceStore interface {
	ForVariant(ctx context.Context, variantID string) ([]model.VendorVariantPrice, error)
	Upsert(ctx context.Context, variantID string, payload model.VendorPriceUpsert) (model.VendorVariantPrice, error)
	UpsertBatch(ctx context.Context, batch model.VendorPriceBatch) error
}

// InventoryStore reads and adjusts vendor variant stock.
// resource.VendorInventory implements it.
type InventoryStore interface {
	Get(ctx context.Context, variantID string) (*model.VendorVariantInventory, error)
	Adjust(ctx context.Context, variantID string, adj model.InventoryAdjustment) (*model.VendorVariantInventory, error)
}

// PricingFlows runs the product pricing form and the vendor panel.
// pricing.Service implements it.
type PricingFlows interface {
	EditForm(ctx context.Context, productID, variantID string) (pricing.Form, error)
	Save(ctx context.Context, form pricing.Form) (model.VendorPriceBatch, error)
	Panel(ctx context.Context, variantID string) (pricing.Panel, error)
}

func handleGetCustomerGroup(groups CustomerGroupReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		group, err := groups.Get(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("fields"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"customer_group": group})
	}
}

func handleListVendorPrices(prices VendorPriceStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := prices.ForVariant(r.Context(), chi.URLParam(r, "variantId"))
		if err != nil {
			WriteError(w, err)
			return
		}
		if rows == nil {
			rows = []model.VendorVariantPrice{}
		}
		WriteJSON(w, http.StatusOK, map[string]any{"prices": rows})
	}
}

func handleUpsertVendorPrice(prices VendorPriceStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload model.VendorPriceUpsert
		if err := decodeBody(w, r, &payload); err != nil {
			WriteError(w, err)
			return
		}
		price, err := prices.Upsert(r.Context(), chi.URLParam(r, "variantId"), payload)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"price": price})
	}
}

func handleUpsertVendorPriceBatch(prices VendorPriceStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var batch model.VendorPriceBatch
		if err := decodeBody(w, r, &batch); err != nil {
			WriteError(w, err)
			return
		}
		if err := prices.UpsertBatch(r.Context(), batch); err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"updated": len(batch.Prices)})
	}
}

func handleGetInventory(inventory InventoryStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inv, err := inventory.Get(r.Context(), chi.URLParam(r, "variantId"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"inventory": inv})
	}
}

func handleAdjustInventory(inventory InventoryStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var adj model.InventoryAdjustment
		if err := decodeBody(w, r, &adj); err != nil {
			WriteError(w, err)
			return
		}
		inv, err := inventory.Adjust(r.Context(), chi.URLParam(r, "variantId"), adj)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"inventory": inv})
	}
}

func handleVendorPanel(flows PricingFlows) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		panel, err := flows.Panel(r.Context(), chi.URLParam(r, "variantId"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, panel)
	}
}

// handleGetPricingForm returns the pricing form of a product, restricted to
// one variant when the variant_id query parameter is set.
func handleGetPricingForm(flows PricingFlows) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form, err := flows.EditForm(r.Context(), chi.URLParam(r, "productId"), r.URL.Query().Get("variant_id"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, form)
	}
}

// handleSavePricingForm saves a submitted form. The product id of the path
// wins over the one in the body.
func handleSavePricingForm(flows PricingFlows) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var form pricing.Form
		if err := decodeBody(w, r, &form); err != nil {
			WriteError(w, err)
			return
		}
		form.ProductID = chi.URLParam(r, "productId")

		batch, err := flows.Save(r.Context(), form)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"saved": len(batch.Prices), "batch": batch})
	}
}
