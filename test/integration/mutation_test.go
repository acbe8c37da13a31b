package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/storedesk/internal/pricing"
	"github.com/pitabwire/storedesk/model"
)

const variantPricesPath = "/vendor/variants/variant_1/prices"

type pricesBody struct {
	Prices []model.VendorVariantPrice `json:"prices"`
}

func TestMutation_vendorPriceUpsertRefreshesReads(t *testing.T) {
	h := NewTestHarness(t)
	h.API().On(http.MethodGet, variantPricesPath).
		RespondWith(http.StatusOK, map[string]any{"prices": []any{
			VendorPriceFixture("vvp_1", "variant_1", "admin", 10),
		}}).
		RespondWith(http.StatusOK, map[string]any{"prices": []any{
			VendorPriceFixture("vvp_1", "variant_1", "admin", 10),
			VendorPriceFixture("vvp_2", "variant_1", "reseller", 8.5),
		}})
	h.API().On(http.MethodPost, variantPricesPath).
		RespondWith(http.StatusOK, map[string]any{"price": VendorPriceFixture("vvp_2", "variant_1", "reseller", 8.5)})
	token := h.Token(AdminClaims())

	var before pricesBody
	h.AssertJSON(t, h.GET("/ui/variants/variant_1/vendor-prices", token), http.StatusOK, &before)
	h.AssertStatus(t, h.GET("/ui/variants/variant_1/vendor-prices", token), http.StatusOK)
	assert.Len(t, before.Prices, 1)
	h.API().AssertCalled(t, http.MethodGet, variantPricesPath, 1)

	var created struct {
		Price model.VendorVariantPrice `json:"price"`
	}
	resp := h.POST("/ui/variants/variant_1/vendor-prices", map[string]any{
		"buyer_type": "reseller",
		"price":      8.5,
	}, token)
	h.AssertJSON(t, resp, http.StatusOK, &created)
	assert.Equal(t, "vvp_2", created.Price.ID)

	sent := h.API().LastRequest(http.MethodPost, variantPricesPath)
	require.NotNil(t, sent)
	assert.Equal(t, "reseller", sent.Body["buyer_type"])
	assert.InDelta(t, 8.5, sent.Body["price"], 0.0001)

	var after pricesBody
	h.AssertJSON(t, h.GET("/ui/variants/variant_1/vendor-prices", token), http.StatusOK, &after)
	assert.Len(t, after.Prices, 2)
	h.API().AssertCalled(t, http.MethodGet, variantPricesPath, 2)
}

func TestMutation_invalidPayloadIsRejectedLocally(t *testing.T) {
	h := NewTestHarness(t)

	var body errorBody
	resp := h.POST("/ui/variants/variant_1/vendor-prices", map[string]any{
		"buyer_type": "wholesaler",
		"price":      3,
	}, h.Token(AdminClaims()))
	h.AssertJSON(t, resp, http.StatusUnprocessableEntity, &body)

	assert.Equal(t, model.ErrValidationError, body.Error.Code)
	h.API().AssertCalled(t, http.MethodPost, variantPricesPath, 0)
}

func TestMutation_failedWriteKeepsCachedReads(t *testing.T) {
	h := NewTestHarness(t)
	h.API().On(http.MethodGet, variantPricesPath).
		RespondWith(http.StatusOK, map[string]any{"prices": []any{}})
	h.API().On(http.MethodPost, variantPricesPath).
		RespondWithError(http.StatusConflict, "price changed concurrently")
	token := h.Token(AdminClaims())

	h.AssertStatus(t, h.GET("/ui/variants/variant_1/vendor-prices", token), http.StatusOK)
	resp := h.POST("/ui/variants/variant_1/vendor-prices", map[string]any{
		"buyer_type": "admin",
		"price":      1,
	}, token)
	h.AssertStatus(t, resp, http.StatusConflict)
	h.AssertStatus(t, h.GET("/ui/variants/variant_1/vendor-prices", token), http.StatusOK)

	h.API().AssertCalled(t, http.MethodGet, variantPricesPath, 1)
}

func TestMutation_inventoryAdjustRefreshesStock(t *testing.T) {
	const path = "/vendor/variants/variant_1/inventory"
	h := NewTestHarness(t)
	h.API().On(http.MethodGet, path).
		RespondWith(http.StatusOK, map[string]any{"inventory": map[string]any{"id": "vinv_1", "variant_id": "variant_1", "quantity": 4}}).
		RespondWith(http.StatusOK, map[string]any{"inventory": map[string]any{"id": "vinv_1", "variant_id": "variant_1", "quantity": 9}})
	h.API().On(http.MethodPost, path).
		RespondWith(http.StatusOK, map[string]any{"inventory": map[string]any{"id": "vinv_1", "variant_id": "variant_1", "quantity": 9}})
	token := h.Token(AdminClaims())

	h.AssertStatus(t, h.GET("/ui/variants/variant_1/inventory", token), http.StatusOK)
	h.AssertStatus(t, h.POST("/ui/variants/variant_1/inventory", map[string]any{"delta": 5}, token), http.StatusOK)

	var body struct {
		Inventory model.VendorVariantInventory `json:"inventory"`
	}
	h.AssertJSON(t, h.GET("/ui/variants/variant_1/inventory", token), http.StatusOK, &body)
	assert.Equal(t, 9, body.Inventory.Quantity)
	h.API().AssertCalled(t, http.MethodGet, path, 2)
}

func TestMutation_pricingFormRoundTrip(t *testing.T) {
	h := NewTestHarness(t)
	h.API().On(http.MethodGet, "/admin/products/prod_1").
		RespondWith(http.StatusOK, map[string]any{"product": map[string]any{
			"id":    "prod_1",
			"title": "Linen Shirt",
			"variants": []any{
				map[string]any{"id": "variant_1", "title": "S", "prices": []any{
					map[string]any{"id": "price_1", "amount": 25, "currency_code": "eur", "rules": map[string]any{}},
				}},
				map[string]any{"id": "variant_2", "title": "M"},
			},
		}})
	h.API().On(http.MethodGet, "/vendor/variants/prices").
		RespondWith(http.StatusOK, map[string]any{"prices": []any{
			VendorPriceFixture("vvp_1", "variant_1", "reseller", 20),
		}})
	h.API().On(http.MethodPost, "/vendor/variants/prices/batch").
		RespondWith(http.StatusOK, map[string]any{})
	token := h.Token(AdminClaims())

	var form pricing.Form
	h.AssertJSON(t, h.GET("/ui/products/prod_1/pricing", token), http.StatusOK, &form)
	require.Len(t, form.Variants, 2)
	assert.Equal(t, "25", form.Variants[0].Prices["eur"])
	assert.Equal(t, "20", form.Variants[0].VendorPrices["reseller"])
	assert.Equal(t, "", form.Variants[1].VendorPrices["admin"])

	read := h.API().LastRequest(http.MethodGet, "/vendor/variants/prices")
	require.NotNil(t, read)
	assert.Equal(t, "variant_1,variant_2", read.Query.Get("variant_ids"))

	form.Variants[1].VendorPrices["admin"] = "18.40"
	var saved struct {
		Saved int `json:"saved"`
	}
	h.AssertJSON(t, h.POST("/ui/products/prod_1/pricing", form, token), http.StatusOK, &saved)
	assert.Equal(t, 2, saved.Saved)

	sent := h.API().LastRequest(http.MethodPost, "/vendor/variants/prices/batch")
	require.NotNil(t, sent)
	rows, ok := sent.Body["prices"].([]any)
	require.True(t, ok)
	assert.Len(t, rows, 2)

	// The prefill read is refetched after the save.
	h.AssertStatus(t, h.GET("/ui/products/prod_1/pricing", token), http.StatusOK)
	h.API().AssertCalled(t, http.MethodGet, "/vendor/variants/prices", 2)
	h.API().AssertCalled(t, http.MethodGet, "/admin/products/prod_1", 1)
}

func TestMutation_invalidationReachesOtherInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	api := NewMockAPI(t)
	api.On(http.MethodGet, variantPricesPath).
		RespondWith(http.StatusOK, map[string]any{"prices": []any{}})
	api.On(http.MethodPost, variantPricesPath).
		RespondWith(http.StatusOK, map[string]any{"price": VendorPriceFixture("vvp_1", "variant_1", "admin", 5)})

	a := NewTestHarness(t, WithMockAPI(api), WithSharedInvalidation(rdb))
	b := NewTestHarness(t, WithMockAPI(api), WithSharedInvalidation(rdb))
	token := a.Token(AdminClaims())

	a.AssertStatus(t, a.GET("/ui/variants/variant_1/vendor-prices", token), http.StatusOK)
	b.AssertStatus(t, b.GET("/ui/variants/variant_1/vendor-prices", token), http.StatusOK)
	api.AssertCalled(t, http.MethodGet, variantPricesPath, 2)
	require.Equal(t, 2, a.Cache().Len()+b.Cache().Len())

	resp := a.POST("/ui/variants/variant_1/vendor-prices", map[string]any{
		"buyer_type": "admin",
		"price":      5,
	}, token)
	a.AssertStatus(t, resp, http.StatusOK)

	assert.Eventually(t, func() bool {
		return b.Cache().Len() == 0
	}, 2*time.Second, 10*time.Millisecond)

	b.AssertStatus(t, b.GET("/ui/variants/variant_1/vendor-prices", token), http.StatusOK)
	api.AssertCalled(t, http.MethodGet, variantPricesPath, 3)

	var ready struct {
		Status string `json:"status"`
	}
	b.AssertJSON(t, b.GET("/ui/ready", ""), http.StatusOK, &ready)
	assert.Equal(t, "ready", ready.Status)
}
