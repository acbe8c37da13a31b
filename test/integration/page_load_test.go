package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/storedesk/model"
)

type productPage struct {
	Data struct {
		Items     []model.Product       `json:"items"`
		Count     int                   `json:"count"`
		Offset    int                   `json:"offset"`
		PageIndex int                   `json:"page_index"`
		PageCount int                   `json:"page_count"`
		PageSize  int                   `json:"page_size"`
		Sort      *model.SortDescriptor `json:"sort"`
		NextQuery string                `json:"next_query"`
		PrevQuery string                `json:"prev_query"`
	} `json:"data"`
	Raw map[string]string `json:"raw"`
}

func TestPageLoad_descriptor(t *testing.T) {
	h := NewTestHarness(t)
	token := h.Token(AdminClaims())

	var desc model.PageDescriptor
	h.AssertJSON(t, h.GET("/ui/views/products", token), http.StatusOK, &desc)

	assert.Equal(t, "products", desc.ID)
	assert.NotEmpty(t, desc.Table.Columns)
	h.API().AssertCalled(t, http.MethodGet, "/admin/products", 0)
}

func TestPageLoad_unknownView(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.GET("/ui/views/orders", h.Token(AdminClaims()))
	h.AssertStatus(t, resp, http.StatusNotFound)
}

func TestPageLoad_forwardsTableStateToCommerceAPI(t *testing.T) {
	h := NewTestHarness(t)
	h.API().On(http.MethodGet, "/admin/products").
		RespondWith(http.StatusOK, ProductListFixture(ProductsFixture(20), 45, 20, 20))

	var page productPage
	resp := h.GET("/ui/views/products/data?offset=20&order=-created_at&status=draft,published", h.Token(AdminClaims()))
	h.AssertJSON(t, resp, http.StatusOK, &page)

	assert.Len(t, page.Data.Items, 20)
	assert.Equal(t, 45, page.Data.Count)
	assert.Equal(t, 1, page.Data.PageIndex)
	assert.Equal(t, 3, page.Data.PageCount)
	require.NotNil(t, page.Data.Sort)
	assert.Equal(t, "created_at", page.Data.Sort.Key)
	assert.True(t, page.Data.Sort.Desc)
	assert.Contains(t, page.Data.NextQuery, "offset=40")
	assert.NotContains(t, page.Data.PrevQuery, "offset=")
	assert.Equal(t, "20", page.Raw["offset"])

	req := h.API().LastRequest(http.MethodGet, "/admin/products")
	require.NotNil(t, req)
	assert.Equal(t, "20", req.Query.Get("limit"))
	assert.Equal(t, "20", req.Query.Get("offset"))
	assert.Equal(t, "-created_at", req.Query.Get("order"))
	assert.Equal(t, []string{"draft", "published"}, req.Query["status[]"])
}

func TestPageLoad_forwardsCallerIdentity(t *testing.T) {
	h := NewTestHarness(t)
	h.API().On(http.MethodGet, "/admin/products").
		RespondWith(http.StatusOK, ProductListFixture(nil, 0, 0, 20))
	token := h.Token(AdminClaims())

	resp := h.GETWithHeaders("/ui/views/products/data", token, map[string]string{
		"X-Correlation-Id": "corr-page-load",
		"Accept-Language":  "de-DE",
	})
	h.AssertStatus(t, resp, http.StatusOK)

	req := h.API().LastRequest(http.MethodGet, "/admin/products")
	require.NotNil(t, req)
	assert.Equal(t, "Bearer "+token, req.Headers.Get("Authorization"))
	assert.Equal(t, "corr-page-load", req.Headers.Get("X-Correlation-Id"))
	assert.Equal(t, "de-DE", req.Headers.Get("Accept-Language"))
}

func TestPageLoad_repeatedReadIsServedFromCache(t *testing.T) {
	h := NewTestHarness(t)
	h.API().On(http.MethodGet, "/admin/products").
		RespondWith(http.StatusOK, ProductListFixture(ProductsFixture(3), 3, 0, 20))
	token := h.Token(AdminClaims())

	for range 3 {
		var page productPage
		h.AssertJSON(t, h.GET("/ui/views/products/data?status=draft", token), http.StatusOK, &page)
		assert.Len(t, page.Data.Items, 3)
	}
	h.API().AssertCalled(t, http.MethodGet, "/admin/products", 1)

	// A different filter is a different query.
	h.AssertStatus(t, h.GET("/ui/views/products/data?status=published", token), http.StatusOK)
	h.API().AssertCalled(t, http.MethodGet, "/admin/products", 2)
}

func TestPageLoad_invalidParameterNeverReachesCommerceAPI(t *testing.T) {
	h := NewTestHarness(t)

	var body struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	h.AssertJSON(t, h.GET("/ui/views/products/data?offset=abc", h.Token(AdminClaims())), http.StatusBadRequest, &body)

	assert.Equal(t, model.ErrInvalidParameter, body.Error.Code)
	h.API().AssertCalled(t, http.MethodGet, "/admin/products", 0)
}

func TestPageLoad_productTypeSectionPagesLocally(t *testing.T) {
	h := NewTestHarness(t)
	h.API().On(http.MethodGet, "/admin/products").
		RespondWith(http.StatusOK, ProductListFixture(ProductsFixture(25), 25, 0, 9999))
	token := h.Token(AdminClaims())

	var first productPage
	h.AssertJSON(t, h.GET("/ui/views/product-type-products/data?product_type_id=ptyp_1", token), http.StatusOK, &first)
	assert.Len(t, first.Data.Items, 10)
	assert.Equal(t, 25, first.Data.Count)
	assert.Equal(t, 3, first.Data.PageCount)

	var last productPage
	h.AssertJSON(t, h.GET("/ui/views/product-type-products/data?product_type_id=ptyp_1&offset=20", token), http.StatusOK, &last)
	assert.Len(t, last.Data.Items, 5)
	assert.Equal(t, 2, last.Data.PageIndex)
	assert.Equal(t, "prod_21", last.Data.Items[0].ID)

	// Both pages come from one remote read.
	h.API().AssertCalled(t, http.MethodGet, "/admin/products", 1)
	req := h.API().LastRequest(http.MethodGet, "/admin/products")
	require.NotNil(t, req)
	assert.Equal(t, "9999", req.Query.Get("limit"))
	assert.Equal(t, "0", req.Query.Get("offset"))
	assert.Equal(t, []string{"ptyp_1"}, req.Query["type_id[]"])
}
