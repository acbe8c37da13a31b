package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/storedesk/internal/config"
	"github.com/pitabwire/storedesk/internal/observability"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *observability.Metrics
	Readiness observability.ReadinessChecks

	// Authenticate defaults to VerifyBearer against Config.Identity.
	Authenticate func(http.Handler) http.Handler

	Views          ViewProvider
	CustomerGroups CustomerGroupReader
	VendorPrices   VendorPriceStore
	Inventory      InventoryStore
	Pricing        PricingFlows
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery(logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	r.Use(observability.TracingMiddleware)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.MetricsMiddleware)
	}

	// Public routes.
	r.Get("/ui/health", observability.HandleHealth())
	r.Get("/ui/ready", observability.HandleReady(deps.Readiness))
	if deps.Config.Observability.Metrics.Enabled {
		r.Method(http.MethodGet, deps.Config.Observability.Metrics.Path, observability.Handler())
	}

	auth := deps.Authenticate
	if auth == nil {
		identity := deps.Config.Identity
		auth = VerifyBearer(identity, NewKeySet(identity, logger.Named("jwks")), logger)
	}

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Use(BuildRequestContext)
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(logger))

		r.Get("/ui/views/{viewId}", handleGetView(deps.Views))
		r.Get("/ui/views/{viewId}/data", handleGetViewData(deps.Views))
		r.Post("/ui/views/{viewId}/selection", handleApplySelection(deps.Views))

		r.Get("/ui/customer-groups/{id}", handleGetCustomerGroup(deps.CustomerGroups))

		r.Post("/ui/variants/prices/batch", handleUpsertVendorPriceBatch(deps.VendorPrices))
		r.Get("/ui/variants/{variantId}/vendor-prices", handleListVendorPrices(deps.VendorPrices))
		r.Post("/ui/variants/{variantId}/vendor-prices", handleUpsertVendorPrice(deps.VendorPrices))
		r.Get("/ui/variants/{variantId}/inventory", handleGetInventory(deps.Inventory))
		r.Post("/ui/variants/{variantId}/inventory", handleAdjustInventory(deps.Inventory))
		r.Get("/ui/variants/{variantId}/vendor-panel", handleVendorPanel(deps.Pricing))

		r.Get("/ui/products/{productId}/pricing", handleGetPricingForm(deps.Pricing))
		r.Post("/ui/products/{productId}/pricing", handleSavePricingForm(deps.Pricing))
	})

	return r
}
