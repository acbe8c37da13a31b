// Package pricing builds the vendor price editing flows of a product: the
// edit form with core price defaults and prefilled vendor prices, the batch
// payload built from a submitted form, and the per-variant vendor panel.
package pricing

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pitabwire/storedesk/internal/observability"
	"github.com/pitabwire/storedesk/model"
)

// BuyerTypes lists the vendor buyer types in display order.
var BuyerTypes = []string{model.BuyerAdmin, model.BuyerReseller, model.BuyerCustomer}

// productFields selects what the edit form needs from a product.
const productFields = "id,title,*variants,*variants.prices"

// VendorPriceService is the vendor price data the flows read and write.
// resource.VendorPrices implements it.
type VendorPriceService interface {
	ForVariant(ctx context.Context, variantID string) ([]model.VendorVariantPrice, error)
	ForVariants(ctx context.Context, variantIDs []string) ([]model.VendorVariantPrice, error)
	UpsertBatch(ctx context.Context, batch model.VendorPriceBatch) error
}

// InventoryReader reads vendor stock. resource.VendorInventory implements it.
type InventoryReader interface {
	Get(ctx context.Context, variantID string) (*model.VendorVariantInventory, error)
}

// ProductReader reads one product. resource.Products implements it.
type ProductReader interface {
	Get(ctx context.Context, id, fields string) (model.Product, error)
}

// VariantForm holds the editable prices of one variant. Values are the raw
// form strings; an empty value means unset.
type VariantForm struct {
	VariantID    string            `json:"variant_id"`
	Title        string            `json:"title,omitempty"`
	Prices       map[string]string `json:"prices"`
	VendorPrices map[string]string `json:"vendor_prices"`
}

// Form is the pricing edit form of a product.
type Form struct {
	ProductID string        `json:"product_id"`
	Variants  []VariantForm `json:"variants"`
}

// Service runs the pricing flows.
type Service struct {
	products  ProductReader
	prices    VendorPriceService
	inventory InventoryReader
	logger    *zap.Logger
}

// NewService creates a Service.
func NewService(products ProductReader, prices VendorPriceService, inventory InventoryReader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		products:  products,
		prices:    prices,
		inventory: inventory,
		logger:    logger,
	}
}

// EditForm loads the product and returns its pricing form, restricted to
// variantID when it is not empty, with vendor prices prefilled.
func (s *Service) EditForm(ctx context.Context, productID, variantID string) (_ Form, err error) {
	ctx, span := observability.StartSpan(ctx, "pricing.edit_form",
		observability.AttrProductID.String(productID),
		observability.AttrVariantID.String(variantID),
	)
	defer func() { observability.EndSpanWithError(span, err) }()

	product, err := s.products.Get(ctx, productID, productFields)
	if err != nil {
		return Form{}, err
	}
	form := NewForm(product, variantID)
	if variantID != "" && len(form.Variants) == 0 {
		return Form{}, model.NewNotFoundError(fmt.Sprintf("variant %q not found on product %q", variantID, productID))
	}
	Prefill(ctx, s.logger, s.prices, &form)
	return form, nil
}

// Save writes the vendor prices of a submitted form in one batch and
// returns what was sent. A form without any vendor price writes nothing.
func (s *Service) Save(ctx context.Context, form Form) (_ model.VendorPriceBatch, err error) {
	ctx, span := observability.StartSpan(ctx, "pricing.save", observability.AttrProductID.String(form.ProductID))
	defer func() { observability.EndSpanWithError(span, err) }()

	batch, err := BuildBatch(form)
	if err != nil {
		return model.VendorPriceBatch{}, err
	}
	if len(batch.Prices) == 0 {
		return batch, nil
	}
	span.SetAttributes(observability.AttrItemCount.Int(len(batch.Prices)))
	if err := s.prices.UpsertBatch(ctx, batch); err != nil {
		return model.VendorPriceBatch{}, err
	}
	return batch, nil
}

// NewForm builds the form of product. With a non-empty variantID only that
// variant is included.
func NewForm(product model.Product, variantID string) Form {
	form := Form{ProductID: product.ID, Variants: []VariantForm{}}
	for _, v := range product.Variants {
		if variantID != "" && v.ID != variantID {
			continue
		}
		form.Variants = append(form.Variants, VariantForm{
			VariantID:    v.ID,
			Title:        v.Title,
			Prices:       CorePriceDefaults(v.Prices),
			VendorPrices: emptyVendorPrices(),
		})
	}
	return form
}

func emptyVendorPrices() map[string]string {
	m := make(map[string]string, len(BuyerTypes))
	for _, bt := range BuyerTypes {
		m[bt] = ""
	}
	return m
}

// CorePriceDefaults keys each core price by its region rule, or by its
// currency when it has none.
func CorePriceDefaults(prices []model.Price) map[string]string {
	out := make(map[string]string, len(prices))
	for _, p := range prices {
		key := p.CurrencyCode
		if p.Rules.RegionID != "" {
			key = p.Rules.RegionID
		}
		out[key] = p.Amount.String()
	}
	return out
}

// Prefill fills the vendor prices of every variant in form from one read of
// the vendor price API. It is best effort: a failed read leaves the values
// empty.
func Prefill(ctx context.Context, logger *zap.Logger, prices VendorPriceService, form *Form) {
	if len(form.Variants) == 0 {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ids := make([]string, 0, len(form.Variants))
	for _, v := range form.Variants {
		ids = append(ids, v.VariantID)
	}

	rows, err := prices.ForVariants(ctx, ids)
	if err != nil {
		logger.Debug("vendor price prefill failed", zap.Strings("variant_ids", ids), zap.Error(err))
		return
	}

	for _, row := range rows {
		idx := slices.IndexFunc(form.Variants, func(v VariantForm) bool { return v.VariantID == row.VariantID })
		if idx < 0 || !slices.Contains(BuyerTypes, row.BuyerType) {
			continue
		}
		if form.Variants[idx].VendorPrices == nil {
			form.Variants[idx].VendorPrices = emptyVendorPrices()
		}
		form.Variants[idx].VendorPrices[row.BuyerType] = row.Price.String()
	}
}

// BuildBatch turns the vendor prices of form into a batch payload. Empty
// values are dropped; values that are not numbers fail validation.
func BuildBatch(form Form) (model.VendorPriceBatch, error) {
	batch := model.VendorPriceBatch{Prices: []model.VendorPriceBatchItem{}}
	var details []model.FieldError

	for i, v := range form.Variants {
		for _, buyerType := range sortedBuyerTypes(v.VendorPrices) {
			raw := strings.TrimSpace(v.VendorPrices[buyerType])
			if raw == "" {
				continue
			}
			price, err := decimal.NewFromString(raw)
			if err != nil {
				details = append(details, model.FieldError{
					Field:   fmt.Sprintf("variants.%d.vendor_prices.%s", i, buyerType),
					Code:    "NUMBER",
					Message: fmt.Sprintf("%q is not a number", raw),
				})
				continue
			}
			batch.Prices = append(batch.Prices, model.VendorPriceBatchItem{
				VariantID: v.VariantID,
				BuyerType: buyerType,
				Price:     price,
			})
		}
	}

	if len(details) > 0 {
		return model.VendorPriceBatch{}, model.NewValidationError(details)
	}
	return batch, nil
}

func sortedBuyerTypes(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		return cmp.Or(cmp.Compare(buyerRank(a), buyerRank(b)), cmp.Compare(a, b))
	})
	return keys
}

func buyerRank(buyerType string) int {
	if i := slices.Index(BuyerTypes, buyerType); i >= 0 {
		return i
	}
	return len(BuyerTypes)
}

// SortByBuyerType orders prices admin, reseller, customer, with unknown
// buyer types last. The sort is stable.
func SortByBuyerType(prices []model.VendorVariantPrice) {
	slices.SortStableFunc(prices, func(a, b model.VendorVariantPrice) int {
		return cmp.Compare(buyerRank(a.BuyerType), buyerRank(b.BuyerType))
	})
}

// Label renders a price row as "Reseller:buyer:group", omitting absent ids.
func Label(p model.VendorVariantPrice) string {
	var b strings.Builder
	if p.BuyerType != "" {
		b.WriteString(strings.ToUpper(p.BuyerType[:1]))
		b.WriteString(p.BuyerType[1:])
	}
	if p.BuyerID != nil && *p.BuyerID != "" {
		b.WriteString(":" + *p.BuyerID)
	}
	if p.BuyerGroupID != nil && *p.BuyerGroupID != "" {
		b.WriteString(":" + *p.BuyerGroupID)
	}
	return b.String()
}

// PanelRow is one labelled vendor price.
type PanelRow struct {
	Label string `json:"label"`
	model.VendorVariantPrice
}

// Panel is the vendor section of a variant page.
type Panel struct {
	VariantID string                        `json:"variant_id"`
	Prices    []PanelRow                    `json:"prices"`
	Inventory *model.VendorVariantInventory `json:"inventory"`
}

// Panel loads the vendor prices and stock of variantID concurrently.
func (s *Service) Panel(ctx context.Context, variantID string) (_ Panel, err error) {
	ctx, span := observability.StartSpan(ctx, "pricing.panel", observability.AttrVariantID.String(variantID))
	defer func() { observability.EndSpanWithError(span, err) }()

	var (
		prices    []model.VendorVariantPrice
		inventory *model.VendorVariantInventory
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		prices, err = s.prices.ForVariant(gctx, variantID)
		return err
	})
	g.Go(func() error {
		var err error
		inventory, err = s.inventory.Get(gctx, variantID)
		return err
	})
	if err = g.Wait(); err != nil {
		return Panel{}, err
	}

	sorted := slices.Clone(prices)
	SortByBuyerType(sorted)
	rows := make([]PanelRow, 0, len(sorted))
	for _, p := range sorted {
		rows = append(rows, PanelRow{Label: Label(p), VendorVariantPrice: p})
	}
	return Panel{VariantID: variantID, Prices: rows, Inventory: inventory}, nil
}
