package model

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// VendorPriceUpsert creates or replaces one vendor price of a variant.
type VendorPriceUpsert struct {
	BuyerType    string          `json:"buyer_type" validate:"required,oneof=admin reseller customer"`
	BuyerID      *string         `json:"buyer_id,omitempty" validate:"omitempty,min=1"`
	BuyerGroupID *string         `json:"buyer_group_id,omitempty" validate:"omitempty,min=1"`
	Price        decimal.Decimal `json:"price"`
}

// VendorPriceBatchItem is one row of a batch vendor price upsert.
type VendorPriceBatchItem struct {
	VariantID    string          `json:"variant_id" validate:"required"`
	BuyerType    string          `json:"buyer_type" validate:"required,oneof=admin reseller customer"`
	BuyerID      *string         `json:"buyer_id,omitempty" validate:"omitempty,min=1"`
	BuyerGroupID *string         `json:"buyer_group_id,omitempty" validate:"omitempty,min=1"`
	Price        decimal.Decimal `json:"price"`
}

// VendorPriceBatch upserts vendor prices for any number of variants.
type VendorPriceBatch struct {
	Prices []VendorPriceBatchItem `json:"prices" validate:"required,min=1,dive"`
}

// InventoryAdjustment changes a vendor stock level either by a relative delta
// or to an absolute quantity.
type InventoryAdjustment struct {
	Delta    *int `json:"delta,omitempty" validate:"required_without=Quantity"`
	Quantity *int `json:"quantity,omitempty" validate:"required_without=Delta"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func payloadValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(jsonFieldName)
	})
	return validate
}

// ValidatePayload checks a mutation payload against its validate tags and
// rejects negative amounts and quantities. It returns a VALIDATION_ERROR envelope listing
// every failed field.
func ValidatePayload(payload any) error {
	var details []FieldError

	err := payloadValidator().Struct(payload)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			details = append(details, FieldError{
				Field:   trimRoot(fe.Namespace()),
				Code:    strings.ToUpper(fe.Tag()),
				Message: "failed on the '" + fe.Tag() + "' rule",
			})
		}
	} else if err != nil {
		return err
	}

	details = append(details, negativeAmounts(payload)...)
	if len(details) > 0 {
		return NewValidationError(details)
	}
	return nil
}

func negativeAmounts(payload any) []FieldError {
	negative := FieldError{Field: "price", Code: "MIN", Message: "price must not be negative"}
	switch p := payload.(type) {
	case VendorPriceUpsert:
		if p.Price.IsNegative() {
			return []FieldError{negative}
		}
	case *VendorPriceUpsert:
		return negativeAmounts(*p)
	case VendorPriceBatch:
		var out []FieldError
		for _, item := range p.Prices {
			if item.Price.IsNegative() {
				out = append(out, FieldError{Field: "prices.price", Code: negative.Code, Message: negative.Message})
			}
		}
		return out
	case *VendorPriceBatch:
		return negativeAmounts(*p)
	case InventoryAdjustment:
		if p.Quantity != nil && *p.Quantity < 0 {
			return []FieldError{{Field: "quantity", Code: "MIN", Message: "quantity must not be negative"}}
		}
	case *InventoryAdjustment:
		return negativeAmounts(*p)
	}
	return nil
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}

// trimRoot drops the struct type name validator prefixes namespaces with.
func trimRoot(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
