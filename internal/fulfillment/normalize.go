package fulfillment

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/safar/go-fulfillment/internal/models"
)

// NormalizeItem folds the synonymous spellings of a line item into one
// LineItem. The first present spelling wins; qty defaults to 1 when neither
// qty nor quantity is present.
func NormalizeItem(in models.LineItemInput) (models.LineItem, error) {
	variantID := firstInt64(in.VariantID, in.ProductID)
	if variantID == nil || *variantID <= 0 {
		return models.LineItem{}, &InvalidItemError{Reason: "missing variant id"}
	}

	qty := 1
	if q := firstInt(in.Qty, in.Quantity); q != nil {
		qty = *q
	}
	if qty <= 0 {
		return models.LineItem{}, &InvalidItemError{Reason: "quantity must be positive"}
	}

	item := models.LineItem{
		VariantID: *variantID,
		Qty:       qty,
		Price:     decimal.Zero,
		MRP:       firstDecimal(in.MRP, in.OriginalPrice),
		Size:      firstString(in.Size, in.SelectedSize),
		Colour:    firstString(in.Colour, in.Color, in.SelectedColor, in.SelectedColour),
		ImageURL:  firstString(in.ImageURL),
		EANCode:   firstString(in.EANCode, in.EAN, in.BarcodeValue),
		Name:      firstString(in.Name, in.ProductName),
	}
	if price := firstDecimal(in.Price, in.FinalPrice, in.FinalPriceB2C, in.FinalPriceB2B); price != nil {
		item.Price = *price
	}

	return item, nil
}

// NormalizeItems normalizes every item, keeping order.
func NormalizeItems(inputs []models.LineItemInput) ([]models.LineItem, error) {
	if len(inputs) == 0 {
		return nil, &InvalidItemError{Reason: "order has no items"}
	}

	items := make([]models.LineItem, 0, len(inputs))
	for i, in := range inputs {
		item, err := NormalizeItem(in)
		if err != nil {
			var invalid *InvalidItemError
			if errors.As(err, &invalid) {
				invalid.Index = i
			}
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func firstInt64(vs ...*int64) *int64 {
	for _, v := range vs {
		if v != nil {
			return v
		}
	}
	return nil
}

func firstInt(vs ...*int) *int {
	for _, v := range vs {
		if v != nil {
			return v
		}
	}
	return nil
}

func firstDecimal(vs ...*decimal.Decimal) *decimal.Decimal {
	for _, v := range vs {
		if v != nil {
			d := *v
			return &d
		}
	}
	return nil
}

func firstString(vs ...*string) string {
	for _, v := range vs {
		if v != nil {
			return *v
		}
	}
	return ""
}
