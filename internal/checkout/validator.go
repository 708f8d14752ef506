package checkout

import (
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/db/models"
	pkgerrors "github.com/tranvanhung2003/digital-world-v1-sub001/pkg/errors"
)

// LineSnapshot pairs one cart item with the catalog rows it references, loaded
// inside the checkout transaction so validation and order creation see the
// same state.
type LineSnapshot struct {
	Item    models.CartItem
	Product *models.Product
	Variant *models.ProductVariant
}

// UnitPriceCents returns the price charged for one unit of this line.
func (l LineSnapshot) UnitPriceCents() int {
	if l.Variant != nil {
		return l.Variant.PriceCents
	}
	return l.Product.PriceCents
}

// Available returns the stock counter governing this line.
func (l LineSnapshot) Available() int {
	if l.Variant != nil {
		return l.Variant.Stock
	}
	return l.Product.Stock
}

// SKU returns the sold SKU, preferring the variant's when one is selected.
func (l LineSnapshot) SKU() string {
	if l.Variant != nil {
		return l.Variant.SKU
	}
	return l.Product.SKU
}

// ValidateStock checks every line without mutating anything. It reports all
// failing lines at once so the client can fix the whole cart in one pass.
func ValidateStock(lines []LineSnapshot) error {
	if len(lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart contains no items")
	}

	var failures []map[string]any
	for _, line := range lines {
		switch {
		case line.Item.Quantity <= 0:
			failures = append(failures, lineFailure(line, "quantity must be positive"))
		case !line.Product.IsActive:
			failures = append(failures, lineFailure(line, "product is no longer available"))
		case line.Available() < line.Item.Quantity:
			failures = append(failures, map[string]any{
				"sku":       line.SKU(),
				"reason":    "insufficient stock",
				"requested": line.Item.Quantity,
				"available": line.Available(),
			})
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "cart cannot be fulfilled").
		WithDetails(map[string]any{"lines": failures})
}

func lineFailure(line LineSnapshot, reason string) map[string]any {
	return map[string]any{
		"sku":    line.SKU(),
		"reason": reason,
	}
}
