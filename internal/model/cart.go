// Package model holds the wire schema shared by the cart engine and its remote backends,
// the money helpers, and the cart error taxonomy.
package model

import (
	"errors"
	"fmt"
	"strings"
)

// ProductKey identifies a line item: a product plus an optional variant.
type ProductKey struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
}

// String returns "productId" or "productId:variantId".
func (k ProductKey) String() string {
	if k.VariantID == "" {
		return k.ProductID
	}
	return k.ProductID + ":" + k.VariantID
}

// IsZero reports whether the key names no product.
func (k ProductKey) IsZero() bool {
	return strings.TrimSpace(k.ProductID) == ""
}

// ParseProductKey is the inverse of ProductKey.String.
func ParseProductKey(s string) (ProductKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ProductKey{}, NewValidationError("product", "product id is required")
	}
	productID, variantID, _ := strings.Cut(s, ":")
	if productID == "" {
		return ProductKey{}, NewValidationError("product", "product id is required")
	}
	return ProductKey{ProductID: productID, VariantID: variantID}, nil
}

// ServerCart is the one response schema accepted from a remote cart service.
// Backends normalize their platform shapes into it; Validate is run once on ingress.
type ServerCart struct {
	Items       []ServerItem `json:"items"`
	Totals      ServerTotals `json:"totals"`
	IsGuestCart bool         `json:"is_guest_cart"`
}

// ServerItem is a line item as reported by the remote service.
// Amounts are minor currency units.
type ServerItem struct {
	ProductID  string `json:"product_id"`
	VariantID  string `json:"variant_id,omitempty"`
	Name       string `json:"name,omitempty"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
	TotalPrice int64  `json:"total_price"`
	Stock      *int   `json:"stock,omitempty"` // Known available stock; nil when unknown
}

// Key returns the item's product key.
func (i ServerItem) Key() ProductKey {
	return ProductKey{ProductID: i.ProductID, VariantID: i.VariantID}
}

// ServerTotals carries the cart-level aggregates.
type ServerTotals struct {
	Currency    string `json:"currency,omitempty"`
	TotalAmount int64  `json:"total_amount"`
	TotalItems  int    `json:"total_items"`
}

// errSchema marks payloads that do not satisfy the cart schema.
var errSchema = errors.New("cart schema violation")

// Validate checks the invariants every accepted snapshot must hold:
// quantities of at least one, line totals equal to unit price times quantity,
// unique keys, and cart totals equal to the sums over items.
func (c *ServerCart) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: empty cart payload", errSchema)
	}

	seen := make(map[ProductKey]bool, len(c.Items))
	var amount int64
	var count int
	for i, item := range c.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return fmt.Errorf("%w: items[%d] missing product_id", errSchema, i)
		}
		if item.Quantity < 1 {
			return fmt.Errorf("%w: items[%d] quantity %d", errSchema, i, item.Quantity)
		}
		if item.UnitPrice < 0 {
			return fmt.Errorf("%w: items[%d] negative unit_price", errSchema, i)
		}
		if item.TotalPrice != item.UnitPrice*int64(item.Quantity) {
			return fmt.Errorf("%w: items[%d] total_price %d != %d x %d",
				errSchema, i, item.TotalPrice, item.UnitPrice, item.Quantity)
		}
		if item.Stock != nil && *item.Stock < 0 {
			return fmt.Errorf("%w: items[%d] negative stock", errSchema, i)
		}
		key := item.Key()
		if seen[key] {
			return fmt.Errorf("%w: duplicate item %s", errSchema, key)
		}
		seen[key] = true
		amount += item.TotalPrice
		count += item.Quantity
	}

	if c.Totals.TotalAmount != amount {
		return fmt.Errorf("%w: total_amount %d != sum %d", errSchema, c.Totals.TotalAmount, amount)
	}
	if c.Totals.TotalItems != count {
		return fmt.Errorf("%w: total_items %d != sum %d", errSchema, c.Totals.TotalItems, count)
	}
	return nil
}

// IsSchemaError reports whether err came from ServerCart.Validate.
func IsSchemaError(err error) bool {
	return errors.Is(err, errSchema)
}

// RecomputeTotals sets Totals from the items. Backends whose platform totals include
// shipping, fees or tax call this before handing the cart to the engine.
func (c *ServerCart) RecomputeTotals() {
	var amount int64
	var count int
	for _, item := range c.Items {
		amount += item.TotalPrice
		count += item.Quantity
	}
	c.Totals.TotalAmount = amount
	c.Totals.TotalItems = count
}

// IntPtr returns a pointer to v. Used for optional stock values.
func IntPtr(v int) *int {
	return &v
}
