// Package woocommerce implements the remote cart service on the WooCommerce Store API.
// All WooCommerce-specific types, transforms, and HTTP client logic live here.
package woocommerce

// === WooCommerce API Response Types ===

// WooCartResponse represents the Store API cart. Every cart endpoint returns it.
type WooCartResponse struct {
	Items        []WooCartItem  `json:"items"`
	ItemsCount   int            `json:"items_count"`
	Totals       WooTotals      `json:"totals"`
	Coupons      []WooCoupon    `json:"coupons,omitempty"`
	Errors       []WooCartError `json:"errors,omitempty"`
	NeedsPayment bool           `json:"needs_payment"`
}

// WooCartError represents an error in cart state.
type WooCartError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WooCartItem represents an item in cart response.
type WooCartItem struct {
	Key               string            `json:"key"` // Cart item key (not numeric ID)
	ID                int               `json:"id"`  // Product or variation ID
	Name              string            `json:"name"`
	Quantity          int               `json:"quantity"`
	QuantityLimits    WooQuantityLimits `json:"quantity_limits"`
	LowStockRemaining *int              `json:"low_stock_remaining"`
	Prices            WooCartItemPrices `json:"prices"`
	Totals            WooCartItemTotals `json:"totals"`
	Variation         []WooVariant      `json:"variation,omitempty"`
}

// WooQuantityLimits bounds the quantity WooCommerce accepts for a line.
// Maximum is the lesser of stock and the store's purchase limit.
type WooQuantityLimits struct {
	Minimum    int  `json:"minimum"`
	Maximum    int  `json:"maximum"`
	MultipleOf int  `json:"multiple_of"`
	Editable   bool `json:"editable"`
}

// WooCartItemPrices contains price info for a cart item.
type WooCartItemPrices struct {
	Price             string `json:"price"`         // Current unit price in minor units
	RegularPrice      string `json:"regular_price"` // Regular price
	SalePrice         string `json:"sale_price"`    // Sale price if on sale
	CurrencyCode      string `json:"currency_code"`
	CurrencyMinorUnit int    `json:"currency_minor_unit"`
}

// WooCartItemTotals contains totals for a cart item.
type WooCartItemTotals struct {
	LineSubtotal    string `json:"line_subtotal"` // price * quantity
	LineSubtotalTax string `json:"line_subtotal_tax"`
	LineTotal       string `json:"line_total"` // After discounts
	LineTotalTax    string `json:"line_total_tax"`
}

// WooTotals contains all pricing totals from WooCommerce, in minor units.
type WooTotals struct {
	CurrencyCode      string `json:"currency_code"`
	CurrencySymbol    string `json:"currency_symbol"`
	CurrencyMinorUnit int    `json:"currency_minor_unit"`
	TotalItems        string `json:"total_items"`
	TotalItemsTax     string `json:"total_items_tax"`
	TotalFees         string `json:"total_fees"`
	TotalDiscount     string `json:"total_discount"`
	TotalShipping     string `json:"total_shipping"`
	TotalPrice        string `json:"total_price"`
	TotalTax          string `json:"total_tax"`
}

// WooVariant represents a product variation attribute.
type WooVariant struct {
	Attribute string `json:"attribute"`
	Value     string `json:"value"`
}

// WooCoupon represents an applied discount code.
type WooCoupon struct {
	Code string `json:"code"`
}

// === WooCommerce API Request Types ===

// WooCartAddRequest adds an item to cart.
type WooCartAddRequest struct {
	ID       int `json:"id"`
	Quantity int `json:"quantity"`
}

// WooCartUpdateRequest sets the quantity of a cart line.
type WooCartUpdateRequest struct {
	Key      string `json:"key"`
	Quantity int    `json:"quantity"`
}

// WooCartRemoveRequest removes a cart line.
type WooCartRemoveRequest struct {
	Key string `json:"key"`
}

// WooErrorResponse represents a WooCommerce API error.
type WooErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Status int `json:"status"`
	} `json:"data"`
}
