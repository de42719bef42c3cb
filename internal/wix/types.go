// Package wix implements remote.Service on the Wix Headless eCommerce current-cart API.
//
// Authentication:
// Guests get anonymous visitor tokens (grantType "anonymous"); no client secret is
// needed, only the client id. Each token is one visitor session with its own cart, so
// the client keeps one token per guest session id. A signed-in member's credential is
// used as the access token directly.
package wix

// === OAuth2 Types ===

// OAuthTokenRequest is the request body for an anonymous visitor token.
type OAuthTokenRequest struct {
	ClientID  string `json:"clientId"`
	GrantType string `json:"grantType"` // Always "anonymous" for visitor sessions
}

// OAuthRefreshRequest extends a visitor session.
type OAuthRefreshRequest struct {
	ClientID     string `json:"clientId"`
	GrantType    string `json:"grantType"` // "refresh_token"
	RefreshToken string `json:"refreshToken"`
}

// OAuthTokenResponse contains a visitor token. Access tokens live 4 hours.
type OAuthTokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// === Cart Types ===

// WixCartResponse wraps every current-cart reply.
type WixCartResponse struct {
	Cart *WixCart `json:"cart"`
}

// WixCart is a Wix eCommerce cart.
type WixCart struct {
	ID        string        `json:"id"`
	LineItems []WixLineItem `json:"lineItems"`
	Currency  string        `json:"currency"`
}

// WixLineItem is one cart line.
type WixLineItem struct {
	ID               string           `json:"id,omitempty"`
	CatalogReference *WixCatalogRef   `json:"catalogReference"`
	Quantity         int              `json:"quantity"`
	ProductName      *WixProductName  `json:"productName,omitempty"`
	Price            *WixPrice        `json:"price,omitempty"`
	Availability     *WixAvailability `json:"availability,omitempty"`
}

// WixCatalogRef identifies a product in the Wix catalog. Options carries the
// variant for products with variants.
type WixCatalogRef struct {
	CatalogItemID string         `json:"catalogItemId"`
	AppID         string         `json:"appId"`
	Options       *WixRefOptions `json:"options,omitempty"`
}

// WixRefOptions selects a product variant.
type WixRefOptions struct {
	VariantID string `json:"variantId,omitempty"`
}

// WixStoresAppID is the Wix Stores application ID for catalog references.
const WixStoresAppID = "215238eb-22a5-4c36-9e7b-e7c08025e04e"

// WixProductName contains the localized product name.
type WixProductName struct {
	Original   string `json:"original,omitempty"`
	Translated string `json:"translated,omitempty"`
}

// WixPrice is a decimal amount in major units ("12.50").
type WixPrice struct {
	Amount          string `json:"amount"`
	ConvertedAmount string `json:"convertedAmount,omitempty"`
	FormattedAmount string `json:"formattedAmount,omitempty"`
}

// WixAvailability reports stock for a line. QuantityAvailable is absent for
// untracked inventory.
type WixAvailability struct {
	Status            string `json:"status"` // AVAILABLE, NOT_FOUND, NOT_AVAILABLE, PARTIALLY_AVAILABLE
	QuantityAvailable *int   `json:"quantityAvailable,omitempty"`
}

// === Request Types ===

// WixLineItemInput is a line to add.
type WixLineItemInput struct {
	CatalogReference *WixCatalogRef `json:"catalogReference"`
	Quantity         int            `json:"quantity"`
}

// WixAddToCartRequest is the body of add-to-cart.
type WixAddToCartRequest struct {
	LineItems []WixLineItemInput `json:"lineItems"`
}

// WixQuantityUpdate sets one line's quantity.
type WixQuantityUpdate struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

// WixUpdateQuantityRequest is the body of update-line-items-quantity.
type WixUpdateQuantityRequest struct {
	LineItems []WixQuantityUpdate `json:"lineItems"`
}

// WixRemoveLineItemsRequest is the body of remove-line-items.
type WixRemoveLineItemsRequest struct {
	LineItemIDs []string `json:"lineItemIds"`
}

// === Error Types ===

// WixErrorResponse is the Wix API error envelope.
type WixErrorResponse struct {
	Message string           `json:"message"`
	Details *WixErrorDetails `json:"details,omitempty"`
}

// WixErrorDetails carries the application error code.
type WixErrorDetails struct {
	ApplicationError *WixApplicationError `json:"applicationError,omitempty"`
}

// WixApplicationError is a Wix application-level error.
type WixApplicationError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}
