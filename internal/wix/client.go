package wix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"cart-sync/internal/model"
	"cart-sync/internal/reconcile"
	"cart-sync/internal/remote"
	"cart-sync/internal/transport"
)

// =============================================================================
// WIX API CLIENT
// =============================================================================
//
// Wix Headless eCommerce uses OAuth2 for authentication:
//   1. Exchange client_id for an anonymous access token per guest session
//   2. Use access_token in the Authorization header for cart calls
//   3. Refresh the token shortly before it expires using refresh_token
//
// The "current cart" routes act on whichever cart the token's visitor owns, so the
// token is the cart's identity on the Wix side.
// =============================================================================

const (
	// DefaultBaseURL is the base URL for Wix APIs.
	DefaultBaseURL = "https://www.wixapis.com"

	pathOAuthToken       = "/oauth2/token"
	pathCartCurrent      = "/ecom/v1/carts/current"
	pathAddToCart        = "/ecom/v1/carts/current/add-to-cart"
	pathUpdateQuantities = "/ecom/v1/carts/current/update-line-items-quantity"
	pathRemoveLineItems  = "/ecom/v1/carts/current/remove-line-items"

	serviceName = "Wix"
	userAgent   = "cart-sync/1.0"

	// refreshSkew renews tokens this long before they expire.
	refreshSkew = time.Minute
)

// Config holds Wix backend configuration.
type Config struct {
	ClientID string // OAuth app client ID (no secret needed for anonymous flow)

	// BaseURL overrides DefaultBaseURL.
	BaseURL string

	// Timeout bounds each HTTP request. Defaults to 30s.
	Timeout time.Duration

	// Fingerprint presents a Chrome TLS fingerprint.
	Fingerprint bool

	// HTTPClient overrides the client built from Timeout and Fingerprint.
	HTTPClient *http.Client

	// Now defaults to time.Now.
	Now func() time.Time
}

// visitorToken is one guest's OAuth session.
type visitorToken struct {
	access    string
	refresh   string
	expiresAt time.Time
}

// Client implements remote.Service on the Wix current-cart API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	clientID   string
	now        func() time.Time

	mu     sync.Mutex
	tokens map[string]visitorToken // by guest session id
	group  singleflight.Group
}

var _ remote.Service = (*Client)(nil)

// New creates a Wix client with the given configuration.
func New(cfg Config) (*Client, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("Wix client ID is required")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{
			Timeout:   timeout,
			Transport: transport.New(transport.Options{Timeout: timeout, Fingerprint: cfg.Fingerprint}),
		}
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		httpClient: hc,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		clientID:   cfg.ClientID,
		now:        now,
		tokens:     make(map[string]visitorToken),
	}, nil
}

// === remote.Service ===

// GetCart fetches the current cart. A visitor without a cart has an empty one.
func (c *Client) GetCart(ctx context.Context, id remote.Identity) (*model.ServerCart, error) {
	cart, err := c.currentCart(ctx, id)
	if err != nil {
		return nil, err
	}
	return CartToServer(cart, id)
}

// AddItem adds quantity of key. Wix sums into an existing line for the same
// catalog reference.
func (c *Client) AddItem(ctx context.Context, id remote.Identity, key model.ProductKey, quantity int) (*model.ServerCart, error) {
	if key.IsZero() {
		return nil, model.NewValidationError("product_id", "required")
	}
	body := WixAddToCartRequest{LineItems: []WixLineItemInput{{
		CatalogReference: catalogRef(key),
		Quantity:         quantity,
	}}}
	return c.mutate(ctx, id, http.MethodPost, pathAddToCart, body, key)
}

// UpdateItem sets the quantity of the line for key.
func (c *Client) UpdateItem(ctx context.Context, id remote.Identity, key model.ProductKey, quantity int) (*model.ServerCart, error) {
	lineID, err := c.lineID(ctx, id, key)
	if err != nil {
		return nil, err
	}
	body := WixUpdateQuantityRequest{LineItems: []WixQuantityUpdate{{ID: lineID, Quantity: quantity}}}
	return c.mutate(ctx, id, http.MethodPost, pathUpdateQuantities, body, key)
}

// RemoveItem deletes the line for key.
func (c *Client) RemoveItem(ctx context.Context, id remote.Identity, key model.ProductKey) (*model.ServerCart, error) {
	lineID, err := c.lineID(ctx, id, key)
	if err != nil {
		return nil, err
	}
	body := WixRemoveLineItemsRequest{LineItemIDs: []string{lineID}}
	return c.mutate(ctx, id, http.MethodPost, pathRemoveLineItems, body, key)
}

// ClearCart deletes the current cart. The next add starts a new one.
func (c *Client) ClearCart(ctx context.Context, id remote.Identity) (*model.ServerCart, error) {
	before, err := c.currentCart(ctx, id)
	if err != nil {
		return nil, err
	}
	if before.ID != "" {
		if err := c.call(ctx, id, http.MethodDelete, pathCartCurrent, nil, model.ProductKey{}, nil); err != nil {
			return nil, err
		}
	}
	return &model.ServerCart{
		Items:       []model.ServerItem{},
		Totals:      model.ServerTotals{Currency: before.Currency},
		IsGuestCart: !id.Authenticated(),
	}, nil
}

// MergeGuestCart acknowledges the merge and ends the guest's visitor session.
// Wix has no server-side merge for headless visitors; the member cart is brought
// up to date by the caller's own writes.
func (c *Client) MergeGuestCart(ctx context.Context, id remote.Identity) error {
	if !id.Authenticated() {
		return model.NewUnauthorizedError("merging a guest cart requires a signed-in user")
	}
	c.forget(id.GuestID)
	return nil
}

// === Cart Helpers ===

// currentCart fetches the raw current cart; a missing cart is returned empty.
func (c *Client) currentCart(ctx context.Context, id remote.Identity) (*WixCart, error) {
	var resp WixCartResponse
	err := c.call(ctx, id, http.MethodGet, pathCartCurrent, nil, model.ProductKey{}, &resp)
	if errors.Is(err, model.ErrNotFound) {
		return &WixCart{}, nil
	}
	if err != nil {
		return nil, err
	}
	if resp.Cart == nil {
		return &WixCart{}, nil
	}
	return resp.Cart, nil
}

// lineID resolves the Wix line item id for key.
func (c *Client) lineID(ctx context.Context, id remote.Identity, key model.ProductKey) (string, error) {
	cart, err := c.currentCart(ctx, id)
	if err != nil {
		return "", err
	}
	lineID, ok := reconcile.FindBackendID(CurrentItems(cart), key)
	if !ok {
		return "", model.NewNotFoundError("line item " + key.String()).WithKey(key)
	}
	return lineID, nil
}

// mutate performs a cart mutation whose reply is the cart.
func (c *Client) mutate(ctx context.Context, id remote.Identity, method, path string, payload any, key model.ProductKey) (*model.ServerCart, error) {
	var resp WixCartResponse
	if err := c.call(ctx, id, method, path, payload, key, &resp); err != nil {
		return nil, err
	}
	if resp.Cart == nil {
		return nil, model.NewServerError(serviceName, fmt.Errorf("%s returned no cart", path))
	}
	return CartToServer(resp.Cart, id)
}

// === HTTP Helpers ===

// call sends an authenticated cart request and decodes the reply into result.
// A rejected visitor token is dropped so the next call starts a new session.
func (c *Client) call(ctx context.Context, id remote.Identity, method, path string, payload any, key model.ProductKey, result any) error {
	token, err := c.accessToken(ctx, id)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, method, path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	err = c.do(req, key, result)
	if errors.Is(err, model.ErrUnauthorized) && !id.Authenticated() {
		c.forget(id.GuestID)
	}
	return err
}

// newRequest creates a JSON request without credentials.
func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

// do executes the request and decodes the response.
func (c *Client) do(req *http.Request, key model.ProductKey, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.NewNetworkError(serviceName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.NewNetworkError(serviceName, fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode >= 400 {
		return parseError(resp.StatusCode, body, key)
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return model.NewServerError(serviceName, fmt.Errorf("parsing response: %w", err))
		}
	}
	return nil
}

// parseError maps a Wix API error onto the cart error taxonomy.
func parseError(statusCode int, body []byte, key model.ProductKey) error {
	var wixErr WixErrorResponse
	json.Unmarshal(body, &wixErr) // Best effort parse

	code := ""
	if wixErr.Details != nil && wixErr.Details.ApplicationError != nil {
		code = strings.ToUpper(wixErr.Details.ApplicationError.Code)
	}

	switch {
	case strings.Contains(code, "INVENTORY") || strings.Contains(code, "STOCK"):
		e := model.NewStockExceededError(key, 0, 0)
		if wixErr.Message != "" {
			e.Message = wixErr.Message
		}
		return e
	case statusCode == http.StatusNotFound:
		if key.IsZero() {
			return model.NewNotFoundError("cart")
		}
		return model.NewNotFoundError("line item " + key.String()).WithKey(key)
	case statusCode == http.StatusUnauthorized:
		return model.NewUnauthorizedError("Wix authentication failed")
	case statusCode == http.StatusForbidden:
		return model.NewUnauthorizedError("Wix access denied")
	case statusCode == http.StatusTooManyRequests:
		return model.NewRateLimitError(serviceName)
	case statusCode == http.StatusBadRequest:
		msg := wixErr.Message
		if msg == "" {
			msg = "invalid request"
		}
		e := model.NewValidationError("request", msg)
		if !key.IsZero() {
			e = e.WithKey(key)
		}
		return e
	default:
		return model.NewServerError(serviceName,
			fmt.Errorf("status %d: %s %s", statusCode, code, wixErr.Message))
	}
}

// catalogRef builds the Wix Stores catalog reference for key.
func catalogRef(key model.ProductKey) *WixCatalogRef {
	ref := &WixCatalogRef{CatalogItemID: key.ProductID, AppID: WixStoresAppID}
	if key.VariantID != "" {
		ref.Options = &WixRefOptions{VariantID: key.VariantID}
	}
	return ref
}
