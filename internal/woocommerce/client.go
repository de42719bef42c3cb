package woocommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cart-sync/internal/model"
	"cart-sync/internal/reconcile"
	"cart-sync/internal/remote"
	"cart-sync/internal/transport"
)

// =============================================================================
// NONCE AUTHENTICATION
// =============================================================================
//
// The Store API requires a "Nonce" header on every mutation. Each mutation is
// preceded by a GET /cart that returns a fresh nonce in its headers:
//
//   add:    GET /cart → POST /cart/add-item
//   update: GET /cart → POST /cart/update-item
//   remove: GET /cart → POST /cart/remove-item
//   clear:  GET /cart → DELETE /cart/items
//
// The preflight body is the current cart, which is also where update and
// remove find the cart item key WooCommerce addresses lines by.
// =============================================================================

// storeAPIPath is the base path for WooCommerce Store API endpoints.
const storeAPIPath = "/wp-json/wc/store/v1"

// serviceName labels errors from this backend.
const serviceName = "WooCommerce"

// userAgent identifies this client to upstream servers.
// Required: WooCommerce CDN/WAF rate-limits requests without User-Agent.
const userAgent = "cart-sync/1.0"

// Config holds WooCommerce backend configuration.
type Config struct {
	StoreURL string

	// Timeout bounds each HTTP request. Defaults to 30s.
	Timeout time.Duration

	// Fingerprint presents a Chrome TLS fingerprint to the store.
	Fingerprint bool

	// HTTPClient overrides the client built from Timeout and Fingerprint.
	HTTPClient *http.Client
}

// Client implements remote.Service on the WooCommerce Store API.
// Requires WooCommerce Blocks (included in WC 6.9+) for the Store API endpoints.
//
// The guest session id travels as the Cart-Token; a signed-in user's credential
// as a bearer token.
type Client struct {
	httpClient *http.Client
	storeURL   string
}

var _ remote.Service = (*Client)(nil)

// New creates a WooCommerce client with the given configuration.
func New(cfg Config) (*Client, error) {
	if cfg.StoreURL == "" {
		return nil, fmt.Errorf("store URL is required")
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
	return &Client{
		httpClient: hc,
		storeURL:   strings.TrimSuffix(cfg.StoreURL, "/"),
	}, nil
}

// GetCart fetches the cart of id.
func (c *Client) GetCart(ctx context.Context, id remote.Identity) (*model.ServerCart, error) {
	cart, _, err := c.getCart(ctx, id)
	if err != nil {
		return nil, err
	}
	return CartToServer(cart, id)
}

// AddItem adds quantity of key to the cart. WooCommerce sums into an existing line.
func (c *Client) AddItem(ctx context.Context, id remote.Identity, key model.ProductKey, quantity int) (*model.ServerCart, error) {
	wooID, err := wooProductID(key)
	if err != nil {
		return nil, err
	}
	_, nonce, err := c.getCart(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.mutate(ctx, id, nonce, http.MethodPost, "/cart/add-item",
		WooCartAddRequest{ID: wooID, Quantity: quantity}, key)
}

// UpdateItem sets the quantity of the line for key.
func (c *Client) UpdateItem(ctx context.Context, id remote.Identity, key model.ProductKey, quantity int) (*model.ServerCart, error) {
	itemKey, nonce, err := c.lineKey(ctx, id, key)
	if err != nil {
		return nil, err
	}
	return c.mutate(ctx, id, nonce, http.MethodPost, "/cart/update-item",
		WooCartUpdateRequest{Key: itemKey, Quantity: quantity}, key)
}

// RemoveItem deletes the line for key.
func (c *Client) RemoveItem(ctx context.Context, id remote.Identity, key model.ProductKey) (*model.ServerCart, error) {
	itemKey, nonce, err := c.lineKey(ctx, id, key)
	if err != nil {
		return nil, err
	}
	return c.mutate(ctx, id, nonce, http.MethodPost, "/cart/remove-item",
		WooCartRemoveRequest{Key: itemKey}, key)
}

// ClearCart deletes every line. The Store API answers with an empty item list rather
// than a cart, so the result is built from the preflight's currency.
func (c *Client) ClearCart(ctx context.Context, id remote.Identity) (*model.ServerCart, error) {
	before, nonce, err := c.getCart(ctx, id)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, id, nonce, http.MethodDelete, "/cart/items", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.NewNetworkError(serviceName, fmt.Errorf("reading clear response: %w", err))
	}
	if resp.StatusCode >= 400 {
		return nil, parseErrorResponse(resp.StatusCode, body, model.ProductKey{})
	}
	return &model.ServerCart{
		Items:       []model.ServerItem{},
		Totals:      model.ServerTotals{Currency: before.Totals.CurrencyCode},
		IsGuestCart: !id.Authenticated(),
	}, nil
}

// MergeGuestCart acknowledges the merge. WooCommerce folds the guest session into the
// customer session when the customer authenticates, so there is nothing to call.
func (c *Client) MergeGuestCart(ctx context.Context, id remote.Identity) error {
	if !id.Authenticated() {
		return model.NewUnauthorizedError("merging a guest cart requires a signed-in user")
	}
	return nil
}

// wooProductID converts a product key to the numeric id the Store API expects.
// Variations are products in their own right there, addressed by their own id.
func wooProductID(key model.ProductKey) (int, error) {
	if key.VariantID != "" {
		return 0, model.NewValidationError("variant_id",
			"WooCommerce addresses variations by their own product id").WithKey(key)
	}
	id, err := strconv.Atoi(key.ProductID)
	if err != nil || id <= 0 {
		return 0, model.NewValidationError("product_id", "must be a positive WooCommerce id").WithKey(key)
	}
	return id, nil
}

// lineKey runs the nonce preflight and resolves the cart item key for key.
func (c *Client) lineKey(ctx context.Context, id remote.Identity, key model.ProductKey) (string, string, error) {
	if _, err := wooProductID(key); err != nil {
		return "", "", err
	}
	cart, nonce, err := c.getCart(ctx, id)
	if err != nil {
		return "", "", err
	}
	itemKey, ok := reconcile.FindBackendID(CurrentItems(cart), key)
	if !ok {
		return "", "", model.NewNotFoundError("line item " + key.String()).WithKey(key)
	}
	return itemKey, nonce, nil
}

// getCart fetches the cart together with the nonce a following mutation needs.
func (c *Client) getCart(ctx context.Context, id remote.Identity) (*WooCartResponse, string, error) {
	resp, err := c.do(ctx, id, "", http.MethodGet, "/cart", nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", model.NewNetworkError(serviceName, fmt.Errorf("reading cart response: %w", err))
	}
	if resp.StatusCode >= 400 {
		return nil, "", parseErrorResponse(resp.StatusCode, body, model.ProductKey{})
	}

	var cart WooCartResponse
	if err := json.Unmarshal(body, &cart); err != nil {
		return nil, "", model.NewServerError(serviceName, fmt.Errorf("parsing cart response: %w", err))
	}
	return &cart, resp.Header.Get("Nonce"), nil
}

// mutate performs a nonce-authenticated cart mutation whose reply is the cart.
func (c *Client) mutate(ctx context.Context, id remote.Identity, nonce, method, path string, payload any, key model.ProductKey) (*model.ServerCart, error) {
	if nonce == "" {
		return nil, model.NewServerError(serviceName, fmt.Errorf("no nonce returned from Store API"))
	}
	resp, err := c.do(ctx, id, nonce, method, path, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.NewNetworkError(serviceName, fmt.Errorf("reading %s response: %w", path, err))
	}
	if resp.StatusCode >= 400 {
		return nil, parseErrorResponse(resp.StatusCode, body, key)
	}

	var cart WooCartResponse
	if err := json.Unmarshal(body, &cart); err != nil {
		return nil, model.NewServerError(serviceName, fmt.Errorf("parsing %s response: %w", path, err))
	}
	return CartToServer(&cart, id)
}

func (c *Client) do(ctx context.Context, id remote.Identity, nonce, method, path string, payload any) (*http.Response, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.storeURL+storeAPIPath+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	setStoreAPIHeaders(req, id, nonce)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, model.NewNetworkError(serviceName, err)
	}
	return resp, nil
}

// setStoreAPIHeaders sets headers for Store API requests: Cart-Token for the session,
// Nonce for mutation auth and a bearer token for a signed-in customer.
func setStoreAPIHeaders(req *http.Request, id remote.Identity, nonce string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	if id.GuestID != "" {
		req.Header.Set("Cart-Token", id.GuestID)
	}
	if nonce != "" {
		req.Header.Set("Nonce", nonce)
	}
	if id.Authenticated() {
		req.Header.Set("Authorization", "Bearer "+id.Token)
	}
}

// parseErrorResponse maps a WooCommerce error reply onto the cart error taxonomy.
func parseErrorResponse(statusCode int, body []byte, key model.ProductKey) error {
	var wcErr WooErrorResponse
	json.Unmarshal(body, &wcErr) // Best effort parse

	switch {
	case strings.Contains(wcErr.Code, "stock"):
		e := model.NewStockExceededError(key, 0, 0)
		if wcErr.Message != "" {
			e.Message = wcErr.Message
		}
		return e
	case statusCode == http.StatusNotFound || wcErr.Code == "woocommerce_rest_cart_invalid_key":
		if key.IsZero() {
			return model.NewNotFoundError("cart")
		}
		return model.NewNotFoundError("line item " + key.String()).WithKey(key)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return model.NewUnauthorizedError("WooCommerce authentication failed")
	case statusCode == http.StatusBadRequest:
		msg := wcErr.Message
		if msg == "" {
			msg = "invalid request"
		}
		e := model.NewValidationError("request", msg)
		if !key.IsZero() {
			e = e.WithKey(key)
		}
		return e
	case statusCode == http.StatusTooManyRequests:
		return model.NewRateLimitError(serviceName)
	default:
		return model.NewServerError(serviceName,
			fmt.Errorf("status %d: %s - %s", statusCode, wcErr.Code, wcErr.Message))
	}
}
