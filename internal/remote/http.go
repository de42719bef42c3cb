package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cart-sync/internal/model"
)

// serviceName labels errors from the JSON cart service.
const serviceName = "cart service"

// userAgent identifies this client to the cart service.
const userAgent = "cart-sync/1.0"

// APIKeyHeader carries the backend credential.
const APIKeyHeader = "X-Api-Key"

// HTTPConfig configures an HTTPClient.
type HTTPConfig struct {
	BaseURL    string
	APIKey     string       // Sent as X-Api-Key when set
	HTTPClient *http.Client // Defaults to a 30s-timeout client
}

// HTTPClient implements Service against a JSON cart API:
//
//	GET    /cart                   current cart
//	POST   /cart/items             add {product_id, variant_id, quantity}
//	PUT    /cart/items/{product}   set quantity {quantity}
//	DELETE /cart/items/{product}   remove line
//	DELETE /cart                   clear
//	POST   /cart/merge             merge guest cart {guest_session_id}
//
// Every cart-returning route answers {"cart": {...}}; anything else is rejected.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ Service = (*HTTPClient)(nil)

// NewHTTPClient returns a client for the cart API at cfg.BaseURL.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: hc,
	}, nil
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

type mergeRequest struct {
	GuestSessionID string `json:"guest_session_id"`
}

// cartEnvelope is the only accepted response body for cart routes.
type cartEnvelope struct {
	Cart *model.ServerCart `json:"cart"`
}

// errorEnvelope is the error body, parsed best effort.
type errorEnvelope struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		Available *int   `json:"available,omitempty"`
	} `json:"error"`
}

func (c *HTTPClient) GetCart(ctx context.Context, id Identity) (*model.ServerCart, error) {
	return c.doCart(ctx, id, http.MethodGet, "/cart", nil, model.ProductKey{})
}

func (c *HTTPClient) AddItem(ctx context.Context, id Identity, key model.ProductKey, quantity int) (*model.ServerCart, error) {
	body := addItemRequest{ProductID: key.ProductID, VariantID: key.VariantID, Quantity: quantity}
	return c.doCart(ctx, id, http.MethodPost, "/cart/items", body, key)
}

func (c *HTTPClient) UpdateItem(ctx context.Context, id Identity, key model.ProductKey, quantity int) (*model.ServerCart, error) {
	return c.doCart(ctx, id, http.MethodPut, itemPath(key), updateItemRequest{Quantity: quantity}, key)
}

func (c *HTTPClient) RemoveItem(ctx context.Context, id Identity, key model.ProductKey) (*model.ServerCart, error) {
	return c.doCart(ctx, id, http.MethodDelete, itemPath(key), nil, key)
}

func (c *HTTPClient) ClearCart(ctx context.Context, id Identity) (*model.ServerCart, error) {
	return c.doCart(ctx, id, http.MethodDelete, "/cart", nil, model.ProductKey{})
}

func (c *HTTPClient) MergeGuestCart(ctx context.Context, id Identity) error {
	if !id.Authenticated() {
		return model.NewUnauthorizedError("merging a guest cart requires a signed-in user")
	}
	if id.GuestID == "" {
		return model.NewValidationError("guest_session_id", "required")
	}
	resp, err := c.do(ctx, id, http.MethodPost, "/cart/merge", mergeRequest{GuestSessionID: id.GuestID})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.NewNetworkError(serviceName, err)
	}
	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, body, model.ProductKey{})
	}
	return nil
}

func itemPath(key model.ProductKey) string {
	return "/cart/items/" + url.PathEscape(key.String())
}

// doCart performs a request whose success body is a cart envelope.
func (c *HTTPClient) doCart(ctx context.Context, id Identity, method, path string, payload any, key model.ProductKey) (*model.ServerCart, error) {
	resp, err := c.do(ctx, id, method, path, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.NewNetworkError(serviceName, fmt.Errorf("reading response: %w", err))
	}
	if resp.StatusCode >= 400 {
		return nil, parseErrorResponse(resp.StatusCode, body, key)
	}
	return decodeCart(body)
}

func (c *HTTPClient) do(ctx context.Context, id Identity, method, path string, payload any) (*http.Response, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if err := setHeaders(req, id); err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, model.NewNetworkError(serviceName, err)
	}
	return resp, nil
}

func setHeaders(req *http.Request, id Identity) error {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if req.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id.GuestID != "" {
		session, err := FormatSessionHeader(id.GuestID)
		if err != nil {
			return model.NewValidationError("guest_session_id", err.Error())
		}
		req.Header.Set(SessionHeader, session)
	}
	if id.Token != "" {
		req.Header.Set("Authorization", "Bearer "+id.Token)
	}
	return nil
}

// decodeCart parses and validates a cart envelope. Unknown fields, a missing cart, or
// a cart that breaks the schema invariants are all server errors.
func decodeCart(body []byte) (*model.ServerCart, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()

	var env cartEnvelope
	if err := dec.Decode(&env); err != nil {
		return nil, model.NewServerError(serviceName, fmt.Errorf("decoding cart response: %w", err))
	}
	if env.Cart == nil {
		return nil, model.NewServerError(serviceName, fmt.Errorf("response has no cart"))
	}
	if err := env.Cart.Validate(); err != nil {
		return nil, model.NewServerError(serviceName, err)
	}
	return env.Cart, nil
}

// parseErrorResponse maps a non-2xx reply onto the error taxonomy.
func parseErrorResponse(statusCode int, body []byte, key model.ProductKey) error {
	var env errorEnvelope
	json.Unmarshal(body, &env) // Best effort parse
	msg := env.Error.Message

	switch {
	case statusCode == http.StatusBadRequest || statusCode == http.StatusUnprocessableEntity:
		if msg == "" {
			msg = "invalid request"
		}
		return withKey(model.NewValidationError("request", msg), key)
	case statusCode == http.StatusConflict:
		available := 0
		if env.Error.Available != nil {
			available = *env.Error.Available
		}
		e := model.NewStockExceededError(key, 0, available)
		if msg != "" {
			e.Message = msg
		}
		return e
	case statusCode == http.StatusNotFound:
		if key.IsZero() {
			return model.NewNotFoundError("cart")
		}
		return model.NewNotFoundError("line item " + key.String()).WithKey(key)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return model.NewUnauthorizedError("cart service rejected the credentials")
	case statusCode == http.StatusTooManyRequests:
		return model.NewRateLimitError(serviceName)
	default:
		return model.NewServerError(serviceName,
			fmt.Errorf("status %d: %s - %s", statusCode, env.Error.Code, msg))
	}
}

func withKey(e *model.CartError, key model.ProductKey) *model.CartError {
	if key.IsZero() {
		return e
	}
	return e.WithKey(key)
}
