// Package handler provides the HTTP surface of a headless cart session: REST routes
// and MCP tools over one session.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"cart-sync/internal/auth"
	"cart-sync/internal/cart"
	"cart-sync/internal/coordinator"
	"cart-sync/internal/model"
	"cart-sync/internal/notify"
	"cart-sync/internal/remote"
	"cart-sync/internal/session"
)

// Session is the cart session the handler serves.
type Session interface {
	Cart() cart.State
	Selection() *cart.Selection
	Identity() remote.Identity
	KeyState(key model.ProductKey) coordinator.KeyState

	Add(ctx context.Context, req coordinator.AddRequest) (cart.State, error)
	Update(ctx context.Context, key model.ProductKey, quantity int) (cart.State, error)
	Remove(ctx context.Context, key model.ProductKey) (cart.State, error)
	Clear(ctx context.Context) (cart.State, error)
	Refresh(ctx context.Context) (cart.State, error)
	HandleAuth(ctx context.Context, ev auth.Event) error
}

var _ Session = (*session.Engine)(nil)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	session Session
	notes   *notify.Recorder
	logger  *slog.Logger
}

// New creates a Handler over s. notes may be nil; GET /notifications then answers
// with an empty list.
func New(s Session, notes *notify.Recorder, logger *slog.Logger) *Handler {
	return &Handler{
		session: s,
		notes:   notes,
		logger:  logger,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Cart
	mux.HandleFunc("GET /cart", h.handleGetCart)
	mux.HandleFunc("POST /cart/refresh", h.handleRefresh)
	mux.HandleFunc("POST /cart/items", h.handleAddItem)
	mux.HandleFunc("PUT /cart/items/{key}", h.handleUpdateItem)
	mux.HandleFunc("DELETE /cart/items/{key}", h.handleRemoveItem)
	mux.HandleFunc("DELETE /cart", h.handleClear)

	// Checkout selection
	mux.HandleFunc("GET /cart/selection", h.handleGetSelection)
	mux.HandleFunc("PUT /cart/selection", h.handleSelectAll)
	mux.HandleFunc("PUT /cart/selection/{key}", h.handleSelect)

	// Session
	mux.HandleFunc("POST /session/login", h.handleLogin)
	mux.HandleFunc("POST /session/logout", h.handleLogout)
	mux.HandleFunc("GET /notifications", h.handleNotifications)

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from CartError if present.
// Uses errors.As() to unwrap error chains (e.g., fmt.Errorf wrapping).
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	cartErr := asCartError(err)
	if cartErr.Code == "INTERNAL_ERROR" {
		h.logger.Error("internal error", slog.String("error", err.Error()))
	}
	h.writeJSON(w, cartErr.StatusCode, errorResponse{
		Error: errorBody{
			Code:    cartErr.Code,
			Message: cartErr.Message,
			Key:     cartErr.Key,
		},
	})
}

// asCartError finds the CartError in err's chain, or wraps err as an internal error.
func asCartError(err error) *model.CartError {
	var cartErr *model.CartError
	if errors.As(err, &cartErr) {
		return cartErr
	}
	if errors.Is(err, coordinator.ErrClosed) {
		return &model.CartError{
			Code:       "UNAVAILABLE",
			Message:    "cart session is shutting down",
			StatusCode: http.StatusServiceUnavailable,
			Err:        err,
		}
	}
	return model.NewInternalError(err)
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Key     string `json:"key,omitempty"`
}

// MaxRequestBodySize limits JSON request bodies to 1MB to prevent DoS.
const MaxRequestBodySize = 1 << 20 // 1MB

// decodeJSON reads JSON from request body into v.
// Limits body size to MaxRequestBodySize to prevent memory exhaustion.
// Returns a CartError if decoding fails.
func decodeJSON(r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}

// pathKey parses the {key} path value ("product" or "product:variant").
func pathKey(r *http.Request) (model.ProductKey, error) {
	return model.ParseProductKey(r.PathValue("key"))
}

type healthResponse struct {
	Status string `json:"status"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}
