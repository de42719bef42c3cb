package handler

import (
	"log/slog"
	"net/http"

	"cart-sync/internal/auth"
	"cart-sync/internal/coordinator"
	"cart-sync/internal/model"
	"cart-sync/internal/notify"
)

// AddItemRequest is the body of POST /cart/items. Name, price and stock describe the
// product for the optimistic line until the server answers.
type AddItemRequest struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Stock     *int   `json:"stock,omitempty"`
}

func (r AddItemRequest) toCoordinator() coordinator.AddRequest {
	return coordinator.AddRequest{
		Key:       model.ProductKey{ProductID: r.ProductID, VariantID: r.VariantID},
		Name:      r.Name,
		Quantity:  r.Quantity,
		UnitPrice: r.UnitPrice,
		Stock:     r.Stock,
	}
}

// QuantityRequest is the body of PUT /cart/items/{key}.
type QuantityRequest struct {
	Quantity *int `json:"quantity"`
}

// SelectRequest is the body of the selection routes.
type SelectRequest struct {
	Selected bool `json:"selected"`
}

// LoginRequest is the body of POST /session/login.
type LoginRequest struct {
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

type sessionResponse struct {
	GuestID       string    `json:"guest_id"`
	UserID        string    `json:"user_id,omitempty"`
	Authenticated bool      `json:"authenticated"`
	Cart          *CartView `json:"cart"`
}

type notificationsResponse struct {
	Notifications []notify.Message `json:"notifications"`
}

// GET /cart
func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.cartView(h.session.Cart()))
}

// POST /cart/refresh
func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	state, err := h.session.Refresh(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.cartView(state))
}

// POST /cart/items
func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AddItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "adding item",
		slog.String("product_id", req.ProductID),
		slog.Int("quantity", req.Quantity),
	)

	state, err := h.session.Add(ctx, req.toCoordinator())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.cartView(state))
}

// PUT /cart/items/{key}
func (h *Handler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	key, err := pathKey(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req QuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Quantity == nil {
		h.writeError(w, model.NewValidationError("quantity", "required"))
		return
	}

	h.logger.InfoContext(ctx, "updating item",
		slog.String("key", key.String()),
		slog.Int("quantity", *req.Quantity),
	)

	state, err := h.session.Update(ctx, key, *req.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.cartView(state))
}

// DELETE /cart/items/{key}
func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	key, err := pathKey(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	state, err := h.session.Remove(r.Context(), key)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.cartView(state))
}

// DELETE /cart
func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	state, err := h.session.Clear(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.cartView(state))
}

// GET /cart/selection
func (h *Handler) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, selectionView(h.session.Cart()))
}

// PUT /cart/selection selects every line, or none.
func (h *Handler) handleSelectAll(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	state, err := h.session.Selection().SelectAll(req.Selected)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, selectionView(state))
}

// PUT /cart/selection/{key}
func (h *Handler) handleSelect(w http.ResponseWriter, r *http.Request) {
	key, err := pathKey(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req SelectRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	state, err := h.session.Selection().Select(key, req.Selected)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, selectionView(state))
}

// POST /session/login signs the session in and merges the guest cart. A failed merge
// has already been reported through notifications; the session stays signed in.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	err := h.session.HandleAuth(ctx, auth.Event{Kind: auth.LoggedIn, UserID: req.UserID, Token: req.Token})
	if err != nil {
		status := asCartError(err).StatusCode
		if status == http.StatusBadRequest || status == http.StatusUnauthorized {
			h.writeError(w, err)
			return
		}
		h.logger.WarnContext(ctx, "guest cart merge failed",
			slog.String("user_id", req.UserID),
			slog.String("error", err.Error()),
		)
	}
	h.writeJSON(w, http.StatusOK, h.sessionResponse())
}

// POST /session/logout
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.session.HandleAuth(r.Context(), auth.Event{Kind: auth.LoggedOut}); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.sessionResponse())
}

func (h *Handler) sessionResponse() sessionResponse {
	id := h.session.Identity()
	return sessionResponse{
		GuestID:       id.GuestID,
		UserID:        id.UserID,
		Authenticated: id.Authenticated(),
		Cart:          h.cartView(h.session.Cart()),
	}
}

// GET /notifications returns the notifications raised since the last call.
func (h *Handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	resp := notificationsResponse{Notifications: []notify.Message{}}
	if h.notes != nil {
		if msgs := h.notes.Drain(); msgs != nil {
			resp.Notifications = msgs
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}
