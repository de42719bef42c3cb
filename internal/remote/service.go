// Package remote defines the remote cart service the engine synchronizes with, and its
// JSON-over-HTTP client.
package remote

import (
	"context"

	"cart-sync/internal/model"
)

// Service is the remote cart service. Every call is scoped by an Identity. Mutations
// return the cart as the server holds it afterwards; the engine still treats a
// following GetCart as the canonical view.
//
// Errors are *model.CartError: ErrNetwork for transport failures, ErrServer for other
// non-2xx replies, plus the specific categories (validation, stock, not found, auth,
// rate limit) when the server reports them.
type Service interface {
	GetCart(ctx context.Context, id Identity) (*model.ServerCart, error)
	AddItem(ctx context.Context, id Identity, key model.ProductKey, quantity int) (*model.ServerCart, error)
	UpdateItem(ctx context.Context, id Identity, key model.ProductKey, quantity int) (*model.ServerCart, error)
	RemoveItem(ctx context.Context, id Identity, key model.ProductKey) (*model.ServerCart, error)
	ClearCart(ctx context.Context, id Identity) (*model.ServerCart, error)

	// MergeGuestCart folds the cart of id.GuestID into the cart of the authenticated user.
	MergeGuestCart(ctx context.Context, id Identity) error
}
