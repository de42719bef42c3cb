package remote

import (
	"context"

	"cart-sync/internal/model"
)

// Mock implements Service for testing.
// Each method can be configured via function fields.
type Mock struct {
	GetCartFunc        func(ctx context.Context, id Identity) (*model.ServerCart, error)
	AddItemFunc        func(ctx context.Context, id Identity, key model.ProductKey, quantity int) (*model.ServerCart, error)
	UpdateItemFunc     func(ctx context.Context, id Identity, key model.ProductKey, quantity int) (*model.ServerCart, error)
	RemoveItemFunc     func(ctx context.Context, id Identity, key model.ProductKey) (*model.ServerCart, error)
	ClearCartFunc      func(ctx context.Context, id Identity) (*model.ServerCart, error)
	MergeGuestCartFunc func(ctx context.Context, id Identity) error
}

var _ Service = (*Mock)(nil)

// GetCart calls the configured GetCartFunc or returns an empty guest cart.
func (m *Mock) GetCart(ctx context.Context, id Identity) (*model.ServerCart, error) {
	if m.GetCartFunc != nil {
		return m.GetCartFunc(ctx, id)
	}
	return &model.ServerCart{IsGuestCart: !id.Authenticated()}, nil
}

// AddItem calls the configured AddItemFunc or returns an error.
func (m *Mock) AddItem(ctx context.Context, id Identity, key model.ProductKey, quantity int) (*model.ServerCart, error) {
	if m.AddItemFunc != nil {
		return m.AddItemFunc(ctx, id, key, quantity)
	}
	return nil, model.NewInternalError(nil)
}

// UpdateItem calls the configured UpdateItemFunc or returns an error.
func (m *Mock) UpdateItem(ctx context.Context, id Identity, key model.ProductKey, quantity int) (*model.ServerCart, error) {
	if m.UpdateItemFunc != nil {
		return m.UpdateItemFunc(ctx, id, key, quantity)
	}
	return nil, model.NewInternalError(nil)
}

// RemoveItem calls the configured RemoveItemFunc or returns an error.
func (m *Mock) RemoveItem(ctx context.Context, id Identity, key model.ProductKey) (*model.ServerCart, error) {
	if m.RemoveItemFunc != nil {
		return m.RemoveItemFunc(ctx, id, key)
	}
	return nil, model.NewInternalError(nil)
}

// ClearCart calls the configured ClearCartFunc or returns an empty cart.
func (m *Mock) ClearCart(ctx context.Context, id Identity) (*model.ServerCart, error) {
	if m.ClearCartFunc != nil {
		return m.ClearCartFunc(ctx, id)
	}
	return &model.ServerCart{IsGuestCart: !id.Authenticated()}, nil
}

// MergeGuestCart calls the configured MergeGuestCartFunc or succeeds.
func (m *Mock) MergeGuestCart(ctx context.Context, id Identity) error {
	if m.MergeGuestCartFunc != nil {
		return m.MergeGuestCartFunc(ctx, id)
	}
	return nil
}
