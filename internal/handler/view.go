package handler

import (
	"time"

	"cart-sync/internal/cart"
	"cart-sync/internal/model"
)

// CartView is the JSON form of a cart snapshot.
type CartView struct {
	Items        []ItemView    `json:"items"`
	TotalAmount  int64         `json:"total_amount"`
	TotalItems   int           `json:"total_items"`
	Currency     string        `json:"currency,omitempty"`
	Display      string        `json:"display"`
	IsGuestCart  bool          `json:"is_guest_cart"`
	LastSyncedAt *time.Time    `json:"last_synced_at,omitempty"`
	Selection    SelectionView `json:"selection"`
}

// ItemView is one line of a CartView. State is the key's sync state.
type ItemView struct {
	Key        string `json:"key"`
	ProductID  string `json:"product_id"`
	VariantID  string `json:"variant_id,omitempty"`
	Name       string `json:"name,omitempty"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
	TotalPrice int64  `json:"total_price"`
	Stock      *int   `json:"stock,omitempty"`
	Selected   bool   `json:"selected"`
	State      string `json:"state"`
}

// SelectionView summarizes the checkout subset.
type SelectionView struct {
	Keys        []string `json:"keys"`
	Total       int64    `json:"total"`
	Count       int      `json:"count"`
	Display     string   `json:"display"`
	AllSelected bool     `json:"all_selected"`
}

func (h *Handler) cartView(s cart.State) *CartView {
	v := &CartView{
		Items:       make([]ItemView, 0, s.Len()),
		TotalAmount: s.TotalAmount(),
		TotalItems:  s.TotalItemCount(),
		Currency:    s.Currency(),
		Display:     model.FormatAmount(s.TotalAmount(), s.Currency()),
		IsGuestCart: s.IsGuestCart(),
		Selection:   selectionView(s),
	}
	if at := s.LastSyncedAt(); !at.IsZero() {
		v.LastSyncedAt = &at
	}
	for _, item := range s.Items() {
		v.Items = append(v.Items, ItemView{
			Key:        item.Key.String(),
			ProductID:  item.Key.ProductID,
			VariantID:  item.Key.VariantID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			TotalPrice: item.TotalPrice,
			Stock:      item.Stock,
			Selected:   s.IsSelected(item.Key),
			State:      h.session.KeyState(item.Key).String(),
		})
	}
	return v
}

func selectionView(s cart.State) SelectionView {
	keys := s.Selection()
	v := SelectionView{
		Keys:        make([]string, len(keys)),
		Total:       s.SelectedTotal(),
		Count:       s.SelectedCount(),
		Display:     model.FormatAmount(s.SelectedTotal(), s.Currency()),
		AllSelected: s.AllSelected(),
	}
	for i, key := range keys {
		v.Keys[i] = key.String()
	}
	return v
}
