package cart

import (
	"time"

	"cart-sync/internal/model"
)

// Apply is the cart transition function: it returns the state that results from
// applying ev to prev at time now. prev is never modified. On error prev is returned
// unchanged together with a *model.CartError.
func Apply(prev State, ev Event, now time.Time) (State, error) {
	if ev == nil {
		return prev, model.NewValidationError("event", "event is required")
	}
	next := prev.clone()
	if err := ev.apply(&next, now); err != nil {
		return prev, err
	}
	next.recomputeTotals()
	return next, nil
}

func (e Set) apply(s *State, now time.Time) error {
	if err := e.Cart.Validate(); err != nil {
		return model.NewServerError("cart snapshot", err)
	}

	previous := s.selection
	s.items = itemsFrom(e.Cart)
	s.currency = e.Cart.Totals.Currency
	s.isGuestCart = e.Cart.IsGuestCart
	s.pending = map[model.ProductKey]struct{}{}
	s.baselines = map[model.ProductKey]baseline{}
	s.lastSyncedAt = syncTime(e.SyncedAt, now)

	// Never repopulate the selection: keep only what was chosen and still exists.
	s.selection = map[model.ProductKey]struct{}{}
	if e.Selection != nil {
		for _, key := range e.Selection {
			if _, ok := s.items[key]; ok {
				s.selection[key] = struct{}{}
			}
		}
		return nil
	}
	for key := range previous {
		if _, ok := s.items[key]; ok {
			s.selection[key] = struct{}{}
		}
	}
	return nil
}

func (e Add) apply(s *State, _ time.Time) error {
	if e.Key.IsZero() {
		return model.NewValidationError("product", "product id is required")
	}
	if e.Quantity <= 0 {
		return model.NewValidationError("quantity", "must be at least 1").WithKey(e.Key)
	}
	if e.UnitPrice < 0 {
		return model.NewValidationError("unit_price", "must not be negative").WithKey(e.Key)
	}

	item, exists := s.items[e.Key]
	if !exists {
		item = LineItem{
			Key:       e.Key,
			Name:      e.Title,
			UnitPrice: e.UnitPrice,
		}
	}
	if e.Stock != nil {
		item.Stock = e.Stock
	}

	qty := item.Quantity + e.Quantity
	if item.exceedsStock(qty) {
		return model.NewStockExceededError(e.Key, qty, *item.Stock)
	}

	s.track(e.Key, e.Optimistic)
	item.Quantity = qty
	item.TotalPrice = item.UnitPrice * int64(qty)
	item.Optimistic = e.Optimistic
	s.items[e.Key] = item
	return nil
}

func (e Update) apply(s *State, _ time.Time) error {
	if e.Key.IsZero() {
		return model.NewValidationError("product", "product id is required")
	}
	item, exists := s.items[e.Key]
	if !exists {
		return model.NewNotFoundError("line item " + e.Key.String()).WithKey(e.Key)
	}

	if e.Quantity <= 0 {
		s.track(e.Key, e.Optimistic)
		delete(s.items, e.Key)
		delete(s.selection, e.Key)
		return nil
	}
	if item.exceedsStock(e.Quantity) {
		return model.NewStockExceededError(e.Key, e.Quantity, *item.Stock)
	}

	s.track(e.Key, e.Optimistic)
	item.Quantity = e.Quantity
	item.TotalPrice = item.UnitPrice * int64(e.Quantity)
	item.Optimistic = e.Optimistic
	s.items[e.Key] = item
	return nil
}

func (e Remove) apply(s *State, _ time.Time) error {
	if e.Key.IsZero() {
		return model.NewValidationError("product", "product id is required")
	}
	if _, exists := s.items[e.Key]; !exists {
		return nil
	}
	s.track(e.Key, e.Optimistic)
	delete(s.items, e.Key)
	delete(s.selection, e.Key)
	return nil
}

func (Clear) apply(s *State, _ time.Time) error {
	s.items = map[model.ProductKey]LineItem{}
	s.selection = map[model.ProductKey]struct{}{}
	s.pending = map[model.ProductKey]struct{}{}
	s.baselines = map[model.ProductKey]baseline{}
	return nil
}

func (e Select) apply(s *State, _ time.Time) error {
	if e.Key.IsZero() {
		return model.NewValidationError("product", "product id is required")
	}
	if !e.Selected {
		delete(s.selection, e.Key)
		return nil
	}
	if _, exists := s.items[e.Key]; !exists {
		return model.NewNotFoundError("line item " + e.Key.String()).WithKey(e.Key)
	}
	s.selection[e.Key] = struct{}{}
	return nil
}

func (e SelectAll) apply(s *State, _ time.Time) error {
	s.selection = map[model.ProductKey]struct{}{}
	if !e.Selected {
		return nil
	}
	// Captures the keys present now; items added later are not selected.
	for key := range s.items {
		s.selection[key] = struct{}{}
	}
	return nil
}

func (e Merge) apply(s *State, now time.Time) error {
	if err := e.Cart.Validate(); err != nil {
		return model.NewServerError("merged cart", err)
	}
	s.items = itemsFrom(e.Cart)
	s.currency = e.Cart.Totals.Currency
	s.isGuestCart = false
	s.selection = map[model.ProductKey]struct{}{}
	s.pending = map[model.ProductKey]struct{}{}
	s.baselines = map[model.ProductKey]baseline{}
	s.lastSyncedAt = syncTime(e.SyncedAt, now)
	return nil
}

func (Reset) apply(s *State, _ time.Time) error {
	*s = NewGuestState().clone()
	return nil
}

func (e Pending) apply(s *State, _ time.Time) error {
	if e.Key.IsZero() {
		return model.NewValidationError("product", "product id is required")
	}
	if e.InFlight {
		s.pending[e.Key] = struct{}{}
	} else {
		delete(s.pending, e.Key)
	}
	return nil
}

func (e Settle) apply(s *State, _ time.Time) error {
	delete(s.baselines, e.Key)
	delete(s.pending, e.Key)
	if item, exists := s.items[e.Key]; exists {
		item.Optimistic = false
		s.items[e.Key] = item
	}
	return nil
}

func (e Rollback) apply(s *State, _ time.Time) error {
	s.revert(e.Key)
	delete(s.pending, e.Key)
	return nil
}

func itemsFrom(c model.ServerCart) map[model.ProductKey]LineItem {
	items := make(map[model.ProductKey]LineItem, len(c.Items))
	for _, si := range c.Items {
		items[si.Key()] = LineItem{
			Key:        si.Key(),
			Name:       si.Name,
			Quantity:   si.Quantity,
			UnitPrice:  si.UnitPrice,
			TotalPrice: si.TotalPrice,
			Stock:      si.Stock,
		}
	}
	return items
}

func syncTime(at, now time.Time) time.Time {
	if at.IsZero() {
		return now
	}
	return at
}
