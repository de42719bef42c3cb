package cart

import (
	"cart-sync/internal/model"
)

// SelectedItems returns the selected line items ordered by key.
func (s State) SelectedItems() []LineItem {
	out := make([]LineItem, 0, len(s.selection))
	for _, key := range sortedKeys(s.selection) {
		if item, ok := s.items[key]; ok {
			out = append(out, item)
		}
	}
	return out
}

// SelectedTotal is the sum of line totals over the selection, in minor units.
func (s State) SelectedTotal() int64 {
	var total int64
	for key := range s.selection {
		total += s.items[key].TotalPrice
	}
	return total
}

// SelectedCount is the sum of quantities over the selection.
func (s State) SelectedCount() int {
	var count int
	for key := range s.selection {
		count += s.items[key].Quantity
	}
	return count
}

// Selection is the checkout subset of a Store's cart. Reads are derived from the
// current snapshot; writes go through store events so the subset never names a key
// that is not in the cart.
type Selection struct {
	store *Store
}

// NewSelection returns the selection view over store.
func NewSelection(store *Store) *Selection {
	return &Selection{store: store}
}

func (s *Selection) IsSelected(key model.ProductKey) bool {
	return s.store.Snapshot().IsSelected(key)
}

func (s *Selection) SelectedItems() []LineItem {
	return s.store.Snapshot().SelectedItems()
}

func (s *Selection) SelectedTotal() int64 {
	return s.store.Snapshot().SelectedTotal()
}

func (s *Selection) SelectedCount() int {
	return s.store.Snapshot().SelectedCount()
}

func (s *Selection) AllSelected() bool {
	return s.store.Snapshot().AllSelected()
}

// Select marks or unmarks key. Selecting a key that is not in the cart fails.
func (s *Selection) Select(key model.ProductKey, selected bool) (State, error) {
	return s.store.Dispatch(Select{Key: key, Selected: selected})
}

// SelectAll selects every item currently in the cart, or clears the selection.
func (s *Selection) SelectAll(selected bool) (State, error) {
	return s.store.Dispatch(SelectAll{Selected: selected})
}
