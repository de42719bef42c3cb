// Package cart implements the cart state container: an immutable State, the events that
// transform it, the pure Apply transition, and the Store that serializes every writer.
package cart

import (
	"fmt"
	"sort"
	"time"

	"cart-sync/internal/model"
)

// LineItem is one product (optionally variant) entry in the cart.
// TotalPrice always equals UnitPrice * Quantity; Quantity is never below one.
type LineItem struct {
	Key        model.ProductKey `json:"key"`
	Name       string           `json:"name,omitempty"`
	Quantity   int              `json:"quantity"`
	UnitPrice  int64            `json:"unit_price"`  // Minor units
	TotalPrice int64            `json:"total_price"` // Minor units
	Stock      *int             `json:"stock,omitempty"`
	Optimistic bool             `json:"optimistic"`
}

// exceedsStock reports whether qty is above the item's known stock.
func (li LineItem) exceedsStock(qty int) bool {
	return li.Stock != nil && qty > *li.Stock
}

// baseline is the last committed value of a key that has been changed optimistically.
// present=false means the key did not exist before the optimistic change.
type baseline struct {
	item    LineItem
	present bool
}

// State is an immutable cart value. Apply never mutates its input; every transition
// builds a new State, so values handed out by the Store are safe to share.
type State struct {
	items     map[model.ProductKey]LineItem
	selection map[model.ProductKey]struct{}
	pending   map[model.ProductKey]struct{}
	baselines map[model.ProductKey]baseline

	totalAmount    int64
	totalItemCount int
	currency       string
	isGuestCart    bool
	lastSyncedAt   time.Time
}

// NewGuestState returns the empty anonymous cart a session starts from when nothing else is available.
func NewGuestState() State {
	return State{isGuestCart: true}
}

// Item returns the line item for key.
func (s State) Item(key model.ProductKey) (LineItem, bool) {
	item, ok := s.items[key]
	return item, ok
}

// Items returns the line items ordered by key.
func (s State) Items() []LineItem {
	out := make([]LineItem, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}

// Keys returns the item keys ordered by their string form.
func (s State) Keys() []model.ProductKey {
	return sortedKeys(s.items)
}

func (s State) Len() int { return len(s.items) }

// TotalAmount is the sum of line totals in minor units.
func (s State) TotalAmount() int64 { return s.totalAmount }

// TotalItemCount is the sum of quantities.
func (s State) TotalItemCount() int { return s.totalItemCount }

func (s State) Currency() string { return s.currency }

func (s State) IsGuestCart() bool { return s.isGuestCart }

// LastSyncedAt is the time of the last server snapshot applied; zero if never synced.
func (s State) LastSyncedAt() time.Time { return s.lastSyncedAt }

// Selection returns the keys chosen for checkout, ordered.
func (s State) Selection() []model.ProductKey {
	return sortedKeys(s.selection)
}

// IsSelected reports whether key is chosen for checkout.
func (s State) IsSelected(key model.ProductKey) bool {
	_, ok := s.selection[key]
	return ok
}

// AllSelected reports whether a non-empty cart has every item selected.
// Derived on read so removals recompute it without bookkeeping.
func (s State) AllSelected() bool {
	return len(s.items) > 0 && len(s.selection) == len(s.items)
}

// Pending returns the keys with an in-flight, not yet settled remote write.
func (s State) Pending() []model.ProductKey {
	return sortedKeys(s.pending)
}

// IsPending reports whether key has an in-flight remote write.
func (s State) IsPending(key model.ProductKey) bool {
	_, ok := s.pending[key]
	return ok
}

// HasOptimistic reports whether any item carries an unconfirmed local change.
func (s State) HasOptimistic() bool {
	return len(s.baselines) > 0
}

// Committed returns the state with every optimistic change reverted to its last
// committed value. Backups persist this view.
func (s State) Committed() State {
	if len(s.baselines) == 0 && len(s.pending) == 0 {
		return s
	}
	next := s.clone()
	for key := range s.baselines {
		next.revert(key)
	}
	next.pending = nil
	next.recomputeTotals()
	return next
}

// Check verifies the structural invariants. A non-nil result is a bug in a transition.
func (s State) Check() error {
	var amount int64
	var count int
	for key, item := range s.items {
		if item.Key != key {
			return fmt.Errorf("item stored under %s has key %s", key, item.Key)
		}
		if item.Quantity < 1 {
			return fmt.Errorf("item %s has quantity %d", key, item.Quantity)
		}
		if item.TotalPrice != item.UnitPrice*int64(item.Quantity) {
			return fmt.Errorf("item %s total %d != %d x %d", key, item.TotalPrice, item.UnitPrice, item.Quantity)
		}
		amount += item.TotalPrice
		count += item.Quantity
	}
	if amount != s.totalAmount {
		return fmt.Errorf("total amount %d != sum %d", s.totalAmount, amount)
	}
	if count != s.totalItemCount {
		return fmt.Errorf("total item count %d != sum %d", s.totalItemCount, count)
	}
	for key := range s.selection {
		if _, ok := s.items[key]; !ok {
			return fmt.Errorf("selection holds %s which is not in the cart", key)
		}
	}
	for key := range s.baselines {
		if item, ok := s.items[key]; ok && !item.Optimistic {
			return fmt.Errorf("item %s has a baseline but is not optimistic", key)
		}
	}
	return nil
}

// ServerCart converts the state into the wire schema.
func (s State) ServerCart() model.ServerCart {
	items := s.Items()
	out := model.ServerCart{
		Items:       make([]model.ServerItem, 0, len(items)),
		IsGuestCart: s.isGuestCart,
		Totals: model.ServerTotals{
			Currency:    s.currency,
			TotalAmount: s.totalAmount,
			TotalItems:  s.totalItemCount,
		},
	}
	for _, item := range items {
		out.Items = append(out.Items, model.ServerItem{
			ProductID:  item.Key.ProductID,
			VariantID:  item.Key.VariantID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			TotalPrice: item.TotalPrice,
			Stock:      item.Stock,
		})
	}
	return out
}

// === copy-on-write helpers ===

func (s State) clone() State {
	next := s
	next.items = copyMap(s.items)
	next.selection = copyMap(s.selection)
	next.pending = copyMap(s.pending)
	next.baselines = copyMap(s.baselines)
	return next
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortedKeys[V any](m map[model.ProductKey]V) []model.ProductKey {
	out := make([]model.ProductKey, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// remember records the committed value of key before its first optimistic change.
// Later optimistic changes keep the original baseline.
func (s *State) remember(key model.ProductKey) {
	if _, ok := s.baselines[key]; ok {
		return
	}
	item, present := s.items[key]
	s.baselines[key] = baseline{item: item, present: present}
}

// track prepares key for a local change. An optimistic change keeps the committed
// baseline; a committed one becomes the baseline itself.
func (s *State) track(key model.ProductKey, optimistic bool) {
	if optimistic {
		s.remember(key)
		return
	}
	delete(s.baselines, key)
}

// revert restores key to its baseline and forgets the baseline.
func (s *State) revert(key model.ProductKey) {
	b, ok := s.baselines[key]
	if !ok {
		if item, exists := s.items[key]; exists {
			item.Optimistic = false
			s.items[key] = item
		}
		return
	}
	delete(s.baselines, key)
	if b.present {
		b.item.Optimistic = false
		s.items[key] = b.item
		return
	}
	delete(s.items, key)
	delete(s.selection, key)
}

func (s *State) recomputeTotals() {
	var amount int64
	var count int
	for _, item := range s.items {
		amount += item.TotalPrice
		count += item.Quantity
	}
	s.totalAmount = amount
	s.totalItemCount = count
}
