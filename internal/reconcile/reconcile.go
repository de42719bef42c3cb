// Package reconcile computes the difference between two views of a cart's lines.
// The merge resolver diffs its expected outcome against the server's answer, and
// backends use the lookup side to find platform line ids for a product key.
package reconcile

import (
	"sort"

	"cart-sync/internal/model"
)

// LineItemDiff describes how current differs from desired.
// Applying Remove, then Update, then Add turns current into desired.
type LineItemDiff struct {
	ToAdd    []ItemToAdd    // Keys in desired but not current
	ToRemove []ItemToRemove // Keys in current but not desired
	ToUpdate []ItemToUpdate // Keys in both with different quantities
}

// ItemToAdd is a line missing from current.
type ItemToAdd struct {
	Key      model.ProductKey
	Quantity int
}

// ItemToRemove is a line current holds that desired does not.
type ItemToRemove struct {
	Key       model.ProductKey
	BackendID string // Platform line id, when the backend has one
}

// ItemToUpdate is a quantity mismatch.
type ItemToUpdate struct {
	Key         model.ProductKey
	BackendID   string
	OldQuantity int
	NewQuantity int
}

// IsEmpty returns true if current already matches desired.
func (d *LineItemDiff) IsEmpty() bool {
	return len(d.ToAdd) == 0 && len(d.ToRemove) == 0 && len(d.ToUpdate) == 0
}

// Keys returns every key the diff touches, sorted by their string form.
func (d *LineItemDiff) Keys() []string {
	keys := make([]string, 0, len(d.ToAdd)+len(d.ToRemove)+len(d.ToUpdate))
	for _, it := range d.ToAdd {
		keys = append(keys, it.Key.String())
	}
	for _, it := range d.ToRemove {
		keys = append(keys, it.Key.String())
	}
	for _, it := range d.ToUpdate {
		keys = append(keys, it.Key.String())
	}
	sort.Strings(keys)
	return keys
}

// CurrentItem is a line as some backend currently holds it.
type CurrentItem struct {
	Key       model.ProductKey
	BackendID string // cart_item_key for WooCommerce, empty for the JSON service
	Quantity  int
}

// DesiredItem is a line as it should be.
type DesiredItem struct {
	Key      model.ProductKey
	Quantity int
}

// DiffLineItems computes the delta between current and desired lines, matched by
// product key. Output slices are ordered by key so results are stable.
func DiffLineItems(current []CurrentItem, desired []DesiredItem) *LineItemDiff {
	diff := &LineItemDiff{}

	currentByKey := make(map[model.ProductKey]CurrentItem, len(current))
	for _, item := range current {
		currentByKey[item.Key] = item
	}
	desiredByKey := make(map[model.ProductKey]DesiredItem, len(desired))
	for _, item := range desired {
		desiredByKey[item.Key] = item
	}

	for _, key := range sortedKeys(desiredByKey) {
		want := desiredByKey[key]
		have, exists := currentByKey[key]
		switch {
		case !exists:
			diff.ToAdd = append(diff.ToAdd, ItemToAdd{Key: key, Quantity: want.Quantity})
		case have.Quantity != want.Quantity:
			diff.ToUpdate = append(diff.ToUpdate, ItemToUpdate{
				Key:         key,
				BackendID:   have.BackendID,
				OldQuantity: have.Quantity,
				NewQuantity: want.Quantity,
			})
		}
	}

	for _, key := range sortedKeys(currentByKey) {
		if _, exists := desiredByKey[key]; !exists {
			have := currentByKey[key]
			diff.ToRemove = append(diff.ToRemove, ItemToRemove{Key: key, BackendID: have.BackendID})
		}
	}
	return diff
}

// FromServer lists the lines of a server cart as current items.
func FromServer(items []model.ServerItem) []CurrentItem {
	out := make([]CurrentItem, 0, len(items))
	for _, it := range items {
		out = append(out, CurrentItem{Key: it.Key(), Quantity: it.Quantity})
	}
	return out
}

// FindBackendID returns the platform line id recorded for key.
func FindBackendID(current []CurrentItem, key model.ProductKey) (string, bool) {
	for _, item := range current {
		if item.Key == key && item.BackendID != "" {
			return item.BackendID, true
		}
	}
	return "", false
}

func sortedKeys[V any](m map[model.ProductKey]V) []model.ProductKey {
	keys := make([]model.ProductKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}
