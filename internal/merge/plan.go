// Package merge folds a guest cart into the user's cart once per login.
package merge

import (
	"fmt"
	"sort"

	"cart-sync/internal/model"
	"cart-sync/internal/reconcile"
)

// Policy decides what happens to a merged line whose summed quantity exceeds known stock.
type Policy string

const (
	// PolicyCap lowers the merged quantity to the available stock.
	PolicyCap Policy = "cap"
	// PolicyReject keeps the user's own quantity and drops the guest's contribution.
	PolicyReject Policy = "reject"
)

// ParsePolicy accepts "cap" or "reject". Empty means cap.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyCap:
		return PolicyCap, nil
	case PolicyReject:
		return PolicyReject, nil
	default:
		return "", fmt.Errorf("unknown merge policy %q", s)
	}
}

// Outcome is the expected result of a merge.
type Outcome struct {
	Items    []model.ServerItem // Ordered by key
	Adjusted []model.ProductKey // Lines the stock policy changed
}

// Plan sums guest quantities into the user's lines by product key. When stock is
// known and the sum exceeds it, policy decides the quantity. Unit prices come from
// the user's cart where both carts hold a line.
func Plan(guest, user []model.ServerItem, policy Policy) Outcome {
	lines := make(map[model.ProductKey]model.ServerItem, len(user)+len(guest))
	for _, it := range user {
		lines[it.Key()] = it
	}

	var out Outcome
	for _, g := range guest {
		key := g.Key()
		u, owned := lines[key]
		merged := g
		if owned {
			merged = u
			merged.Quantity = u.Quantity + g.Quantity
			if merged.Stock == nil {
				merged.Stock = g.Stock
			}
		}

		if merged.Stock != nil && merged.Quantity > *merged.Stock {
			out.Adjusted = append(out.Adjusted, key)
			switch {
			case policy == PolicyReject && owned:
				merged.Quantity = u.Quantity
			case policy == PolicyReject:
				merged.Quantity = 0
			default:
				merged.Quantity = *merged.Stock
			}
		}

		if merged.Quantity < 1 {
			delete(lines, key)
			continue
		}
		merged.TotalPrice = merged.UnitPrice * int64(merged.Quantity)
		lines[key] = merged
	}

	for _, it := range lines {
		out.Items = append(out.Items, it)
	}
	sort.Slice(out.Items, func(i, j int) bool {
		return out.Items[i].Key().String() < out.Items[j].Key().String()
	})
	return out
}

// Correction is a quantity the policy requires on the server after a merge. Zero
// removes the line.
type Correction struct {
	Key      model.ProductKey
	Quantity int
}

// Corrections lists the adjusted lines the server merged past the planned quantity.
// Lines the server left at or below the plan stand.
func (o Outcome) Corrections(actual []model.ServerItem) []Correction {
	if len(o.Adjusted) == 0 {
		return nil
	}
	planned := make(map[model.ProductKey]int, len(o.Items))
	for _, it := range o.Items {
		planned[it.Key()] = it.Quantity
	}
	have := make(map[model.ProductKey]int, len(actual))
	for _, it := range actual {
		have[it.Key()] = it.Quantity
	}

	var out []Correction
	for _, key := range o.Adjusted {
		if have[key] > planned[key] {
			out = append(out, Correction{Key: key, Quantity: planned[key]})
		}
	}
	return out
}

// Diff compares the planned outcome with what the server reports after the merge.
func (o Outcome) Diff(actual []model.ServerItem) *reconcile.LineItemDiff {
	desired := make([]reconcile.DesiredItem, 0, len(o.Items))
	for _, it := range o.Items {
		desired = append(desired, reconcile.DesiredItem{Key: it.Key(), Quantity: it.Quantity})
	}
	return reconcile.DiffLineItems(reconcile.FromServer(actual), desired)
}
