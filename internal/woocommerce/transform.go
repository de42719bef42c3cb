package woocommerce

import (
	"fmt"
	"strconv"

	"cart-sync/internal/model"
	"cart-sync/internal/reconcile"
	"cart-sync/internal/remote"
)

// CartToServer normalizes a Store API cart into the engine's cart schema.
//
// Store totals include shipping, fees and tax, so the engine totals are recomputed
// from the lines. Line totals are unit price times quantity; line_subtotal would carry
// discounts the engine does not model.
func CartToServer(cart *WooCartResponse, id remote.Identity) (*model.ServerCart, error) {
	if cart == nil {
		return nil, model.NewServerError(serviceName, fmt.Errorf("empty cart response"))
	}

	out := &model.ServerCart{
		Items:       make([]model.ServerItem, 0, len(cart.Items)),
		Totals:      model.ServerTotals{Currency: cart.Totals.CurrencyCode},
		IsGuestCart: !id.Authenticated(),
	}
	for i := range cart.Items {
		out.Items = append(out.Items, transformCartItem(&cart.Items[i]))
	}
	out.RecomputeTotals()

	if err := out.Validate(); err != nil {
		return nil, model.NewServerError(serviceName, err)
	}
	return out, nil
}

func transformCartItem(item *WooCartItem) model.ServerItem {
	unit := model.ParseMinorUnits(item.Prices.Price)
	si := model.ServerItem{
		ProductID:  strconv.Itoa(item.ID),
		Name:       item.Name,
		Quantity:   item.Quantity,
		UnitPrice:  unit,
		TotalPrice: unit * int64(item.Quantity),
	}
	// quantity_limits.maximum is the lesser of stock and the purchase limit;
	// zero means the store did not report one.
	if item.QuantityLimits.Maximum > 0 {
		si.Stock = model.IntPtr(item.QuantityLimits.Maximum)
	}
	return si
}

// CurrentItems lists the cart's lines with the cart item keys WooCommerce addresses
// them by, ready for reconcile.FindBackendID.
func CurrentItems(cart *WooCartResponse) []reconcile.CurrentItem {
	items := make([]reconcile.CurrentItem, len(cart.Items))
	for i, item := range cart.Items {
		items[i] = reconcile.CurrentItem{
			Key:       model.ProductKey{ProductID: strconv.Itoa(item.ID)},
			BackendID: item.Key,
			Quantity:  item.Quantity,
		}
	}
	return items
}
