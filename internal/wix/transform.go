package wix

import (
	"cart-sync/internal/model"
	"cart-sync/internal/reconcile"
	"cart-sync/internal/remote"
)

// CartToServer normalizes a Wix cart into the engine's cart schema. Wix prices are
// decimal major units; totals are recomputed from the lines.
func CartToServer(cart *WixCart, id remote.Identity) (*model.ServerCart, error) {
	out := &model.ServerCart{
		Items:       make([]model.ServerItem, 0, len(cart.LineItems)),
		Totals:      model.ServerTotals{Currency: cart.Currency},
		IsGuestCart: !id.Authenticated(),
	}
	for i := range cart.LineItems {
		out.Items = append(out.Items, transformLineItem(&cart.LineItems[i]))
	}
	out.RecomputeTotals()

	if err := out.Validate(); err != nil {
		return nil, model.NewServerError(serviceName, err)
	}
	return out, nil
}

func transformLineItem(item *WixLineItem) model.ServerItem {
	key := lineKey(item)
	si := model.ServerItem{
		ProductID: key.ProductID,
		VariantID: key.VariantID,
		Quantity:  item.Quantity,
	}
	if item.ProductName != nil {
		si.Name = item.ProductName.Translated
		if si.Name == "" {
			si.Name = item.ProductName.Original
		}
	}
	if item.Price != nil {
		si.UnitPrice = model.ParseCents(item.Price.Amount)
	}
	si.TotalPrice = si.UnitPrice * int64(item.Quantity)
	if a := item.Availability; a != nil && a.QuantityAvailable != nil {
		si.Stock = model.IntPtr(*a.QuantityAvailable)
	}
	return si
}

func lineKey(item *WixLineItem) model.ProductKey {
	var key model.ProductKey
	if ref := item.CatalogReference; ref != nil {
		key.ProductID = ref.CatalogItemID
		if ref.Options != nil {
			key.VariantID = ref.Options.VariantID
		}
	}
	return key
}

// CurrentItems lists the cart's lines with the line item ids Wix addresses them by.
func CurrentItems(cart *WixCart) []reconcile.CurrentItem {
	items := make([]reconcile.CurrentItem, len(cart.LineItems))
	for i := range cart.LineItems {
		item := &cart.LineItems[i]
		items[i] = reconcile.CurrentItem{
			Key:       lineKey(item),
			BackendID: item.ID,
			Quantity:  item.Quantity,
		}
	}
	return items
}
