// MCP transport for the cart session using the official MCP Go SDK.
// Exposes cart operations as MCP tools.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"cart-sync/internal/model"
)

// === MCP Tool Input Types ===

// GetCartInput is the input schema for get_cart.
type GetCartInput struct{}

// AddItemInput is the input schema for add_item.
type AddItemInput struct {
	ProductID string `json:"product_id" jsonschema:"product ID"`
	VariantID string `json:"variant_id,omitempty" jsonschema:"variant ID, if the product has variants"`
	Name      string `json:"name,omitempty" jsonschema:"display name shown until the server answers"`
	Quantity  int    `json:"quantity" jsonschema:"quantity to add, at least 1"`
	UnitPrice int64  `json:"unit_price,omitempty" jsonschema:"unit price in minor currency units"`
	Stock     *int   `json:"stock,omitempty" jsonschema:"known available stock"`
}

// UpdateItemInput is the input schema for update_item.
type UpdateItemInput struct {
	Key      string `json:"key" jsonschema:"line key: product or product:variant"`
	Quantity int    `json:"quantity" jsonschema:"new quantity; 0 removes the line"`
}

// RemoveItemInput is the input schema for remove_item.
type RemoveItemInput struct {
	Key string `json:"key" jsonschema:"line key: product or product:variant"`
}

// SelectItemsInput is the input schema for select_items. With All set, Keys is ignored
// and every line is selected or unselected.
type SelectItemsInput struct {
	Keys     []string `json:"keys,omitempty" jsonschema:"line keys to change"`
	All      bool     `json:"all,omitempty" jsonschema:"apply to every line in the cart"`
	Selected bool     `json:"selected" jsonschema:"true to select for checkout, false to unselect"`
}

// ClearCartInput is the input schema for clear_cart.
type ClearCartInput struct{}

// NewMCPServer creates an MCP server with the cart tools registered.
// The server exposes the same operations as the REST API but via MCP protocol.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "cart-sync",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Cart session tools. Quantity changes apply immediately and sync " +
				"to the store in the background; each line reports its sync state.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_cart",
		Description: "Get the current cart, its totals and the checkout selection.",
	}, h.mcpGetCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_item",
		Description: "Add a quantity of a product to the cart.",
	}, h.mcpAddItem)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_item",
		Description: "Set the quantity of a cart line. Quantity 0 removes it.",
	}, h.mcpUpdateItem)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_item",
		Description: "Remove a line from the cart.",
	}, h.mcpRemoveItem)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "select_items",
		Description: "Select or unselect cart lines for checkout.",
	}, h.mcpSelectItems)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "clear_cart",
		Description: "Remove every line from the cart.",
	}, h.mcpClearCart)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpGetCart(ctx context.Context, req *mcp.CallToolRequest, input GetCartInput) (*mcp.CallToolResult, *CartView, error) {
	return nil, h.cartView(h.session.Cart()), nil
}

func (h *Handler) mcpAddItem(ctx context.Context, req *mcp.CallToolRequest, input AddItemInput) (*mcp.CallToolResult, *CartView, error) {
	state, err := h.session.Add(ctx, AddItemRequest(input).toCoordinator())
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, h.cartView(state), nil
}

func (h *Handler) mcpUpdateItem(ctx context.Context, req *mcp.CallToolRequest, input UpdateItemInput) (*mcp.CallToolResult, *CartView, error) {
	key, err := model.ParseProductKey(input.Key)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	state, err := h.session.Update(ctx, key, input.Quantity)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, h.cartView(state), nil
}

func (h *Handler) mcpRemoveItem(ctx context.Context, req *mcp.CallToolRequest, input RemoveItemInput) (*mcp.CallToolResult, *CartView, error) {
	key, err := model.ParseProductKey(input.Key)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	state, err := h.session.Remove(ctx, key)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, h.cartView(state), nil
}

func (h *Handler) mcpSelectItems(ctx context.Context, req *mcp.CallToolRequest, input SelectItemsInput) (*mcp.CallToolResult, *CartView, error) {
	sel := h.session.Selection()
	if input.All {
		if _, err := sel.SelectAll(input.Selected); err != nil {
			return nil, nil, h.mcpError(err)
		}
		return nil, h.cartView(h.session.Cart()), nil
	}
	if len(input.Keys) == 0 {
		return nil, nil, h.mcpError(model.NewValidationError("keys", "at least one key or all is required"))
	}
	for _, raw := range input.Keys {
		key, err := model.ParseProductKey(raw)
		if err != nil {
			return nil, nil, h.mcpError(err)
		}
		if _, err := sel.Select(key, input.Selected); err != nil {
			return nil, nil, h.mcpError(err)
		}
	}
	return nil, h.cartView(h.session.Cart()), nil
}

func (h *Handler) mcpClearCart(ctx context.Context, req *mcp.CallToolRequest, input ClearCartInput) (*mcp.CallToolResult, *CartView, error) {
	state, err := h.session.Clear(ctx)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, h.cartView(state), nil
}

// mcpError converts session errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	var cartErr *model.CartError
	if errors.As(err, &cartErr) {
		return fmt.Errorf("%s: %s", cartErr.Code, cartErr.Message)
	}
	// Don't leak internal error details
	h.logger.Error("mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}
