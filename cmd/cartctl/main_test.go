package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cart-sync/internal/handler"
)

func withServer(t *testing.T, h http.HandlerFunc) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	saved := serverURL
	serverURL = srv.URL
	t.Cleanup(func() { serverURL = saved })
}

func TestDoRequest(t *testing.T) {
	var gotMethod, gotPath, gotType string
	var gotBody handler.QuantityRequest
	withServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath, gotType = r.Method, r.URL.EscapedPath(), r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(handler.CartView{Display: "USD 12.50", TotalItems: 1})
	})

	qty := 3
	var view handler.CartView
	if err := doRequest("PUT", "/cart/items/A%3Av1", handler.QuantityRequest{Quantity: &qty}, &view); err != nil {
		t.Fatalf("doRequest() error = %v", err)
	}
	if gotMethod != "PUT" || gotPath != "/cart/items/A%3Av1" {
		t.Errorf("request = %s %s, want PUT /cart/items/A%%3Av1", gotMethod, gotPath)
	}
	if gotType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotType)
	}
	if gotBody.Quantity == nil || *gotBody.Quantity != 3 {
		t.Errorf("body quantity = %v, want 3", gotBody.Quantity)
	}
	if view.Display != "USD 12.50" {
		t.Errorf("Display = %q, want USD 12.50", view.Display)
	}
}

func TestDoRequest_ErrorEnvelope(t *testing.T) {
	withServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":{"code":"STOCK_EXCEEDED","message":"only 2 left"}}`))
	})

	var view handler.CartView
	err := doRequest("POST", "/cart/items", handler.AddItemRequest{ProductID: "A", Quantity: 5}, &view)
	if err == nil || err.Error() != "STOCK_EXCEEDED: only 2 left" {
		t.Errorf("doRequest() error = %v, want STOCK_EXCEEDED: only 2 left", err)
	}
}

func TestDoRequest_PlainError(t *testing.T) {
	withServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway down", http.StatusBadGateway)
	})

	var view handler.CartView
	err := doRequest("GET", "/cart", nil, &view)
	if err == nil || !strings.HasPrefix(err.Error(), "HTTP 502") {
		t.Errorf("doRequest() error = %v, want HTTP 502", err)
	}
}

func TestPrintCart(t *testing.T) {
	disableColors()

	var buf bytes.Buffer
	printCart(&buf, handler.CartView{
		Items: []handler.ItemView{
			{Key: "A", Name: "Mug", Quantity: 2, TotalPrice: 2500, Selected: true, State: "committed"},
			{Key: "B:red", Quantity: 1, TotalPrice: 300, State: "pending_optimistic"},
		},
		Currency:   "USD",
		Display:    "USD 28.00",
		TotalItems: 3,
		Selection:  handler.SelectionView{Display: "USD 25.00", Count: 2},
	})
	out := buf.String()

	for _, want := range []string{"* Mug", "B:red", "syncing", "Total: USD 28.00 (3 items)", "Selected: USD 25.00 (2 items)"} {
		if !strings.Contains(out, want) {
			t.Errorf("printCart() output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	printCart(&buf, handler.CartView{Display: "0.00"})
	if !strings.Contains(buf.String(), "(empty cart)") {
		t.Errorf("printCart() of empty cart = %q", buf.String())
	}
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"get", "add", "update", "remove", "clear", "refresh", "select", "login", "logout", "notes"} {
		if commands[name] == nil {
			t.Errorf("command %q not registered", name)
		}
	}
}
