package woocommerce

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"cart-sync/internal/model"
	"cart-sync/internal/remote"
)

// storeServer is a tiny Store API: one cart, nonce checks on mutations.
type storeServer struct {
	mu       sync.Mutex
	items    []WooCartItem
	requests []string
	headers  []http.Header
	fail     map[string]int // path -> status
	failBody string
}

func (s *storeServer) cart() WooCartResponse {
	return WooCartResponse{Items: s.items, Totals: WooTotals{CurrencyCode: "EUR"}}
}

func (s *storeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, storeAPIPath)
	s.requests = append(s.requests, r.Method+" "+path)
	s.headers = append(s.headers, r.Header.Clone())

	if status, ok := s.fail[path]; ok {
		w.WriteHeader(status)
		w.Write([]byte(s.failBody))
		return
	}
	if r.Method != http.MethodGet && r.Header.Get("Nonce") != "n-1" {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":"woocommerce_rest_missing_nonce","message":"Missing the Nonce header."}`))
		return
	}

	switch r.Method + " " + path {
	case "GET /cart":
		w.Header().Set("Nonce", "n-1")
	case "POST /cart/add-item":
		var req WooCartAddRequest
		json.NewDecoder(r.Body).Decode(&req)
		s.items = append(s.items, wooItem("key-new", req.ID, req.Quantity, "250", 10))
	case "POST /cart/update-item":
		var req WooCartUpdateRequest
		json.NewDecoder(r.Body).Decode(&req)
		for i := range s.items {
			if s.items[i].Key == req.Key {
				s.items[i].Quantity = req.Quantity
			}
		}
	case "POST /cart/remove-item":
		var req WooCartRemoveRequest
		json.NewDecoder(r.Body).Decode(&req)
		kept := s.items[:0]
		for _, it := range s.items {
			if it.Key != req.Key {
				kept = append(kept, it)
			}
		}
		s.items = kept
	case "DELETE /cart/items":
		s.items = nil
		w.Write([]byte(`[]`))
		return
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(s.cart())
}

func newTestClient(t *testing.T, s *storeServer) *Client {
	t.Helper()
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	c, err := New(Config{StoreURL: srv.URL + "/", HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

var guest = remote.Identity{GuestID: "guest-1"}

func TestNew_RequiresStoreURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() without store URL should fail")
	}
}

func TestClient_GetCart(t *testing.T) {
	s := &storeServer{items: []WooCartItem{wooItem("k1", 12, 2, "1500", 0)}}
	c := newTestClient(t, s)

	got, err := c.GetCart(context.Background(), guest)
	if err != nil {
		t.Fatalf("GetCart() error = %v", err)
	}
	if got.Totals.TotalAmount != 3000 || got.Totals.Currency != "EUR" {
		t.Errorf("totals = %+v", got.Totals)
	}
	if h := s.headers[0]; h.Get("Cart-Token") != "guest-1" || h.Get("Authorization") != "" {
		t.Errorf("headers = %v, want guest cart token and no bearer", h)
	}
}

func TestClient_AddItemPreflightsNonce(t *testing.T) {
	s := &storeServer{}
	c := newTestClient(t, s)

	got, err := c.AddItem(context.Background(), guest, model.ProductKey{ProductID: "42"}, 3)
	if err != nil {
		t.Fatalf("AddItem() error = %v", err)
	}
	if len(got.Items) != 1 || got.Items[0].ProductID != "42" || got.Items[0].Quantity != 3 {
		t.Errorf("items = %+v, want 42 x3", got.Items)
	}
	want := []string{"GET /cart", "POST /cart/add-item"}
	if strings.Join(s.requests, ",") != strings.Join(want, ",") {
		t.Errorf("requests = %v, want %v", s.requests, want)
	}
}

func TestClient_UpdateAndRemoveUseCartItemKey(t *testing.T) {
	s := &storeServer{items: []WooCartItem{
		wooItem("k1", 12, 1, "100", 0),
		wooItem("k2", 34, 1, "100", 0),
	}}
	c := newTestClient(t, s)
	ctx := context.Background()

	got, err := c.UpdateItem(ctx, guest, model.ProductKey{ProductID: "34"}, 5)
	if err != nil {
		t.Fatalf("UpdateItem() error = %v", err)
	}
	if got.Totals.TotalItems != 6 {
		t.Errorf("TotalItems = %d, want 6", got.Totals.TotalItems)
	}

	got, err = c.RemoveItem(ctx, guest, model.ProductKey{ProductID: "12"})
	if err != nil {
		t.Fatalf("RemoveItem() error = %v", err)
	}
	if len(got.Items) != 1 || got.Items[0].ProductID != "34" {
		t.Errorf("items = %+v, want only 34", got.Items)
	}
}

func TestClient_UpdateUnknownLine(t *testing.T) {
	c := newTestClient(t, &storeServer{})
	_, err := c.UpdateItem(context.Background(), guest, model.ProductKey{ProductID: "9"}, 2)
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("UpdateItem() error = %v, want not found", err)
	}
}

func TestClient_ClearCart(t *testing.T) {
	s := &storeServer{items: []WooCartItem{wooItem("k1", 12, 1, "100", 0)}}
	c := newTestClient(t, s)

	got, err := c.ClearCart(context.Background(), guest)
	if err != nil {
		t.Fatalf("ClearCart() error = %v", err)
	}
	if len(got.Items) != 0 || got.Totals.Currency != "EUR" {
		t.Errorf("cart = %+v, want empty EUR cart", got)
	}
	if len(s.items) != 0 {
		t.Error("store still holds items")
	}
}

func TestClient_SignedInSendsBearer(t *testing.T) {
	s := &storeServer{}
	c := newTestClient(t, s)
	id := remote.Identity{GuestID: "guest-1", UserID: "u1", Token: "tok"}

	got, err := c.GetCart(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if got.IsGuestCart {
		t.Error("IsGuestCart = true for signed-in identity")
	}
	if auth := s.headers[0].Get("Authorization"); auth != "Bearer tok" {
		t.Errorf("Authorization = %q, want bearer", auth)
	}
}

func TestClient_RejectsNonWooKeys(t *testing.T) {
	c := newTestClient(t, &storeServer{})
	tests := []model.ProductKey{
		{ProductID: "sku-1"},
		{ProductID: "12", VariantID: "red"},
		{ProductID: "-3"},
	}
	for _, key := range tests {
		t.Run(key.String(), func(t *testing.T) {
			_, err := c.AddItem(context.Background(), guest, key, 1)
			if !errors.Is(err, model.ErrValidation) {
				t.Errorf("AddItem(%s) error = %v, want validation", key, err)
			}
		})
	}
}

func TestClient_MergeGuestCart(t *testing.T) {
	c := newTestClient(t, &storeServer{})
	if err := c.MergeGuestCart(context.Background(), guest); !errors.Is(err, model.ErrUnauthorized) {
		t.Errorf("MergeGuestCart(guest) error = %v, want unauthorized", err)
	}
	if err := c.MergeGuestCart(context.Background(), remote.Identity{GuestID: "g", Token: "t"}); err != nil {
		t.Errorf("MergeGuestCart(user) error = %v", err)
	}
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"out of stock", 400, `{"code":"woocommerce_rest_product_partially_out_of_stock","message":"Only 2 left"}`, model.ErrStockExceeded},
		{"invalid key", 409, `{"code":"woocommerce_rest_cart_invalid_key"}`, model.ErrNotFound},
		{"bad request", 400, `{"code":"rest_invalid_param","message":"bad"}`, model.ErrValidation},
		{"forbidden", 403, ``, model.ErrUnauthorized},
		{"rate limited", 429, ``, model.ErrRateLimited},
		{"server", 500, `oops`, model.ErrServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &storeServer{fail: map[string]int{"/cart/add-item": tt.status}, failBody: tt.body}
			c := newTestClient(t, s)
			_, err := c.AddItem(context.Background(), guest, model.ProductKey{ProductID: "5"}, 1)
			if !errors.Is(err, tt.want) {
				t.Errorf("AddItem() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestClient_NetworkFailureIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, _ := New(Config{StoreURL: url})
	_, err := c.GetCart(context.Background(), guest)
	if !model.IsRetryable(err) {
		t.Errorf("GetCart() error = %v, want retryable network error", err)
	}
}
