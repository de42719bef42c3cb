package coordinator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"cart-sync/internal/cart"
	"cart-sync/internal/debounce"
	"cart-sync/internal/model"
	"cart-sync/internal/notify"
	"cart-sync/internal/remote"
)

var (
	keyA = model.ProductKey{ProductID: "A"}
	keyB = model.ProductKey{ProductID: "B"}

	t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

// fakeService is an in-memory cart server. Hooks run before a call takes effect and
// may block or fail it.
type fakeService struct {
	mu     sync.Mutex
	items  map[model.ProductKey]model.ServerItem
	prices map[model.ProductKey]int64
	calls  map[string]int

	addErrs    []error // Returned by successive AddItem calls
	addHook    func(key model.ProductKey) error
	updateHook func(key model.ProductKey, qty int) error
	removeHook func(key model.ProductKey) error
	clearErr   error
}

func newFakeService(items ...model.ServerItem) *fakeService {
	f := &fakeService{
		items:  make(map[model.ProductKey]model.ServerItem),
		prices: map[model.ProductKey]int64{keyA: 500, keyB: 250},
		calls:  make(map[string]int),
	}
	for _, it := range items {
		f.items[it.Key()] = it
	}
	return f
}

func (f *fakeService) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeService) record(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
}

// cartLocked renders the server cart. Caller holds mu.
func (f *fakeService) cartLocked() *model.ServerCart {
	c := &model.ServerCart{Totals: model.ServerTotals{Currency: "USD"}}
	for _, it := range f.items {
		c.Items = append(c.Items, it)
	}
	sort.Slice(c.Items, func(i, j int) bool { return c.Items[i].ProductID < c.Items[j].ProductID })
	c.RecomputeTotals()
	return c
}

func (f *fakeService) setLocked(key model.ProductKey, qty int) {
	price := f.prices[key]
	f.items[key] = model.ServerItem{
		ProductID:  key.ProductID,
		VariantID:  key.VariantID,
		Quantity:   qty,
		UnitPrice:  price,
		TotalPrice: price * int64(qty),
	}
}

func (f *fakeService) GetCart(context.Context, remote.Identity) (*model.ServerCart, error) {
	f.record("get")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cartLocked(), nil
}

func (f *fakeService) AddItem(_ context.Context, _ remote.Identity, key model.ProductKey, qty int) (*model.ServerCart, error) {
	f.record("add")
	f.mu.Lock()
	hook := f.addHook
	f.mu.Unlock()
	if hook != nil {
		if err := hook(key); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.addErrs) > 0 {
		err := f.addErrs[0]
		f.addErrs = f.addErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	f.setLocked(key, f.items[key].Quantity+qty)
	return f.cartLocked(), nil
}

func (f *fakeService) UpdateItem(_ context.Context, _ remote.Identity, key model.ProductKey, qty int) (*model.ServerCart, error) {
	f.record("update")
	f.mu.Lock()
	hook := f.updateHook
	f.mu.Unlock()
	if hook != nil {
		if err := hook(key, qty); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[key]; !ok {
		return nil, model.NewNotFoundError("line item")
	}
	f.setLocked(key, qty)
	return f.cartLocked(), nil
}

func (f *fakeService) RemoveItem(_ context.Context, _ remote.Identity, key model.ProductKey) (*model.ServerCart, error) {
	f.record("remove")
	f.mu.Lock()
	hook := f.removeHook
	f.mu.Unlock()
	if hook != nil {
		if err := hook(key); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, key)
	return f.cartLocked(), nil
}

func (f *fakeService) ClearCart(context.Context, remote.Identity) (*model.ServerCart, error) {
	f.record("clear")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clearErr != nil {
		return nil, f.clearErr
	}
	clear(f.items)
	return f.cartLocked(), nil
}

func (f *fakeService) MergeGuestCart(context.Context, remote.Identity) error {
	f.record("merge")
	return nil
}

type harness struct {
	store *cart.Store
	svc   *fakeService
	clock *debounce.ManualClock
	notes *notify.Recorder
	coord *Coordinator
}

func newHarness(t *testing.T, svc *fakeService) *harness {
	t.Helper()
	return newTracedHarness(t, svc, nil)
}

func newTracedHarness(t *testing.T, svc *fakeService, tracer trace.Tracer) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := cart.NewStore(cart.NewGuestState(), cart.StoreConfig{Logger: logger, Now: func() time.Time { return t0 }})

	svc.mu.Lock()
	initial := *svc.cartLocked()
	svc.mu.Unlock()
	if _, err := store.Dispatch(cart.Set{Cart: initial}); err != nil {
		t.Fatalf("seeding store: %v", err)
	}

	h := &harness{
		store: store,
		svc:   svc,
		clock: debounce.NewManualClock(t0),
		notes: notify.NewRecorder(0, nil),
	}
	coord, err := New(Config{
		Store:       store,
		Remote:      svc,
		Identity:    remote.NewCredentials(remote.Identity{GuestID: "guest-1"}),
		Notifier:    h.notes,
		Logger:      logger,
		Tracer:      tracer,
		Clock:       h.clock,
		Window:      500 * time.Millisecond,
		AddAttempts: 2,
		AddBackoff:  time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.coord = coord
	t.Cleanup(func() { h.wait(t) })
	return h
}

func (h *harness) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.coord.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
}

func (h *harness) item(t *testing.T, key model.ProductKey) cart.LineItem {
	t.Helper()
	item, ok := h.store.Snapshot().Item(key)
	if !ok {
		t.Fatalf("item %s missing from store", key)
	}
	return item
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func serverItem(key model.ProductKey, qty int, unit int64) model.ServerItem {
	return model.ServerItem{ProductID: key.ProductID, VariantID: key.VariantID, Quantity: qty, UnitPrice: unit, TotalPrice: unit * int64(qty)}
}

func TestCoordinator_DebounceCoalesces(t *testing.T) {
	h := newHarness(t, newFakeService(serverItem(keyA, 2, 500)))
	ctx := context.Background()

	// Three updates within 100ms: one network write carrying the last value.
	for _, qty := range []int{3, 4, 5} {
		if _, err := h.coord.Update(ctx, keyA, qty); err != nil {
			t.Fatalf("Update(%d) error = %v", qty, err)
		}
		h.clock.Advance(40 * time.Millisecond)
	}

	if item := h.item(t, keyA); item.Quantity != 5 || !item.Optimistic {
		t.Errorf("optimistic item = %+v, want quantity 5 optimistic", item)
	}
	if h.coord.KeyState(keyA) != PendingOptimistic {
		t.Errorf("KeyState = %v, want pending_optimistic", h.coord.KeyState(keyA))
	}
	if n := h.svc.count("update"); n != 0 {
		t.Fatalf("update calls before window = %d, want 0", n)
	}

	h.clock.Advance(500 * time.Millisecond)
	h.wait(t)

	if n := h.svc.count("update"); n != 1 {
		t.Errorf("update calls = %d, want 1", n)
	}
	item := h.item(t, keyA)
	if item.Quantity != 5 || item.Optimistic {
		t.Errorf("settled item = %+v, want quantity 5 committed", item)
	}
	if h.store.Snapshot().IsPending(keyA) {
		t.Error("key should not be pending after settle")
	}
	if h.coord.KeyState(keyA) != Committed {
		t.Errorf("KeyState = %v, want committed", h.coord.KeyState(keyA))
	}
	if n := h.svc.count("get"); n != 1 {
		t.Errorf("canonical reloads = %d, want 1", n)
	}
}

func TestCoordinator_DebouncedWriteJoinsRequestTrace(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	tracer := tp.Tracer("cart-sync/test")
	h := newTracedHarness(t, newFakeService(serverItem(keyA, 2, 500)), tracer)

	ctx, request := tracer.Start(context.Background(), "PUT /cart/items/A")
	h.coord.Update(ctx, keyA, 3)
	request.End()

	h.clock.Advance(500 * time.Millisecond)
	h.wait(t)

	var write sdktrace.ReadOnlySpan
	for _, s := range sr.Ended() {
		if s.Name() == "cart.update_item" {
			write = s
		}
	}
	if write == nil {
		t.Fatal("no cart.update_item span recorded")
	}
	if got, want := write.Parent().SpanID(), request.SpanContext().SpanID(); got != want {
		t.Errorf("parent span = %s, want the request span %s", got, want)
	}
	if got, want := write.SpanContext().TraceID(), request.SpanContext().TraceID(); got != want {
		t.Errorf("trace = %s, want %s", got, want)
	}
}

func TestCoordinator_RollbackOnFailure(t *testing.T) {
	svc := newFakeService(serverItem(keyA, 2, 500))
	svc.updateHook = func(model.ProductKey, int) error {
		return model.NewServerError("cart service", errors.New("status 500"))
	}
	h := newHarness(t, svc)

	h.coord.Update(context.Background(), keyA, 7)
	h.clock.Advance(500 * time.Millisecond)
	h.wait(t)

	item := h.item(t, keyA)
	if item.Quantity != 2 || item.TotalPrice != 1000 || item.Optimistic {
		t.Errorf("item = %+v, want committed quantity 2", item)
	}
	if h.store.Snapshot().TotalAmount() != 1000 {
		t.Errorf("TotalAmount() = %d, want 1000", h.store.Snapshot().TotalAmount())
	}
	notes := h.notes.Messages()
	if len(notes) != 1 || notes[0].Severity != notify.Error {
		t.Errorf("notifications = %+v, want one error", notes)
	}
	if h.coord.KeyState(keyA) != Committed {
		t.Errorf("KeyState = %v, want committed", h.coord.KeyState(keyA))
	}
}

func TestCoordinator_StaleResponseDiscarded(t *testing.T) {
	release := make(chan struct{})
	svc := newFakeService(serverItem(keyA, 2, 500))
	svc.updateHook = func(_ model.ProductKey, qty int) error {
		if qty == 3 {
			<-release
			return model.NewServerError("cart service", errors.New("late failure"))
		}
		return nil
	}
	h := newHarness(t, svc)
	ctx := context.Background()

	h.coord.Update(ctx, keyA, 3)
	h.clock.Advance(500 * time.Millisecond) // fires seq 1, which blocks
	eventually(t, "first write in flight", func() bool { return h.store.Snapshot().IsPending(keyA) })

	h.coord.Update(ctx, keyA, 4)
	h.clock.Advance(500 * time.Millisecond) // fires seq 2, which succeeds
	eventually(t, "second write settled", func() bool {
		item, _ := h.store.Snapshot().Item(keyA)
		return !item.Optimistic && item.Quantity == 4
	})

	close(release)
	h.wait(t)

	item := h.item(t, keyA)
	if item.Quantity != 4 || item.Optimistic {
		t.Errorf("item = %+v, want quantity 4 kept despite the late failure", item)
	}
	if notes := h.notes.Messages(); len(notes) != 0 {
		t.Errorf("stale failure should not notify, got %+v", notes)
	}
	if h.store.Snapshot().IsPending(keyA) {
		t.Error("key should not be pending once every write finished")
	}
	if h.coord.Seq(keyA) != 2 {
		t.Errorf("Seq = %d, want 2", h.coord.Seq(keyA))
	}
}

func TestCoordinator_FailureAfterStaleSuccessReloads(t *testing.T) {
	release := make(chan struct{})
	svc := newFakeService()
	svc.addHook = func(model.ProductKey) error {
		<-release
		return nil
	}
	svc.updateHook = func(model.ProductKey, int) error {
		return model.NewServerError("cart service", errors.New("status 500"))
	}
	h := newHarness(t, svc)
	ctx := context.Background()

	h.coord.Add(ctx, AddRequest{Key: keyA, Quantity: 1, UnitPrice: 500})
	eventually(t, "add in flight", func() bool { return h.svc.count("add") == 1 })

	h.coord.Update(ctx, keyA, 3)
	close(release) // the add lands on the server but its answer is stale
	eventually(t, "stale add answered", func() bool { return !h.store.Snapshot().IsPending(keyA) })

	h.clock.Advance(500 * time.Millisecond) // the update fails
	h.wait(t)

	item := h.item(t, keyA)
	if item.Quantity != 1 || item.Optimistic {
		t.Errorf("item = %+v, want the server's committed quantity 1", item)
	}
	if n := h.svc.count("get"); n != 1 {
		t.Errorf("canonical reloads = %d, want 1", n)
	}
	if notes := h.notes.Messages(); len(notes) != 1 || notes[0].Severity != notify.Error {
		t.Errorf("notifications = %+v, want one error", notes)
	}
}

func TestCoordinator_AddNewKeyRetriesNetworkFailure(t *testing.T) {
	svc := newFakeService()
	svc.addErrs = []error{model.NewNetworkError("cart service", errors.New("connection reset"))}
	h := newHarness(t, svc)

	next, err := h.coord.Add(context.Background(), AddRequest{Key: keyB, Quantity: 1, UnitPrice: 250})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if item, ok := next.Item(keyB); !ok || !item.Optimistic {
		t.Errorf("Add() should apply optimistically, got %+v", item)
	}
	h.wait(t)

	if n := h.svc.count("add"); n != 2 {
		t.Errorf("add calls = %d, want 2 (one retry)", n)
	}
	if item := h.item(t, keyB); item.Quantity != 1 || item.Optimistic {
		t.Errorf("item = %+v, want committed quantity 1", item)
	}
	if h.clock.Armed() != 0 {
		t.Error("a new key should not go through the debouncer")
	}
}

func TestCoordinator_AddNewKeyPermanentFailure(t *testing.T) {
	svc := newFakeService()
	svc.addErrs = []error{model.NewServerError("cart service", errors.New("status 500"))}
	h := newHarness(t, svc)

	h.coord.Add(context.Background(), AddRequest{Key: keyB, Quantity: 1, UnitPrice: 250})
	h.wait(t)

	if n := h.svc.count("add"); n != 1 {
		t.Errorf("add calls = %d, want 1 (server errors are not retried)", n)
	}
	if _, ok := h.store.Snapshot().Item(keyB); ok {
		t.Error("failed add should be rolled back")
	}
	if len(h.notes.Messages()) != 1 {
		t.Errorf("notifications = %+v, want one", h.notes.Messages())
	}
}

func TestCoordinator_AddExistingKeyDebouncesTotal(t *testing.T) {
	svc := newFakeService(serverItem(keyA, 2, 500))
	var got []int
	svc.updateHook = func(_ model.ProductKey, qty int) error {
		got = append(got, qty)
		return nil
	}
	h := newHarness(t, svc)

	h.coord.Add(context.Background(), AddRequest{Key: keyA, Quantity: 2})
	h.coord.Add(context.Background(), AddRequest{Key: keyA, Quantity: 1})
	h.clock.Advance(500 * time.Millisecond)
	h.wait(t)

	if n := h.svc.count("add"); n != 0 {
		t.Errorf("add calls = %d, want 0", n)
	}
	if len(got) != 1 || got[0] != 5 {
		t.Errorf("update quantities = %v, want [5]", got)
	}
	if item := h.item(t, keyA); item.Quantity != 5 {
		t.Errorf("quantity = %d, want 5", item.Quantity)
	}
}

func TestCoordinator_SynchronousRejections(t *testing.T) {
	stocked := serverItem(keyA, 2, 500)
	stocked.Stock = model.IntPtr(3)
	h := newHarness(t, newFakeService(stocked))
	ctx := context.Background()

	tests := []struct {
		name    string
		call    func() error
		wantErr error
	}{
		{"add zero", func() error { _, err := h.coord.Add(ctx, AddRequest{Key: keyB, Quantity: 0}); return err }, model.ErrValidation},
		{"add missing product", func() error { _, err := h.coord.Add(ctx, AddRequest{Quantity: 1}); return err }, model.ErrValidation},
		{"update negative", func() error { _, err := h.coord.Update(ctx, keyA, -1); return err }, model.ErrValidation},
		{"update over stock", func() error { _, err := h.coord.Update(ctx, keyA, 4); return err }, model.ErrStockExceeded},
		{"add over stock", func() error { _, err := h.coord.Add(ctx, AddRequest{Key: keyA, Quantity: 2}); return err }, model.ErrStockExceeded},
		{"update unknown", func() error { _, err := h.coord.Update(ctx, keyB, 1); return err }, model.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if h.clock.Armed() != 0 || h.coord.Busy() {
		t.Error("rejected requests must not arm writes")
	}
	if item := h.item(t, keyA); item.Quantity != 2 || item.Optimistic {
		t.Errorf("item = %+v, want untouched", item)
	}
}

func TestCoordinator_RemoveIsDebouncedZero(t *testing.T) {
	release := make(chan struct{})
	svc := newFakeService(serverItem(keyA, 2, 500))
	svc.removeHook = func(model.ProductKey) error {
		<-release
		return nil
	}
	h := newHarness(t, svc)

	h.coord.Remove(context.Background(), keyA)
	if _, ok := h.store.Snapshot().Item(keyA); ok {
		t.Fatal("remove should apply optimistically")
	}

	h.clock.Advance(500 * time.Millisecond)
	eventually(t, "remove in flight", func() bool { return h.store.Snapshot().IsPending(keyA) })
	close(release)
	h.wait(t)

	if n := h.svc.count("remove"); n != 1 {
		t.Errorf("remove calls = %d, want 1", n)
	}
	if h.store.Snapshot().IsPending(keyA) || h.store.Snapshot().HasOptimistic() {
		t.Error("remove should be settled")
	}

	// Removing something that is not there is a no-op without a write.
	h.coord.Remove(context.Background(), keyB)
	if h.clock.Armed() != 0 {
		t.Error("removing an absent key should not arm a write")
	}
}

func TestCoordinator_UpdateToZeroRemoves(t *testing.T) {
	h := newHarness(t, newFakeService(serverItem(keyA, 2, 500)))
	h.coord.Update(context.Background(), keyA, 0)
	h.clock.Advance(500 * time.Millisecond)
	h.wait(t)

	if n := h.svc.count("remove"); n != 1 {
		t.Errorf("remove calls = %d, want 1", n)
	}
	if h.store.Snapshot().Len() != 0 {
		t.Error("cart should be empty")
	}
}

func TestCoordinator_KeysAreIndependent(t *testing.T) {
	svc := newFakeService(serverItem(keyA, 1, 500), serverItem(keyB, 1, 250))
	svc.updateHook = func(key model.ProductKey, _ int) error {
		if key == keyB {
			return model.NewServerError("cart service", errors.New("status 500"))
		}
		return nil
	}
	h := newHarness(t, svc)

	h.coord.Update(context.Background(), keyA, 3)
	h.coord.Update(context.Background(), keyB, 5)
	h.clock.Advance(500 * time.Millisecond)
	h.wait(t)

	if item := h.item(t, keyA); item.Quantity != 3 {
		t.Errorf("A quantity = %d, want 3", item.Quantity)
	}
	if item := h.item(t, keyB); item.Quantity != 1 {
		t.Errorf("B quantity = %d, want rolled back to 1", item.Quantity)
	}
}

func TestCoordinator_ReloadWaitsForQuiescence(t *testing.T) {
	h := newHarness(t, newFakeService(serverItem(keyA, 1, 500), serverItem(keyB, 1, 250)))
	ctx := context.Background()

	h.coord.Update(ctx, keyA, 3)
	h.clock.Advance(300 * time.Millisecond)
	h.coord.Update(ctx, keyB, 2)
	h.clock.Advance(200 * time.Millisecond) // A fires, B still armed
	h.wait(t)

	if n := h.svc.count("get"); n != 0 {
		t.Errorf("reloads while B is unsettled = %d, want 0", n)
	}
	if item := h.item(t, keyB); item.Quantity != 2 || !item.Optimistic {
		t.Errorf("B = %+v, optimistic value must survive A's settle", item)
	}

	h.clock.Advance(300 * time.Millisecond)
	h.wait(t)
	if n := h.svc.count("get"); n != 1 {
		t.Errorf("reloads = %d, want 1", n)
	}
	if s := h.store.Snapshot(); s.TotalItemCount() != 5 || s.HasOptimistic() {
		t.Errorf("final state items %d optimistic %v, want 5 committed", s.TotalItemCount(), s.HasOptimistic())
	}
}

func TestCoordinator_ClearCancelsArmedWrites(t *testing.T) {
	h := newHarness(t, newFakeService(serverItem(keyA, 2, 500)))

	h.coord.Update(context.Background(), keyA, 5)
	if _, err := h.coord.Clear(context.Background()); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	h.clock.Advance(time.Second)
	h.wait(t)

	if n := h.svc.count("update"); n != 0 {
		t.Errorf("update calls = %d, want 0 after clear", n)
	}
	if n := h.svc.count("clear"); n != 1 {
		t.Errorf("clear calls = %d, want 1", n)
	}
	if s := h.store.Snapshot(); s.Len() != 0 || s.TotalAmount() != 0 {
		t.Errorf("state after clear: len %d amount %d", s.Len(), s.TotalAmount())
	}
}

func TestCoordinator_ClearFailureReloads(t *testing.T) {
	svc := newFakeService(serverItem(keyA, 2, 500))
	svc.clearErr = model.NewNetworkError("cart service", errors.New("timeout"))
	h := newHarness(t, svc)

	_, err := h.coord.Clear(context.Background())
	if !errors.Is(err, model.ErrNetwork) {
		t.Fatalf("Clear() error = %v, want network error", err)
	}
	if item := h.item(t, keyA); item.Quantity != 2 {
		t.Errorf("cart should be reloaded from the server, got %+v", item)
	}
	if len(h.notes.Messages()) != 1 {
		t.Errorf("notifications = %+v, want one", h.notes.Messages())
	}
}

func TestCoordinator_FlushAndClose(t *testing.T) {
	h := newHarness(t, newFakeService(serverItem(keyA, 2, 500)))
	ctx := context.Background()

	h.coord.Update(ctx, keyA, 3)
	if n := h.coord.Flush(ctx); n != 1 {
		t.Errorf("Flush() = %d, want 1", n)
	}
	h.wait(t)
	if n := h.svc.count("update"); n != 1 {
		t.Errorf("update calls = %d, want 1", n)
	}

	h.coord.Update(ctx, keyA, 4)
	if err := h.coord.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if n := h.svc.count("update"); n != 2 {
		t.Errorf("Close should flush armed writes, update calls = %d", n)
	}
	if _, err := h.coord.Update(ctx, keyA, 5); !errors.Is(err, ErrClosed) {
		t.Errorf("Update after Close error = %v, want ErrClosed", err)
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	store := cart.NewStore(cart.NewGuestState(), cart.StoreConfig{})
	if _, err := New(Config{Store: store}); err == nil {
		t.Error("New() without a remote should fail")
	}
	if _, err := New(Config{Remote: &remote.Mock{}}); err == nil {
		t.Error("New() without a store should fail")
	}
}

func TestLinearBackOff(t *testing.T) {
	b := &linearBackOff{step: time.Second}
	if b.NextBackOff() != time.Second || b.NextBackOff() != 2*time.Second {
		t.Error("backoff should grow linearly")
	}
	b.Reset()
	if b.NextBackOff() != time.Second {
		t.Error("Reset should restart the sequence")
	}
}
