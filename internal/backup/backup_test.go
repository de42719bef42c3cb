package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"cart-sync/internal/cart"
	"cart-sync/internal/model"
)

var (
	keyA = model.ProductKey{ProductID: "A"}
	keyB = model.ProductKey{ProductID: "B", VariantID: "blue"}

	t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func serverCart() model.ServerCart {
	c := model.ServerCart{
		Items: []model.ServerItem{
			{ProductID: "A", Name: "Mug", Quantity: 2, UnitPrice: 500, TotalPrice: 1000, Stock: model.IntPtr(9)},
			{ProductID: "B", VariantID: "blue", Quantity: 1, UnitPrice: 250, TotalPrice: 250},
		},
		Totals:      model.ServerTotals{Currency: "USD"},
		IsGuestCart: true,
	}
	c.RecomputeTotals()
	return c
}

// fixture wires a store to a recovery whose clock the test moves.
type fixture struct {
	now      time.Time
	storage  *MemoryStorage
	recovery *Recovery
	store    *cart.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{now: t0, storage: NewMemoryStorage()}
	f.recovery = New(Config{Storage: f.storage, Logger: discardLogger(), Now: func() time.Time { return f.now }})
	f.store = cart.NewStore(cart.NewGuestState(), cart.StoreConfig{Logger: discardLogger(), Now: func() time.Time { return t0 }})
	f.store.Subscribe(f.recovery.Observe)
	return f
}

func (f *fixture) stored(t *testing.T) []byte {
	t.Helper()
	data, ok, err := f.storage.Get(context.Background(), Key)
	if err != nil || !ok {
		t.Fatalf("backup slot empty: ok=%v err=%v", ok, err)
	}
	return data
}

func TestRecovery_RestoresFreshSnapshotExactly(t *testing.T) {
	f := newFixture(t)
	f.store.Dispatch(cart.Set{Cart: serverCart()})
	f.store.Dispatch(cart.Select{Key: keyB, Selected: true})
	// Optimistic changes are not committed and must not reach the backup.
	f.store.Dispatch(cart.Update{Key: keyA, Quantity: 7, Optimistic: true})

	saved := f.stored(t)
	committed := f.store.Snapshot().Committed()

	f.now = t0.Add(time.Hour)
	fresh := cart.NewStore(cart.NewGuestState(), cart.StoreConfig{Logger: discardLogger()})
	if !f.recovery.RestoreInto(context.Background(), fresh) {
		t.Fatal("RestoreInto() = false, want a 1h old snapshot restored")
	}

	restored := fresh.Snapshot()
	if err := restored.Check(); err != nil {
		t.Fatalf("restored state invalid: %v", err)
	}
	again, err := json.Marshal(NewSnapshot(restored, t0))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(again, saved) {
		t.Errorf("restored state differs from backup:\n got %s\nwant %s", again, saved)
	}
	if item, _ := restored.Item(keyA); item.Quantity != 2 {
		t.Errorf("A = %d, want the committed 2", item.Quantity)
	}
	if !restored.IsSelected(keyB) || restored.IsSelected(keyA) {
		t.Errorf("selection = %v, want [B:blue]", restored.Selection())
	}
	if restored.TotalAmount() != committed.TotalAmount() || restored.IsGuestCart() != committed.IsGuestCart() {
		t.Error("totals or guest flag not restored")
	}
}

func TestRecovery_DiscardsStaleSnapshot(t *testing.T) {
	f := newFixture(t)
	f.store.Dispatch(cart.Set{Cart: serverCart()})

	f.now = t0.Add(25 * time.Hour)
	if _, ok := f.recovery.Restore(context.Background()); ok {
		t.Fatal("Restore() should reject a 25h old snapshot")
	}
	if _, ok, _ := f.storage.Get(context.Background(), Key); ok {
		t.Error("stale snapshot should be deleted")
	}
}

func TestRecovery_DiscardsUnusableSnapshots(t *testing.T) {
	valid, _ := json.Marshal(Snapshot{Version: FormatVersion, Timestamp: t0})
	future, _ := json.Marshal(Snapshot{Version: "v2.0.0", Timestamp: t0})
	compatible, _ := json.Marshal(Snapshot{Version: "v1.3.0", Timestamp: t0})
	badTotals, _ := json.Marshal(Snapshot{
		Version:   FormatVersion,
		Items:     []model.ServerItem{{ProductID: "A", Quantity: 1, UnitPrice: 5, TotalPrice: 5}},
		Totals:    model.ServerTotals{TotalAmount: 99, TotalItems: 1},
		Timestamp: t0,
	})

	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"valid", valid, true},
		{"newer minor version", compatible, true},
		{"newer major version", future, false},
		{"not json", []byte("{"), false},
		{"inconsistent totals", badTotals, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := NewMemoryStorage()
			storage.Put(context.Background(), Key, tt.data)
			r := New(Config{Storage: storage, Logger: discardLogger(), Now: func() time.Time { return t0.Add(time.Minute) }})

			_, ok := r.Restore(context.Background())
			if ok != tt.want {
				t.Fatalf("Restore() ok = %v, want %v", ok, tt.want)
			}
			if _, kept, _ := storage.Get(context.Background(), Key); kept != tt.want {
				t.Errorf("slot kept = %v, want %v", kept, tt.want)
			}
		})
	}
}

func TestRecovery_EmptySlot(t *testing.T) {
	r := New(Config{Storage: NewMemoryStorage(), Logger: discardLogger()})
	store := cart.NewStore(cart.NewGuestState(), cart.StoreConfig{})
	if r.RestoreInto(context.Background(), store) {
		t.Error("RestoreInto() with no snapshot should report false")
	}
}

func TestRecovery_SingleSlotOverwritten(t *testing.T) {
	f := newFixture(t)
	f.store.Dispatch(cart.Set{Cart: serverCart()})
	f.now = t0.Add(time.Minute)
	f.store.Dispatch(cart.Clear{})

	var snap Snapshot
	if err := json.Unmarshal(f.stored(t), &snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Items) != 0 || !snap.Timestamp.Equal(t0.Add(time.Minute)) {
		t.Errorf("slot = %+v, want the cleared cart saved last", snap)
	}
}

func TestSQLiteStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.db")
	ctx := context.Background()

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	if _, ok, err := s.Get(ctx, Key); err != nil || ok {
		t.Fatalf("Get() on empty db = %v, %v", ok, err)
	}
	if err := s.Put(ctx, Key, []byte("one")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Put(ctx, Key, []byte("two")); err != nil {
		t.Fatalf("Put() overwrite error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()

	got, ok, err := s.Get(ctx, Key)
	if err != nil || !ok || string(got) != "two" {
		t.Fatalf("Get() after reopen = %q, %v, %v", got, ok, err)
	}
	if err := s.Delete(ctx, Key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := s.Get(ctx, Key); ok {
		t.Error("value should be gone after Delete")
	}
}

func TestOpenSQLite_RequiresPath(t *testing.T) {
	if _, err := OpenSQLite(" "); err == nil {
		t.Error("OpenSQLite with a blank path should fail")
	}
}
