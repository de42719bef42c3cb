// Package backup keeps the last committed cart in durable local storage and restores
// it when the initial load from the server fails.
//
// There is one slot, overwritten after every committed transition. A snapshot older
// than the freshness threshold, or written by an incompatible format version, is
// deleted instead of restored.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/mod/semver"

	"cart-sync/internal/cart"
	"cart-sync/internal/model"
)

const (
	// Key is the storage slot holding the snapshot.
	Key = "cart-sync/cart"

	// FormatVersion is written into every snapshot. Readers accept any snapshot with
	// the same major version.
	FormatVersion = "v1.0.0"

	// DefaultMaxAge is the freshness threshold.
	DefaultMaxAge = 24 * time.Hour
)

// Snapshot is the persisted record.
type Snapshot struct {
	Version     string             `json:"version"`
	Items       []model.ServerItem `json:"items"`
	Selection   []string           `json:"selection"`
	Totals      model.ServerTotals `json:"totals"`
	IsGuestCart bool               `json:"is_guest_cart"`
	SyncedAt    time.Time          `json:"synced_at,omitzero"`
	Timestamp   time.Time          `json:"timestamp"`
}

// NewSnapshot captures the committed view of s at time at.
func NewSnapshot(s cart.State, at time.Time) Snapshot {
	committed := s.Committed()
	sc := committed.ServerCart()
	selection := make([]string, 0, len(committed.Selection()))
	for _, key := range committed.Selection() {
		selection = append(selection, key.String())
	}
	return Snapshot{
		Version:     FormatVersion,
		Items:       sc.Items,
		Selection:   selection,
		Totals:      sc.Totals,
		IsGuestCart: sc.IsGuestCart,
		SyncedAt:    committed.LastSyncedAt(),
		Timestamp:   at.UTC(),
	}
}

// Cart returns the snapshot's items and totals in the wire schema.
func (s Snapshot) Cart() model.ServerCart {
	return model.ServerCart{Items: s.Items, Totals: s.Totals, IsGuestCart: s.IsGuestCart}
}

// Event returns the transition that reinstates the snapshot, selection included.
func (s Snapshot) Event() (cart.Set, error) {
	selection := make([]model.ProductKey, 0, len(s.Selection))
	for _, raw := range s.Selection {
		key, err := model.ParseProductKey(raw)
		if err != nil {
			return cart.Set{}, fmt.Errorf("selection entry %q: %w", raw, err)
		}
		selection = append(selection, key)
	}
	return cart.Set{Cart: s.Cart(), Selection: selection, SyncedAt: s.SyncedAt}, nil
}

// Config wires a Recovery.
type Config struct {
	Storage Storage
	Logger  *slog.Logger
	Now     func() time.Time
	MaxAge  time.Duration // Defaults to DefaultMaxAge
}

// Recovery is the BackupRecovery component.
type Recovery struct {
	storage Storage
	logger  *slog.Logger
	now     func() time.Time
	maxAge  time.Duration
}

// New returns a Recovery over cfg.Storage.
func New(cfg Config) *Recovery {
	r := &Recovery{storage: cfg.Storage, logger: cfg.Logger, now: cfg.Now, maxAge: cfg.MaxAge}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.maxAge <= 0 {
		r.maxAge = DefaultMaxAge
	}
	return r
}

// Observe is a cart.Observer that saves the committed view after every committed
// transition. Save failures are logged; the cart carries on.
func (r *Recovery) Observe(ev cart.Event, next cart.State) {
	if !ev.Committed() {
		return
	}
	if err := r.Save(context.Background(), next); err != nil {
		r.logger.Warn("cart backup failed",
			slog.String("event", ev.Name()),
			slog.String("error", err.Error()),
		)
	}
}

// Save overwrites the slot with the committed view of s.
func (r *Recovery) Save(ctx context.Context, s cart.State) error {
	data, err := json.Marshal(NewSnapshot(s, r.now()))
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return r.storage.Put(ctx, Key, data)
}

// Restore returns the stored snapshot when it is fresh and readable. Anything else is
// deleted and reported as absent; Restore never fails.
func (r *Recovery) Restore(ctx context.Context) (Snapshot, bool) {
	data, ok, err := r.storage.Get(ctx, Key)
	if err != nil {
		r.logger.Warn("reading cart backup", slog.String("error", err.Error()))
		return Snapshot{}, false
	}
	if !ok {
		return Snapshot{}, false
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		r.discard(ctx, "unreadable", err)
		return Snapshot{}, false
	}
	if !semver.IsValid(snap.Version) || semver.Major(snap.Version) != semver.Major(FormatVersion) {
		r.discard(ctx, "incompatible version "+snap.Version, nil)
		return Snapshot{}, false
	}
	if age := r.now().Sub(snap.Timestamp); age > r.maxAge {
		r.discard(ctx, "stale", fmt.Errorf("age %s", age.Round(time.Minute)))
		return Snapshot{}, false
	}
	c := snap.Cart()
	if err := c.Validate(); err != nil {
		r.discard(ctx, "invalid", err)
		return Snapshot{}, false
	}
	return snap, true
}

// RestoreInto applies a fresh snapshot to store and reports whether it did.
func (r *Recovery) RestoreInto(ctx context.Context, store *cart.Store) bool {
	snap, ok := r.Restore(ctx)
	if !ok {
		return false
	}
	ev, err := snap.Event()
	if err == nil {
		_, err = store.Dispatch(ev)
	}
	if err != nil {
		r.discard(ctx, "not restorable", err)
		return false
	}
	r.logger.Info("cart restored from backup",
		slog.Int("lines", len(snap.Items)),
		slog.Time("saved_at", snap.Timestamp),
	)
	return true
}

func (r *Recovery) discard(ctx context.Context, reason string, cause error) {
	attrs := []any{slog.String("reason", reason)}
	if cause != nil {
		attrs = append(attrs, slog.String("error", cause.Error()))
	}
	r.logger.Debug("discarding cart backup", attrs...)
	if err := r.storage.Delete(ctx, Key); err != nil {
		r.logger.Warn("deleting cart backup", slog.String("error", err.Error()))
	}
}
