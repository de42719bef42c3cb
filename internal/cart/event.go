package cart

import (
	"time"

	"cart-sync/internal/model"
)

// Event is a cart transition request. The set of events is closed: only this package
// defines them, and Apply is the only place they take effect.
type Event interface {
	// Name identifies the event in logs.
	Name() string

	// Committed reports whether the resulting state is committed truth worth persisting.
	// Optimistic changes and write bookkeeping are not.
	Committed() bool

	apply(s *State, now time.Time) error
}

// Set replaces the cart wholesale with a trusted server snapshot.
// Selection becomes the previous selection intersected with the new keys, unless
// Selection is non-nil, in which case it is used instead (backup recovery).
type Set struct {
	Cart      model.ServerCart
	Selection []model.ProductKey
	SyncedAt  time.Time // Defaults to the transition time
}

// Add puts qty more of a product into the cart, creating the line when absent.
type Add struct {
	Key        model.ProductKey
	Title      string
	Quantity   int
	UnitPrice  int64
	Stock      *int
	Optimistic bool
}

// Update sets the quantity of an existing line. Quantity <= 0 removes it.
type Update struct {
	Key        model.ProductKey
	Quantity   int
	Optimistic bool
}

// Remove drops a line and prunes it from the selection.
type Remove struct {
	Key        model.ProductKey
	Optimistic bool
}

// Clear empties items, totals and selection.
type Clear struct{}

// Select marks or unmarks one line for checkout.
type Select struct {
	Key      model.ProductKey
	Selected bool
}

// SelectAll marks every current line for checkout, or clears the selection.
type SelectAll struct {
	Selected bool
}

// Merge applies the post-merge server cart after a login: items are replaced,
// the cart stops being a guest cart, and the selection is reset.
type Merge struct {
	Cart     model.ServerCart
	SyncedAt time.Time
}

// Reset returns to an empty guest cart (logout).
type Reset struct{}

// Pending marks or unmarks key as having an in-flight remote write.
type Pending struct {
	Key      model.ProductKey
	InFlight bool
}

// Settle confirms the optimistic value of key: the line becomes committed as shown.
type Settle struct {
	Key model.ProductKey
}

// Rollback restores key to its last committed value.
type Rollback struct {
	Key model.ProductKey
}

func (Set) Name() string { return "SET" }
func (Add) Name() string { return "ADD" }
func (Update) Name() string { return "UPDATE" }
func (Remove) Name() string { return "REMOVE" }
func (Clear) Name() string { return "CLEAR" }
func (Select) Name() string { return "SELECT" }
func (SelectAll) Name() string { return "SELECT_ALL" }
func (Merge) Name() string { return "MERGE" }
func (Reset) Name() string { return "RESET" }
func (Pending) Name() string { return "PENDING" }
func (Settle) Name() string { return "SETTLE" }
func (Rollback) Name() string { return "ROLLBACK" }

func (Set) Committed() bool { return true }
func (e Add) Committed() bool { return !e.Optimistic }
func (e Update) Committed() bool { return !e.Optimistic }
func (e Remove) Committed() bool { return !e.Optimistic }
func (Clear) Committed() bool { return true }
func (Select) Committed() bool { return true }
func (SelectAll) Committed() bool { return true }
func (Merge) Committed() bool { return true }
func (Reset) Committed() bool { return true }
func (Pending) Committed() bool { return false }
func (Settle) Committed() bool { return true }
func (Rollback) Committed() bool { return true }
