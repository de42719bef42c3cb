// Package coordinator turns local cart edits into optimistic store transitions and
// coalesced remote writes, and reconciles the responses.
//
// Every key moves through a small state machine:
//
//	Committed -> PendingOptimistic -> Committed            (write confirmed)
//	                               -> RollingBack -> Committed (write failed)
//
// Each local request bumps the key's sequence number. A write carries the number it was
// fired with, and a response whose number is no longer current is discarded; sockets are
// never cancelled to enforce ordering.
package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"cart-sync/internal/cart"
	"cart-sync/internal/debounce"
	"cart-sync/internal/model"
	"cart-sync/internal/notify"
	"cart-sync/internal/remote"
)

// ErrClosed is returned for requests made after Close.
var ErrClosed = errors.New("coordinator closed")

// KeyState is the synchronization state of one product key.
type KeyState int

const (
	Committed KeyState = iota
	PendingOptimistic
	RollingBack
)

func (s KeyState) String() string {
	switch s {
	case Committed:
		return "committed"
	case PendingOptimistic:
		return "pending_optimistic"
	case RollingBack:
		return "rolling_back"
	default:
		return "unknown"
	}
}

// Config wires a Coordinator.
type Config struct {
	Store    *cart.Store
	Remote   remote.Service
	Identity remote.IdentitySource
	Notifier notify.Sink
	Logger   *slog.Logger
	Tracer   trace.Tracer

	Clock  debounce.Clock // Defaults to the wall clock
	Window time.Duration  // Debounce window, defaults to debounce.DefaultWindow

	AddAttempts int           // Tries for an immediate add, defaults to 2
	AddBackoff  time.Duration // First retry delay, grows linearly; defaults to 1s
}

// AddRequest asks for quantity more of a product.
type AddRequest struct {
	Key       model.ProductKey
	Name      string
	Quantity  int
	UnitPrice int64
	Stock     *int
}

// pendingWrite is the debounced value for a key: the absolute quantity to send
// (0 removes), the sequence number of the request that produced it and that
// request's span, which parents the write.
type pendingWrite struct {
	quantity int
	seq      uint64
	parent   trace.SpanContext
}

// Coordinator is the SyncCoordinator. It is safe for concurrent use.
type Coordinator struct {
	store    *cart.Store
	remote   remote.Service
	identity remote.IdentitySource
	notifier notify.Sink
	logger   *slog.Logger
	tracer   trace.Tracer

	addAttempts int
	addBackoff  time.Duration

	debouncer *debounce.Debouncer[model.ProductKey, pendingWrite]
	reloads   singleflight.Group

	// mu orders local requests and response handling. Lock order: mu, then the store.
	mu       sync.Mutex
	seq      map[model.ProductKey]uint64
	states   map[model.ProductKey]KeyState
	inflight map[model.ProductKey]int
	epoch    uint64 // Bumped on every local change; guards canonical reloads
	active   int
	idle     chan struct{} // Closed while no write is running
	closed   bool
}

// New returns a coordinator over cfg.Store.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Remote == nil {
		return nil, errors.New("remote service is required")
	}
	if cfg.Identity == nil {
		return nil, errors.New("identity source is required")
	}

	c := &Coordinator{
		store:       cfg.Store,
		remote:      cfg.Remote,
		identity:    cfg.Identity,
		notifier:    cfg.Notifier,
		logger:      cfg.Logger,
		tracer:      cfg.Tracer,
		addAttempts: cfg.AddAttempts,
		addBackoff:  cfg.AddBackoff,
		seq:         make(map[model.ProductKey]uint64),
		states:      make(map[model.ProductKey]KeyState),
		inflight:    make(map[model.ProductKey]int),
		idle:        make(chan struct{}),
	}
	close(c.idle)

	if c.notifier == nil {
		c.notifier = notify.Discard
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer("cart-sync/coordinator")
	}
	if c.addAttempts <= 0 {
		c.addAttempts = 2
	}
	if c.addBackoff <= 0 {
		c.addBackoff = time.Second
	}
	c.debouncer = debounce.New(cfg.Window, cfg.Clock, c.fire)
	return c, nil
}

// === Local requests ===

// Add adds req.Quantity of a product. A product not yet in the cart is written to the
// server at once (retried on network failure); one already in the cart becomes a
// debounced update to its new total.
func (c *Coordinator) Add(ctx context.Context, req AddRequest) (cart.State, error) {
	if req.Key.IsZero() {
		return c.store.Snapshot(), model.NewValidationError("product", "product id is required")
	}
	if req.Quantity <= 0 {
		return c.store.Snapshot(), model.NewValidationError("quantity", "must be at least 1").WithKey(req.Key)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.store.Snapshot(), ErrClosed
	}

	// A key with unsettled work is not new to the server, whatever the local view shows.
	settled := c.states[req.Key] == Committed
	var target int
	var update bool
	next, err := c.store.DispatchFunc(func(current cart.State) (cart.Event, error) {
		item, exists := current.Item(req.Key)
		update = exists || !settled
		if exists {
			target = item.Quantity + req.Quantity
			return cart.Update{Key: req.Key, Quantity: target, Optimistic: true}, nil
		}
		target = req.Quantity
		return cart.Add{
			Key:        req.Key,
			Title:      req.Name,
			Quantity:   req.Quantity,
			UnitPrice:  req.UnitPrice,
			Stock:      req.Stock,
			Optimistic: true,
		}, nil
	})
	if err != nil {
		return next, err
	}

	if update {
		c.scheduleLocked(ctx, req.Key, target)
		return next, nil
	}

	seq := c.touchLocked(req.Key)
	c.debouncer.Cancel(req.Key)
	key, qty := req.Key, req.Quantity
	c.beginLocked(key)
	go c.run(context.WithoutCancel(ctx), key, seq, "cart.add_item", func(ctx context.Context) error {
		return c.addWithRetry(ctx, key, qty)
	})
	return next, nil
}

// Update sets the quantity of a product already in the cart. Zero removes it.
func (c *Coordinator) Update(ctx context.Context, key model.ProductKey, quantity int) (cart.State, error) {
	if key.IsZero() {
		return c.store.Snapshot(), model.NewValidationError("product", "product id is required")
	}
	if quantity < 0 {
		return c.store.Snapshot(), model.NewValidationError("quantity", "must not be negative").WithKey(key)
	}
	if quantity == 0 {
		return c.Remove(ctx, key)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.store.Snapshot(), ErrClosed
	}

	next, err := c.store.Dispatch(cart.Update{Key: key, Quantity: quantity, Optimistic: true})
	if err != nil {
		return next, err
	}
	c.scheduleLocked(ctx, key, quantity)
	return next, nil
}

// Remove drops a product. Removing a product that is not in the cart does nothing.
func (c *Coordinator) Remove(ctx context.Context, key model.ProductKey) (cart.State, error) {
	if key.IsZero() {
		return c.store.Snapshot(), model.NewValidationError("product", "product id is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.store.Snapshot(), ErrClosed
	}

	var present bool
	next, err := c.store.DispatchFunc(func(current cart.State) (cart.Event, error) {
		if _, present = current.Item(key); !present {
			return nil, nil
		}
		return cart.Remove{Key: key, Optimistic: true}, nil
	})
	if err != nil || !present {
		return next, err
	}
	c.scheduleLocked(ctx, key, 0)
	return next, nil
}

// Clear empties the cart locally and on the server. Armed writes are dropped and
// in-flight ones become stale. If the server refuses, the cart is reloaded from it.
func (c *Coordinator) Clear(ctx context.Context) (cart.State, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return c.store.Snapshot(), ErrClosed
	}
	c.debouncer.CancelAll()
	for key := range c.seq {
		c.seq[key]++
		c.states[key] = Committed
	}
	c.epoch++
	next, err := c.store.Dispatch(cart.Clear{})
	c.mu.Unlock()
	if err != nil {
		return next, err
	}

	ctx, span := c.startSpan(ctx, "cart.clear", model.ProductKey{}, 0)
	_, err = c.remote.ClearCart(ctx, c.identity.Identity())
	endSpan(span, err)
	if err != nil {
		c.logger.Warn("clear cart failed, reloading",
			slog.String("error", err.Error()),
		)
		c.notifier.Notify(ctx, notify.Error, "Could not clear the cart. It has been restored.")
		if _, rerr := c.Refresh(ctx); rerr != nil {
			c.logger.Warn("reload after failed clear",
				slog.String("error", rerr.Error()),
			)
		}
		return c.store.Snapshot(), err
	}
	return next, nil
}

// === Control ===

// Flush fires every armed write now and returns how many were fired.
func (c *Coordinator) Flush(context.Context) int {
	return c.debouncer.Flush()
}

// Wait blocks until no write (or the reload that follows it) is running.
func (c *Coordinator) Wait(ctx context.Context) error {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fence marks a change of server truth made outside the coordinator (merge, logout),
// so a reload started before it is not applied after it.
func (c *Coordinator) Fence() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
}

// Reset forgets every key after the cart was replaced wholesale (logout). Armed writes
// are dropped and in-flight responses become stale.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.debouncer.CancelAll()
	for key := range c.seq {
		c.seq[key]++
		c.states[key] = Committed
	}
	c.epoch++
}

// Close fires armed writes, stops the timers and waits for in-flight writes.
func (c *Coordinator) Close(ctx context.Context) error {
	if n := c.debouncer.Len(); n > 0 {
		c.logger.Debug("flushing armed writes on close", slog.Int("armed", n))
	}
	c.debouncer.Flush()
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.debouncer.Stop()
	return c.Wait(ctx)
}

// KeyState returns the synchronization state of key.
func (c *Coordinator) KeyState(key model.ProductKey) KeyState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[key]
}

// Seq returns the current sequence number of key.
func (c *Coordinator) Seq(key model.ProductKey) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq[key]
}

// Busy reports whether any key has unsettled work.
func (c *Coordinator) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busyLocked()
}

// === Bookkeeping, caller holds mu ===

func (c *Coordinator) touchLocked(key model.ProductKey) uint64 {
	c.seq[key]++
	c.states[key] = PendingOptimistic
	c.epoch++
	return c.seq[key]
}

func (c *Coordinator) scheduleLocked(ctx context.Context, key model.ProductKey, quantity int) {
	seq := c.touchLocked(key)
	c.debouncer.Push(key, pendingWrite{
		quantity: quantity,
		seq:      seq,
		parent:   trace.SpanContextFromContext(ctx),
	})
}

func (c *Coordinator) busyLocked() bool {
	for _, st := range c.states {
		if st != Committed {
			return true
		}
	}
	return false
}

// beginLocked registers a write for key and marks it pending in the store.
func (c *Coordinator) beginLocked(key model.ProductKey) {
	if c.active == 0 {
		c.idle = make(chan struct{})
	}
	c.active++
	c.inflight[key]++
	if _, err := c.store.Dispatch(cart.Pending{Key: key, InFlight: true}); err != nil {
		c.logger.Error("mark pending", slog.String("key", key.String()), slog.String("error", err.Error()))
	}
}

func (c *Coordinator) end() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active--
	if c.active == 0 {
		close(c.idle)
	}
}
