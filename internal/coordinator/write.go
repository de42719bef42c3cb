package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"cart-sync/internal/cart"
	"cart-sync/internal/model"
	"cart-sync/internal/notify"
)

// fire is the debouncer callback: it sends the latest value for key unless a newer
// request replaced it while the timer was expiring.
func (c *Coordinator) fire(key model.ProductKey, w pendingWrite) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.seq[key] != w.seq {
		return
	}
	c.beginLocked(key)

	// The request that armed the write has returned; only its trace carries over.
	ctx := trace.ContextWithSpanContext(context.Background(), w.parent)
	if w.quantity == 0 {
		go c.run(ctx, key, w.seq, "cart.remove_item", func(ctx context.Context) error {
			_, err := c.remote.RemoveItem(ctx, c.identity.Identity(), key)
			return err
		})
		return
	}
	qty := w.quantity
	go c.run(ctx, key, w.seq, "cart.update_item", func(ctx context.Context) error {
		_, err := c.remote.UpdateItem(ctx, c.identity.Identity(), key, qty)
		return err
	})
}

// run performs one network write for key and reconciles its outcome.
func (c *Coordinator) run(ctx context.Context, key model.ProductKey, seq uint64, name string, call func(context.Context) error) {
	defer c.end()

	ctx, span := c.startSpan(ctx, name, key, seq)
	err := call(ctx)
	endSpan(span, err)

	c.complete(ctx, key, seq, err)
}

// complete applies a write response. Responses tagged with an outdated sequence number
// are dropped; the current one either settles the key or rolls it back.
func (c *Coordinator) complete(ctx context.Context, key model.ProductKey, seq uint64, err error) {
	c.mu.Lock()
	c.inflight[key]--
	if c.inflight[key] <= 0 {
		delete(c.inflight, key)
	}

	if c.seq[key] != seq {
		if c.inflight[key] == 0 {
			c.dispatchLocked(cart.Pending{Key: key, InFlight: false})
		}
		c.mu.Unlock()
		c.logger.Debug("discarding stale write response",
			slog.String("key", key.String()),
			slog.Uint64("seq", seq),
		)
		return
	}

	if err == nil {
		c.dispatchLocked(cart.Settle{Key: key})
		c.states[key] = Committed
		reload := !c.busyLocked()
		epoch := c.epoch
		c.mu.Unlock()

		if reload {
			c.reload(ctx, epoch)
		}
		return
	}

	c.states[key] = RollingBack
	c.dispatchLocked(cart.Rollback{Key: key})
	c.states[key] = Committed
	reload := !c.busyLocked()
	epoch := c.epoch
	c.mu.Unlock()

	c.logger.Warn("cart write failed, rolled back",
		slog.String("key", key.String()),
		slog.String("error", err.Error()),
	)
	c.notifier.Notify(ctx, notify.Error, failureMessage(key, err))

	// The baseline may predate writes that reached the server but were answered stale.
	if reload {
		c.reload(ctx, epoch)
	}
}

func (c *Coordinator) dispatchLocked(ev cart.Event) {
	if _, err := c.store.Dispatch(ev); err != nil {
		c.logger.Error("bookkeeping transition rejected",
			slog.String("event", ev.Name()),
			slog.String("error", err.Error()),
		)
	}
}

// addWithRetry adds a new product, retrying network failures with a linear backoff.
// Any other error ends the attempt at once.
func (c *Coordinator) addWithRetry(ctx context.Context, key model.ProductKey, qty int) error {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (*model.ServerCart, error) {
		attempt++
		sc, err := c.remote.AddItem(ctx, c.identity.Identity(), key, qty)
		if err != nil && !model.IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		if err != nil {
			c.logger.Debug("add item failed",
				slog.String("key", key.String()),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		}
		return sc, err
	},
		backoff.WithBackOff(&linearBackOff{step: c.addBackoff}),
		backoff.WithMaxTries(uint(c.addAttempts)),
	)
	return err
}

// linearBackOff waits step, 2*step, 3*step, ... between attempts.
type linearBackOff struct {
	step time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.step
}

func (b *linearBackOff) Reset() { b.n = 0 }

// Refresh loads the canonical cart from the server and applies it, unless local work
// started in the meantime. The current state is returned either way.
func (c *Coordinator) Refresh(ctx context.Context) (cart.State, error) {
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()
	if err := c.reloadErr(ctx, epoch); err != nil {
		return c.store.Snapshot(), err
	}
	return c.store.Snapshot(), nil
}

func (c *Coordinator) reload(ctx context.Context, epoch uint64) {
	if err := c.reloadErr(ctx, epoch); err != nil {
		c.logger.Warn("canonical reload failed",
			slog.String("error", err.Error()),
		)
	}
}

// reloadErr fetches the cart once per epoch, however many writers ask for it. Every
// caller applies the shared result; Set is idempotent.
func (c *Coordinator) reloadErr(ctx context.Context, epoch uint64) error {
	v, err, _ := c.reloads.Do("reload-"+strconv.FormatUint(epoch, 10), func() (any, error) {
		ctx, span := c.startSpan(ctx, "cart.get_cart", model.ProductKey{}, 0)
		sc, err := c.remote.GetCart(ctx, c.identity.Identity())
		endSpan(span, err)
		return sc, err
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch || c.busyLocked() {
		c.logger.Debug("skipping reload overtaken by local changes")
		return nil
	}
	sc := v.(*model.ServerCart)
	_, err = c.store.Dispatch(cart.Set{Cart: *sc})
	return err
}

func (c *Coordinator) startSpan(ctx context.Context, name string, key model.ProductKey, seq uint64) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{}
	if !key.IsZero() {
		attrs = append(attrs,
			attribute.String("cart.product_key", key.String()),
			attribute.Int64("cart.seq", int64(seq)),
		)
	}
	return c.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func failureMessage(key model.ProductKey, err error) string {
	var ce *model.CartError
	if errors.As(err, &ce) {
		return fmt.Sprintf("Could not update %s: %s", key, ce.Message)
	}
	return fmt.Sprintf("Could not update %s. Your change was undone.", key)
}
