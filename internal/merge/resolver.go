package merge

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"cart-sync/internal/cart"
	"cart-sync/internal/model"
	"cart-sync/internal/notify"
	"cart-sync/internal/remote"
)

// Writes is the part of the sync coordinator a merge needs: local writes are pushed
// out before the server folds the guest cart, and reloads begun earlier are fenced off.
type Writes interface {
	Flush(ctx context.Context) int
	Wait(ctx context.Context) error
	Fence()
}

// Config wires a Resolver.
type Config struct {
	Store    *cart.Store
	Remote   remote.Service
	Identity remote.IdentitySource
	Writes   Writes
	Notifier notify.Sink
	Logger   *slog.Logger
	Tracer   trace.Tracer
	Policy   Policy
}

// Resolver is the MergeResolver.
type Resolver struct {
	store    *cart.Store
	remote   remote.Service
	identity remote.IdentitySource
	writes   Writes
	notifier notify.Sink
	logger   *slog.Logger
	tracer   trace.Tracer
	policy   Policy

	group singleflight.Group
}

// NewResolver returns a resolver. Writes may be nil when nothing writes concurrently.
func NewResolver(cfg Config) (*Resolver, error) {
	if cfg.Store == nil || cfg.Remote == nil || cfg.Identity == nil {
		return nil, errors.New("store, remote and identity are required")
	}
	r := &Resolver{
		store:    cfg.Store,
		remote:   cfg.Remote,
		identity: cfg.Identity,
		writes:   cfg.Writes,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
		tracer:   cfg.Tracer,
		policy:   cfg.Policy,
	}
	if r.notifier == nil {
		r.notifier = notify.Discard
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer("cart-sync/merge")
	}
	if r.policy == "" {
		r.policy = PolicyCap
	}
	return r, nil
}

// Resolve merges the guest cart into the signed-in user's cart. It does nothing once
// the store no longer holds a guest cart, and concurrent calls share one pass.
//
// A failed merge leaves the guest cart as it was; the error is notified and returned
// so the caller can log it and carry on.
func (r *Resolver) Resolve(ctx context.Context) (cart.State, error) {
	v, err, _ := r.group.Do("merge", func() (any, error) {
		return r.resolve(ctx)
	})
	state, _ := v.(cart.State)
	if err != nil {
		return r.store.Snapshot(), err
	}
	return state, nil
}

func (r *Resolver) resolve(ctx context.Context) (cart.State, error) {
	snap := r.store.Snapshot()
	if !snap.IsGuestCart() {
		r.logger.Debug("merge skipped, no guest cart")
		return snap, nil
	}
	id := r.identity.Identity()
	if !id.Authenticated() {
		return snap, model.NewUnauthorizedError("merge requires a signed-in user")
	}

	ctx, span := r.tracer.Start(ctx, "cart.merge", trace.WithAttributes(
		attribute.Int("cart.guest_lines", snap.Len()),
		attribute.String("cart.merge_policy", string(r.policy)),
	))
	defer span.End()

	state, err := r.merge(ctx, id, snap)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn("guest cart merge failed",
			slog.String("user_id", id.UserID),
			slog.String("error", err.Error()),
		)
		r.notifier.Notify(ctx, notify.Error, "We could not combine your saved cart with this one.")
		return state, err
	}
	return state, nil
}

func (r *Resolver) merge(ctx context.Context, id remote.Identity, snap cart.State) (cart.State, error) {
	if snap.Len() == 0 {
		user, err := r.remote.GetCart(ctx, id)
		if err != nil {
			return snap, err
		}
		return r.apply(*user)
	}

	if r.writes != nil {
		r.writes.Flush(ctx)
		if err := r.writes.Wait(ctx); err != nil {
			return r.store.Snapshot(), err
		}
	}
	guest := r.store.Snapshot().Committed().ServerCart()

	pre, err := r.remote.GetCart(ctx, id)
	if err != nil {
		r.logger.Debug("pre-merge user cart unavailable, skipping the stock policy",
			slog.String("error", err.Error()),
		)
		pre = nil
	}

	if err := r.remote.MergeGuestCart(ctx, id); err != nil {
		return r.store.Snapshot(), err
	}
	merged, err := r.remote.GetCart(ctx, id)
	if err != nil {
		return r.store.Snapshot(), err
	}

	var plan *Outcome
	if pre != nil {
		p := Plan(guest.Items, pre.Items, r.policy)
		plan = &p
		if r.enforce(ctx, id, p.Corrections(merged.Items)) {
			if merged, err = r.remote.GetCart(ctx, id); err != nil {
				return r.store.Snapshot(), err
			}
		}
	}

	state, err := r.apply(*merged)
	if err != nil {
		return state, err
	}

	if plan != nil {
		r.check(ctx, *plan, merged.Items)
	}
	r.logger.Info("guest cart merged",
		slog.String("user_id", id.UserID),
		slog.Int("lines", state.Len()),
		slog.String("total", model.FormatAmount(state.TotalAmount(), state.Currency())),
	)
	return state, nil
}

// apply installs the post-merge server cart. Server truth is final.
func (r *Resolver) apply(sc model.ServerCart) (cart.State, error) {
	if r.writes != nil {
		r.writes.Fence()
	}
	return r.store.Dispatch(cart.Merge{Cart: sc})
}

// enforce writes the policy's quantity over every line the server merged past known
// stock, and reports whether it wrote anything. Failed corrections are logged; the
// server's cart then stands.
func (r *Resolver) enforce(ctx context.Context, id remote.Identity, fixes []Correction) bool {
	for _, fx := range fixes {
		var err error
		if fx.Quantity == 0 {
			_, err = r.remote.RemoveItem(ctx, id, fx.Key)
		} else {
			_, err = r.remote.UpdateItem(ctx, id, fx.Key, fx.Quantity)
		}
		if err != nil {
			r.logger.Warn("merge correction failed",
				slog.String("key", fx.Key.String()),
				slog.Int("quantity", fx.Quantity),
				slog.String("error", err.Error()),
			)
		}
	}
	return len(fixes) > 0
}

// check tells the user what the merge changed: lines the stock policy adjusted, and
// lines where the server's cart still differs from the plan.
func (r *Resolver) check(ctx context.Context, plan Outcome, actual []model.ServerItem) {
	diff := plan.Diff(actual)
	keys := diff.Keys()
	differs := make(map[string]bool, len(keys))
	for _, k := range keys {
		differs[k] = true
	}

	adjusted := 0
	for _, key := range plan.Adjusted {
		if !differs[key.String()] {
			adjusted++
		}
	}
	if adjusted > 0 {
		r.notifier.Notify(ctx, notify.Warning, adjustedMessage(r.policy))
	}

	if diff.IsEmpty() {
		return
	}
	conflict := model.NewMergeConflictError(keys)
	r.logger.Warn("merge result differs from plan",
		slog.Any("keys", keys),
		slog.String("error", conflict.Error()),
	)
	r.notifier.Notify(ctx, notify.Warning, "Some quantities in your combined cart differ from what was expected. Showing the store's cart.")
}

func adjustedMessage(policy Policy) string {
	if policy == PolicyReject {
		return "Some items from your guest cart were left out because there was not enough stock."
	}
	return "Some quantities were reduced to the available stock when your carts were combined."
}
