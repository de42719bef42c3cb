// Package session assembles one cart session: the store, the sync coordinator, the
// merge resolver and backup recovery, driven by authentication events.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"cart-sync/internal/auth"
	"cart-sync/internal/backup"
	"cart-sync/internal/cart"
	"cart-sync/internal/coordinator"
	"cart-sync/internal/debounce"
	"cart-sync/internal/merge"
	"cart-sync/internal/model"
	"cart-sync/internal/notify"
	"cart-sync/internal/remote"
)

// Source says where the cart came from at start.
type Source string

const (
	SourceServer Source = "server"
	SourceBackup Source = "backup"
	SourceEmpty  Source = "empty"
)

// Config wires an Engine. Remote is required; everything else has a default.
type Config struct {
	Remote   remote.Service
	Identity remote.Identity // Initial identity; a fresh guest when zero
	Storage  backup.Storage  // Defaults to in-memory storage
	Auth     *auth.Feed      // Optional source of login/logout events
	Notifier notify.Sink
	Logger   *slog.Logger
	Tracer   trace.TracerProvider
	Clock    debounce.Clock

	Window       time.Duration
	AddAttempts  int
	AddBackoff   time.Duration
	BackupMaxAge time.Duration
	MergePolicy  merge.Policy
}

// Engine is one cart session. Create it with New, call Start once, and Close when done.
type Engine struct {
	store     *cart.Store
	selection *cart.Selection
	creds     *remote.Credentials
	coord     *coordinator.Coordinator
	resolver  *merge.Resolver
	recovery  *backup.Recovery
	feed      *auth.Feed
	notifier  notify.Sink
	logger    *slog.Logger

	mu          sync.Mutex
	started     bool
	closed      bool
	unsubscribe func()
	stopAuth    func()
	authDone    chan struct{}
}

// New builds an engine holding an empty guest cart. Nothing touches the network
// until Start.
func New(cfg Config) (*Engine, error) {
	if cfg.Remote == nil {
		return nil, errors.New("remote service is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.NewLogSink(logger)
	}
	storage := cfg.Storage
	if storage == nil {
		storage = backup.NewMemoryStorage()
	}
	tp := cfg.Tracer
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	store := cart.NewStore(cart.NewGuestState(), cart.StoreConfig{Logger: logger.With(slog.String("component", "store"))})
	creds := remote.NewCredentials(cfg.Identity)

	coord, err := coordinator.New(coordinator.Config{
		Store:       store,
		Remote:      cfg.Remote,
		Identity:    creds,
		Notifier:    notifier,
		Logger:      logger.With(slog.String("component", "coordinator")),
		Tracer:      tp.Tracer("cart-sync/coordinator"),
		Clock:       cfg.Clock,
		Window:      cfg.Window,
		AddAttempts: cfg.AddAttempts,
		AddBackoff:  cfg.AddBackoff,
	})
	if err != nil {
		return nil, fmt.Errorf("coordinator: %w", err)
	}

	resolver, err := merge.NewResolver(merge.Config{
		Store:    store,
		Remote:   cfg.Remote,
		Identity: creds,
		Writes:   coord,
		Notifier: notifier,
		Logger:   logger.With(slog.String("component", "merge")),
		Tracer:   tp.Tracer("cart-sync/merge"),
		Policy:   cfg.MergePolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("merge resolver: %w", err)
	}

	return &Engine{
		store:     store,
		selection: cart.NewSelection(store),
		creds:     creds,
		coord:     coord,
		resolver:  resolver,
		recovery: backup.New(backup.Config{
			Storage: storage,
			Logger:  logger.With(slog.String("component", "backup")),
			MaxAge:  cfg.BackupMaxAge,
		}),
		feed:     cfg.Auth,
		notifier: notifier,
		logger:   logger,
	}, nil
}

// Start loads the cart: from the server, else from a fresh backup, else empty.
// It then starts persisting committed transitions and, when a feed is configured,
// consuming authentication events. Start does not fail on an unreachable server.
func (e *Engine) Start(ctx context.Context) (Source, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return "", errors.New("session already started")
	}
	e.started = true

	source := SourceServer
	if _, err := e.coord.Refresh(ctx); err != nil {
		e.logger.Warn("initial cart load failed",
			slog.String("error", err.Error()),
		)
		source = SourceEmpty
		if e.recovery.RestoreInto(ctx, e.store) {
			source = SourceBackup
			e.notifier.Notify(ctx, notify.Warning, "Showing your saved cart. Changes will sync when the store is reachable.")
		}
	}

	// A server load replaces the slot; a restored backup keeps its original stamp.
	if source == SourceServer {
		if err := e.recovery.Save(ctx, e.store.Snapshot()); err != nil {
			e.logger.Warn("cart backup failed",
				slog.String("event", "load"),
				slog.String("error", err.Error()),
			)
		}
	}
	e.unsubscribe = e.store.Subscribe(e.recovery.Observe)

	if e.feed != nil {
		events, stop := e.feed.Subscribe(8)
		e.stopAuth = stop
		e.authDone = make(chan struct{})
		go e.consume(events)
	}

	e.logger.Info("cart session started",
		slog.String("source", string(source)),
		slog.Int("lines", e.store.Snapshot().Len()),
	)
	return source, nil
}

func (e *Engine) consume(events <-chan auth.Event) {
	defer close(e.authDone)
	for ev := range events {
		if err := e.HandleAuth(context.Background(), ev); err != nil {
			e.logger.Warn("auth event handling failed",
				slog.String("kind", ev.Kind.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}

// HandleAuth reacts to a login or logout. A login merges the guest cart once; a failed
// merge is returned but leaves the session usable. A logout resets to an empty guest
// cart under a new guest identity.
func (e *Engine) HandleAuth(ctx context.Context, ev auth.Event) error {
	switch ev.Kind {
	case auth.LoggedIn:
		if ev.UserID == "" || ev.Token == "" {
			return model.NewValidationError("login", "user id and token are required")
		}
		e.creds.SignIn(ev.UserID, ev.Token)
		e.logger.Info("user signed in", slog.String("user_id", ev.UserID))
		_, err := e.resolver.Resolve(ctx)
		return err

	case auth.LoggedOut:
		// New identity first, so a reload racing the reset can only see the new guest.
		id := e.creds.SignOut()
		e.coord.Reset()
		if _, err := e.store.Dispatch(cart.Reset{}); err != nil {
			return err
		}
		e.coord.Fence()
		e.logger.Info("user signed out", slog.String("guest_id", id.GuestID))
		return nil

	default:
		return fmt.Errorf("unknown auth event kind %d", ev.Kind)
	}
}

// Close stops consuming auth events, pushes out armed writes and waits for in-flight
// ones. The storage is left open for its owner to close.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	stopAuth, authDone, unsubscribe := e.stopAuth, e.authDone, e.unsubscribe
	e.mu.Unlock()

	if stopAuth != nil {
		stopAuth()
		select {
		case <-authDone:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	err := e.coord.Close(ctx)
	if unsubscribe != nil {
		unsubscribe()
	}
	return err
}

// === Facade ===

// Cart returns the current cart.
func (e *Engine) Cart() cart.State { return e.store.Snapshot() }

// Selection returns the checkout selection tracker.
func (e *Engine) Selection() *cart.Selection { return e.selection }

// Identity returns the session's current identity.
func (e *Engine) Identity() remote.Identity { return e.creds.Identity() }

func (e *Engine) Add(ctx context.Context, req coordinator.AddRequest) (cart.State, error) {
	return e.coord.Add(ctx, req)
}

func (e *Engine) Update(ctx context.Context, key model.ProductKey, quantity int) (cart.State, error) {
	return e.coord.Update(ctx, key, quantity)
}

func (e *Engine) Remove(ctx context.Context, key model.ProductKey) (cart.State, error) {
	return e.coord.Remove(ctx, key)
}

func (e *Engine) Clear(ctx context.Context) (cart.State, error) {
	return e.coord.Clear(ctx)
}

// Refresh reloads the cart from the server.
func (e *Engine) Refresh(ctx context.Context) (cart.State, error) {
	return e.coord.Refresh(ctx)
}

// Flush sends armed writes now and waits for every write to finish.
func (e *Engine) Flush(ctx context.Context) error {
	e.coord.Flush(ctx)
	return e.coord.Wait(ctx)
}

// KeyState reports the synchronization state of key.
func (e *Engine) KeyState(key model.ProductKey) coordinator.KeyState {
	return e.coord.KeyState(key)
}
