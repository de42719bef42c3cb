// cartd serves one headless cart session over REST and MCP, keeping an optimistic
// local cart in sync with a remote cart backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cart-sync/internal/backup"
	"cart-sync/internal/config"
	"cart-sync/internal/handler"
	"cart-sync/internal/middleware"
	"cart-sync/internal/notify"
	"cart-sync/internal/remote"
	"cart-sync/internal/session"
	"cart-sync/internal/telemetry"
	"cart-sync/internal/transport"
	"cart-sync/internal/wix"
	"cart-sync/internal/woocommerce"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

// notificationBacklog bounds the notifications kept for GET /notifications.
const notificationBacklog = 100

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Initialize structured logger
	logger := initLogger()

	// Load configuration
	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Info("configuration loaded",
		slog.String("backend", cfg.Backend.Type),
		slog.String("environment", cfg.Environment),
		slog.String("backend_url", cfg.Backend.URL),
		slog.Bool("tracing", cfg.Telemetry.OTLPEndpoint != ""),
	)

	tel, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}

	backend, err := createBackend(cfg)
	if err != nil {
		return fmt.Errorf("creating backend: %w", err)
	}

	storage, closeStorage, err := openStorage(cfg)
	if err != nil {
		return fmt.Errorf("opening backup storage: %w", err)
	}
	defer closeStorage()

	notes := notify.NewRecorder(notificationBacklog, notify.NewLogSink(logger))

	engine, err := session.New(session.Config{
		Remote:       backend,
		Identity:     remote.Identity{GuestID: cfg.GuestID},
		Storage:      storage,
		Notifier:     notes,
		Logger:       logger,
		Tracer:       tel.TracerProvider(),
		Window:       cfg.Sync.DebounceWindow.Std(),
		AddAttempts:  cfg.Sync.AddAttempts,
		AddBackoff:   cfg.Sync.AddBackoff.Std(),
		BackupMaxAge: cfg.Backup.MaxAge.Std(),
		MergePolicy:  cfg.MergePolicy(),
	})
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	startCtx, cancelStart := context.WithTimeout(ctx, cfg.Backend.Timeout.Std())
	source, err := engine.Start(startCtx)
	cancelStart()
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	logger.Info("cart loaded",
		slog.String("source", string(source)),
		slog.String("guest_id", engine.Identity().GuestID),
	)

	h := handler.New(engine, notes, logger)

	// Setup routes
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Apply middleware chain: request id → recovery → logging → handler
	// Recovery must wrap logging to catch panics from it
	httpHandler := middleware.Chain(
		middleware.RequestID(),
		middleware.Recovery(logger),
		middleware.Logging(logger),
	)(mux)

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Channel for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Channel for server errors
	serverErr := make(chan error, 1)

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
		)
		serverErr <- server.ListenAndServe()
	}()

	// Wait for shutdown signal or server error
	var runErr error
	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	// Give outstanding requests and pending cart writes time to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		// Force close if graceful shutdown fails
		server.Close()
		runErr = errors.Join(runErr, fmt.Errorf("shutdown error: %w", err))
	}
	if err := engine.Close(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("closing session: %w", err))
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		logger.Warn("trace flush failed", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
	return runErr
}

// createBackend creates the remote cart service selected by configuration.
func createBackend(cfg *config.Config) (remote.Service, error) {
	switch cfg.Backend.Type {
	case config.BackendHTTP:
		return remote.NewHTTPClient(remote.HTTPConfig{
			BaseURL: cfg.Backend.URL,
			APIKey:  cfg.Backend.APIKey,
			HTTPClient: &http.Client{
				Timeout: cfg.Backend.Timeout.Std(),
				Transport: transport.New(transport.Options{
					Timeout:     cfg.Backend.Timeout.Std(),
					Fingerprint: cfg.Backend.Fingerprint,
				}),
			},
		})
	case config.BackendWooCommerce:
		return woocommerce.New(woocommerce.Config{
			StoreURL:    cfg.Backend.URL,
			Timeout:     cfg.Backend.Timeout.Std(),
			Fingerprint: cfg.Backend.Fingerprint,
		})
	case config.BackendWix:
		return wix.New(wix.Config{
			ClientID:    cfg.Backend.ClientID,
			BaseURL:     cfg.Backend.URL,
			Timeout:     cfg.Backend.Timeout.Std(),
			Fingerprint: cfg.Backend.Fingerprint,
		})
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.Backend.Type)
	}
}

// openStorage opens the SQLite backup when a path is configured, otherwise an
// in-memory store that lasts for the process.
func openStorage(cfg *config.Config) (backup.Storage, func() error, error) {
	if cfg.Backup.Path == "" {
		return backup.NewMemoryStorage(), func() error { return nil }, nil
	}
	db, err := backup.OpenSQLite(cfg.Backup.Path)
	if err != nil {
		return nil, nil, err
	}
	return db, db.Close, nil
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger() *slog.Logger {
	return newLogger(os.Stdout, os.Getenv("LOG_LEVEL"), os.Getenv("ENVIRONMENT"))
}

func newLogger(w io.Writer, levelName, environment string) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		// Add source location in debug mode
		AddSource: level == slog.LevelDebug,
	}

	// JSON for production (Cloud Logging compatible), text for development
	if environment == "production" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
