// Package config handles loading and validation of service configuration.
// Supports both development (env vars or CONFIG_FILE) and production (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/caarlos0/env/v11"

	"cart-sync/internal/merge"
)

// Backend types.
const (
	BackendHTTP        = "http"
	BackendWooCommerce = "woocommerce"
	BackendWix         = "wix"
)

// Config holds all service configuration.
// Environment determines whether backend credentials come from env vars (development)
// or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string `env:"PORT" envDefault:"8080" json:"port"`
	Environment string `env:"ENVIRONMENT" envDefault:"development" json:"environment"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" json:"log_level"`

	// GCP settings (required in production)
	GCPProject string `env:"GCP_PROJECT" json:"gcp_project,omitempty"`
	SecretID   string `env:"BACKEND_SECRET_ID" envDefault:"cart-sync-backend" json:"secret_id,omitempty"`

	// GuestID resumes an anonymous backend session across restarts. Empty starts a new one.
	GuestID string `env:"CART_GUEST_ID" json:"guest_id,omitempty"`

	Backend   BackendConfig   `envPrefix:"BACKEND_" json:"backend"`
	Sync      SyncConfig      `envPrefix:"CART_" json:"sync"`
	Backup    BackupConfig    `envPrefix:"CART_BACKUP_" json:"backup"`
	Telemetry TelemetryConfig `json:"telemetry"`
}

// BackendConfig selects and reaches the remote cart service.
// In production, URL and credentials are loaded from Secret Manager as JSON.
type BackendConfig struct {
	Type        string   `env:"TYPE" envDefault:"http" json:"type"`
	URL         string   `env:"URL" json:"url"` // Optional for wix
	APIKey      string   `env:"API_KEY" json:"api_key,omitempty"`
	ClientID    string   `env:"CLIENT_ID" json:"client_id,omitempty"` // Wix OAuth app
	Timeout     Duration `env:"TIMEOUT" envDefault:"30s" json:"timeout"`
	Fingerprint bool     `env:"FINGERPRINT" json:"fingerprint,omitempty"` // Chrome TLS fingerprint for bot-protected stores
}

// SyncConfig tunes the write coordinator and login merge.
type SyncConfig struct {
	DebounceWindow Duration `env:"DEBOUNCE_WINDOW" envDefault:"500ms" json:"debounce_window"`
	AddAttempts    int      `env:"ADD_ATTEMPTS" envDefault:"2" json:"add_attempts"`
	AddBackoff     Duration `env:"ADD_BACKOFF" envDefault:"1s" json:"add_backoff"`
	MergePolicy    string   `env:"MERGE_POLICY" envDefault:"cap" json:"merge_policy"`
}

// BackupConfig locates the local cart backup. An empty Path keeps backups in memory.
type BackupConfig struct {
	Path   string   `env:"PATH" json:"path,omitempty"`
	MaxAge Duration `env:"MAX_AGE" envDefault:"24h" json:"max_age"`
}

// TelemetryConfig enables trace export. Tracing is off when OTLPEndpoint is empty.
type TelemetryConfig struct {
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" json:"otlp_endpoint,omitempty"`
	ServiceName  string `env:"OTEL_SERVICE_NAME" envDefault:"cart-sync" json:"service_name"`
}

// Duration is a time.Duration written as "500ms" or "24h" in env vars and JSON.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// Validates all required fields and returns an error if any are missing.
func Load(ctx context.Context) (*Config, error) {
	// If CONFIG_FILE is set, load everything from the JSON file
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		if err := cfg.loadFromSecretManager(ctx); err != nil {
			return nil, fmt.Errorf("loading backend config: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile reads all configuration from a JSON file. Fields the file omits keep
// their defaults.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := defaults()
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaults returns a Config holding only the envDefault values.
func defaults() (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: map[string]string{}}); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}
	return cfg, nil
}

// loadFromSecretManager fetches backend config from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{secret_id}/versions/latest
// The secret is a JSON BackendConfig; fields it sets override the environment.
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.SecretID)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	return c.applySecret(result.Payload.Data)
}

func (c *Config) applySecret(data []byte) error {
	if err := json.Unmarshal(data, &c.Backend); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}
	return nil
}

// validate checks that all required configuration fields are present and sane.
func (c *Config) validate() error {
	switch c.Backend.Type {
	case BackendHTTP, BackendWooCommerce:
		if c.Backend.URL == "" {
			return fmt.Errorf("backend url is required")
		}
	case BackendWix:
		// Wix OAuth uses client_id only
		if c.Backend.ClientID == "" {
			return fmt.Errorf("client_id is required for the wix backend")
		}
	default:
		return fmt.Errorf("backend type %q is not supported (http, woocommerce or wix)", c.Backend.Type)
	}

	if c.Backend.URL != "" {
		u, err := url.Parse(c.Backend.URL)
		if err != nil {
			return fmt.Errorf("invalid backend url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("backend url must be http or https, got %q", c.Backend.URL)
		}
	}

	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend timeout must be positive")
	}
	if c.Sync.DebounceWindow <= 0 {
		return fmt.Errorf("debounce window must be positive")
	}
	if c.Sync.AddAttempts < 1 {
		return fmt.Errorf("add attempts must be at least 1")
	}
	if c.Sync.AddBackoff < 0 {
		return fmt.Errorf("add backoff must not be negative")
	}
	if _, err := merge.ParsePolicy(c.Sync.MergePolicy); err != nil {
		return err
	}
	if c.Backup.MaxAge <= 0 {
		return fmt.Errorf("backup max age must be positive")
	}
	return nil
}

// MergePolicy returns the parsed merge policy. Valid after Load.
func (c *Config) MergePolicy() merge.Policy {
	p, _ := merge.ParsePolicy(c.Sync.MergePolicy)
	return p
}
