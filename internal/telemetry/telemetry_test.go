package telemetry

import (
	"context"
	"testing"
)

func TestSetup_Disabled(t *testing.T) {
	p, err := Setup(context.Background(), Config{ServiceName: "cart-sync"})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if p.Enabled() {
		t.Error("Enabled() = true without an endpoint")
	}
	if p.TracerProvider() == nil {
		t.Fatal("TracerProvider() = nil")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestSetup_Enabled(t *testing.T) {
	ctx := context.Background()
	// The exporter connects lazily, so no collector is needed until spans flush.
	p, err := Setup(ctx, Config{Endpoint: "http://127.0.0.1:4318", ServiceName: "cart-sync", Version: "test"})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if !p.Enabled() {
		t.Error("Enabled() = false with an endpoint")
	}

	ctx, cancel := context.WithCancel(ctx)
	cancel()
	p.Shutdown(ctx)
}

func TestNewResource(t *testing.T) {
	res, err := newResource(context.Background(), Config{Version: "1.2.3"})
	if err != nil {
		t.Fatalf("newResource() error = %v", err)
	}
	attrs := map[string]string{}
	for _, kv := range res.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs["service.name"] != "cart-sync" {
		t.Errorf("service.name = %q, want cart-sync", attrs["service.name"])
	}
	if attrs["service.version"] != "1.2.3" {
		t.Errorf("service.version = %q, want 1.2.3", attrs["service.version"])
	}
}
