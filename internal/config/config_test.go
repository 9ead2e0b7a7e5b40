package config

import (
	"testing"
	"time"
)

// TestLoadRequiresGateway verifies the two required settings.
func TestLoadRequiresGateway(t *testing.T) {
	t.Setenv("GATEWAY_URL", "")
	t.Setenv("GATEWAY_API_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error without GATEWAY_URL")
	}

	t.Setenv("GATEWAY_URL", "https://backend.example.com")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error without GATEWAY_API_KEY")
	}
}

// TestLoadDefaults verifies default values for the optional settings.
func TestLoadDefaults(t *testing.T) {
	t.Setenv("GATEWAY_URL", "https://backend.example.com")
	t.Setenv("GATEWAY_API_KEY", "anon-key")
	t.Setenv("APP_ENV", "")
	t.Setenv("SEARCH_DEBOUNCE", "")
	t.Setenv("STORAGE_REGION", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Env != "dev" {
		t.Fatalf("unexpected env %q", cfg.Env)
	}
	if cfg.SearchDebounce != 300*time.Millisecond {
		t.Fatalf("unexpected debounce %v", cfg.SearchDebounce)
	}
	if cfg.Storage.Region != "us-east-1" {
		t.Fatalf("unexpected region %q", cfg.Storage.Region)
	}
	if cfg.Storage.AvatarBucket != "avatars" || cfg.Storage.ImageBucket != "event-images" {
		t.Fatalf("unexpected buckets %q %q", cfg.Storage.AvatarBucket, cfg.Storage.ImageBucket)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Fatalf("unexpected logging defaults %+v", cfg.Logging)
	}
}

// TestLoadOverrides verifies explicit settings win over defaults.
func TestLoadOverrides(t *testing.T) {
	t.Setenv("GATEWAY_URL", "https://backend.example.com")
	t.Setenv("GATEWAY_API_KEY", "anon-key")
	t.Setenv("SEARCH_DEBOUNCE", "500ms")
	t.Setenv("STORAGE_USE_SSL", "false")
	t.Setenv("GATEWAY_REALTIME_URL", "wss://rt.example.com/socket")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.SearchDebounce != 500*time.Millisecond {
		t.Fatalf("unexpected debounce %v", cfg.SearchDebounce)
	}
	if cfg.Storage.UseSSL {
		t.Fatalf("use ssl should be off")
	}
	if cfg.Gateway.RealtimeURL != "wss://rt.example.com/socket" {
		t.Fatalf("unexpected realtime url %q", cfg.Gateway.RealtimeURL)
	}
}
