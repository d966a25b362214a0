package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("expected address :8080, got %s", cfg.Address())
	}
	if cfg.TrackingTokenTTLHours != 72 {
		t.Fatalf("expected default token TTL 72h, got %d", cfg.TrackingTokenTTLHours)
	}
	if cfg.TrackingCacheTTLSeconds != 60 {
		t.Fatalf("expected default cache TTL 60s, got %d", cfg.TrackingCacheTTLSeconds)
	}
	if cfg.NotifyChannel != "orders.events" {
		t.Fatalf("expected default notify channel, got %s", cfg.NotifyChannel)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("TRACKING_TOKEN_TTL_HOURS", "24")
	t.Setenv("TRACKING_CACHE_TTL_SECONDS", "not-a-number")
	t.Setenv("REDIS_DB", "3")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Fatalf("expected port 9090, got %s", cfg.Port)
	}
	if cfg.TrackingTokenTTLHours != 24 {
		t.Fatalf("expected token TTL 24h, got %d", cfg.TrackingTokenTTLHours)
	}
	if cfg.TrackingCacheTTLSeconds != 60 {
		t.Fatalf("expected fallback cache TTL 60s, got %d", cfg.TrackingCacheTTLSeconds)
	}
	if cfg.RedisDB != 3 {
		t.Fatalf("expected redis db 3, got %d", cfg.RedisDB)
	}
}
