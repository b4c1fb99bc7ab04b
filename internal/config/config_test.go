package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AppName != "topup" {
		t.Fatalf("expected app name topup, got %q", cfg.AppName)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("expected default addr, got %q", cfg.HTTPAddr)
	}
	if cfg.Razorpay.Timeout != 12*time.Second {
		t.Fatalf("expected 12s gateway timeout, got %s", cfg.Razorpay.Timeout)
	}
	if cfg.Catalog.CacheTTL != 5*time.Minute {
		t.Fatalf("expected 5m cache ttl, got %s", cfg.Catalog.CacheTTL)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("RAZORPAY_KEY_ID", "rzp_test_key")
	t.Setenv("RAZORPAY_KEY_SECRET", "rzp_test_secret")
	t.Setenv("RAZORPAY_WEBHOOK_SECRET", "whsec")
	t.Setenv("RAZORPAY_TIMEOUT", "3s")
	t.Setenv("DATABASE_TYPE", "SQLite")
	t.Setenv("ENVIRONMENT", "Production")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Razorpay.KeyID != "rzp_test_key" || cfg.Razorpay.KeySecret != "rzp_test_secret" {
		t.Fatalf("unexpected razorpay credentials: %+v", cfg.Razorpay)
	}
	if cfg.Razorpay.WebhookSecret != "whsec" {
		t.Fatalf("expected webhook secret from env")
	}
	if cfg.Razorpay.Timeout != 3*time.Second {
		t.Fatalf("expected 3s timeout, got %s", cfg.Razorpay.Timeout)
	}
	if cfg.DBType != "sqlite" {
		t.Fatalf("expected sqlite, got %q", cfg.DBType)
	}
	if !cfg.IsProduction() {
		t.Fatalf("expected production environment, got %q", cfg.Environment)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("expected redis addr, got %q", cfg.Redis.Addr)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte("http:\n  addr: \":9090\"\nratelimit:\n  enabled: false\ncatalog:\n  cache_ttl: 30s\n")
	if err := os.WriteFile(filepath.Join(dir, "topup.yml"), content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("expected file addr, got %q", cfg.HTTPAddr)
	}
	if cfg.RateLimit.Enabled {
		t.Fatalf("expected rate limit disabled from file")
	}
	if cfg.Catalog.CacheTTL != 30*time.Second {
		t.Fatalf("expected 30s ttl, got %s", cfg.Catalog.CacheTTL)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("SNOWFLAKE_NODE", "5000")
	if _, err := load(t.TempDir()); err == nil {
		t.Fatalf("expected out of range snowflake node to fail")
	}
}
