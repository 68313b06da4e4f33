package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{"HTTP_ADDR", "CART_STORE", "CART_STOCK_POLICY", "CHAT_POLL_INTERVAL_SECONDS", "CORS_ALLOWED_ORIGINS"} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("expected default addr, got %q", cfg.HTTPAddr)
	}
	if cfg.CartStore != CartStorePostgres {
		t.Fatalf("expected postgres cart store, got %q", cfg.CartStore)
	}
	if cfg.CartStockPolicy != "trust" {
		t.Fatalf("expected trust stock policy, got %q", cfg.CartStockPolicy)
	}
	if cfg.ChatPollInterval != 30*time.Second {
		t.Fatalf("expected 30s poll interval, got %s", cfg.ChatPollInterval)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("CART_STORE", "REDIS")
	t.Setenv("CHAT_POLL_INTERVAL_SECONDS", "5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://shop.example, https://admin.example")
	t.Setenv("REDIS_DB", "3")

	cfg := FromEnv()
	if cfg.HTTPAddr != ":9090" || cfg.CartStore != CartStoreRedis || cfg.RedisDB != 3 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.ChatPollInterval != 5*time.Second {
		t.Fatalf("expected 5s poll interval, got %s", cfg.ChatPollInterval)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://admin.example" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
}

func TestValidate(t *testing.T) {
	cfg := Config{DBConnString: "postgres://x", CartStore: CartStorePostgres, CartStockPolicy: "trust"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for missing JWT_SECRET")
	}

	cfg.JWTSecret = "secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg.CartStore = CartStoreRedis
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for redis store without REDIS_ADDR")
	}

	cfg.CartStore = "s3"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for unsupported store")
	}

	cfg.CartStore = CartStorePostgres
	cfg.CartStockPolicy = "reserve"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for unsupported stock policy")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("STOREFRONT_TEST_KEY=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("STOREFRONT_TEST_KEY", "")
	os.Unsetenv("STOREFRONT_TEST_KEY")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := os.Getenv("STOREFRONT_TEST_KEY"); got != "from-file" {
		t.Fatalf("expected value from file, got %q", got)
	}

	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
}
