package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pixeldesk.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(FileEnv, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.API.Addr != ":8080" {
		t.Fatalf("expected default addr, got %q", cfg.API.Addr)
	}
	if cfg.Render.PreviewDelay != 300*time.Millisecond {
		t.Fatalf("expected 300ms preview delay, got %v", cfg.Render.PreviewDelay)
	}
	if cfg.Database.Driver != "memory" {
		t.Fatalf("expected memory store by default, got %q", cfg.Database.Driver)
	}
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
api:
  addr: ":9000"
render:
  max_pixels: 1000000
  preview_delay: 150ms
rate_limit:
  requests: 5
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile returned error: %v", err)
	}
	if cfg.API.Addr != ":9000" {
		t.Fatalf("expected addr from file, got %q", cfg.API.Addr)
	}
	if cfg.Render.MaxPixels != 1_000_000 {
		t.Fatalf("expected max_pixels from file, got %d", cfg.Render.MaxPixels)
	}
	if cfg.Render.PreviewDelay != 150*time.Millisecond {
		t.Fatalf("expected preview delay from file, got %v", cfg.Render.PreviewDelay)
	}
	if cfg.RateLimit.Window != time.Minute {
		t.Fatalf("unset window should keep default, got %v", cfg.RateLimit.Window)
	}
	if cfg.Queue.Name != "default" {
		t.Fatalf("unset queue name should keep default, got %q", cfg.Queue.Name)
	}
}

func TestLoadEnvWinsOverFile(t *testing.T) {
	path := writeConfig(t, "api:\n  addr: \":9000\"\n")
	t.Setenv(FileEnv, path)
	t.Setenv("PIXELDESK_API_ADDR", ":7000")
	t.Setenv("PREVIEW_DEBOUNCE", "1s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.API.Addr != ":7000" {
		t.Fatalf("expected env addr, got %q", cfg.API.Addr)
	}
	if cfg.Render.PreviewDelay != time.Second {
		t.Fatalf("expected env preview delay, got %v", cfg.Render.PreviewDelay)
	}
}

func TestLoadFileExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_MINIO_SECRET", "s3cret")
	path := writeConfig(t, "storage:\n  secret_key: ${TEST_MINIO_SECRET}\n  access_key: ${PIXELDESK_UNSET_FOR_TEST}\n")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile returned error: %v", err)
	}
	if cfg.Storage.SecretKey != "s3cret" {
		t.Fatalf("expected expanded secret, got %q", cfg.Storage.SecretKey)
	}
	if cfg.Storage.AccessKey != "" {
		t.Fatalf("expected unset var to expand to empty, got %q", cfg.Storage.AccessKey)
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := LoadFile(writeConfig(t, "api: [not, a, map")); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}

func TestInvalidEnvFallsBack(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")
	t.Setenv("RATE_LIMIT_WINDOW", "-5s")
	t.Setenv("MINIO_USE_SSL", "maybe")

	cfg := Default()
	applyEnv(&cfg)
	if cfg.Queue.RedisDB != 0 {
		t.Fatalf("expected fallback redis db, got %d", cfg.Queue.RedisDB)
	}
	if cfg.RateLimit.Window != time.Minute {
		t.Fatalf("expected fallback window, got %v", cfg.RateLimit.Window)
	}
	if cfg.Storage.UseSSL {
		t.Fatal("expected fallback use_ssl=false")
	}
}
