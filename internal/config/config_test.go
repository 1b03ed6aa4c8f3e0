package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Backend != BackendMemory {
		t.Fatalf("unexpected backend %q", cfg.Storage.Backend)
	}
	if cfg.Chain.BlockInterval != 10*time.Minute {
		t.Fatalf("unexpected block interval %v", cfg.Chain.BlockInterval)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guildd.yaml")
	data := []byte(`
httpAddr: ":9000"
storage:
  backend: badger
  badgerDir: /tmp/guildhall
chain:
  blockInterval: 1m
rateLimit:
  burst: 5
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("GUILDHALL_HTTP_ADDR", ":9100")
	t.Setenv("GUILDHALL_AUTH_SECRET", "s3cret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9100" {
		t.Fatalf("env should override file, got %q", cfg.HTTPAddr)
	}
	if cfg.Storage.Backend != BackendBadger || cfg.Storage.BadgerDir != "/tmp/guildhall" {
		t.Fatalf("storage not loaded from file: %+v", cfg.Storage)
	}
	if cfg.Chain.BlockInterval != time.Minute {
		t.Fatalf("unexpected block interval %v", cfg.Chain.BlockInterval)
	}
	if cfg.RateLimit.Burst != 5 || cfg.RateLimit.PerSecond != 50 {
		t.Fatalf("rate limit overlay wrong: %+v", cfg.RateLimit)
	}
	if cfg.Auth.Secret != "s3cret" {
		t.Fatalf("secret not read from env")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = "sqlite"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected unknown backend error")
	}

	cfg = Default()
	cfg.Storage.Backend = BackendPostgres
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected missing DSN error")
	}

	cfg = Default()
	cfg.HTTPAddr = "no-port"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected bad address error")
	}

	cfg = Default()
	cfg.Chain.BlockInterval = 0
	cfg.Chain.Manual = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("manual chain needs no interval: %v", err)
	}
}
