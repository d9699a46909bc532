package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
processing:
  tenants: [acme]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Processing.PoolWidth != 25 {
		t.Errorf("Processing.PoolWidth = %d, want 25", cfg.Processing.PoolWidth)
	}

	if cfg.Processing.MaxBatch != 100 {
		t.Errorf("Processing.MaxBatch = %d, want 100", cfg.Processing.MaxBatch)
	}

	if cfg.Processing.BatchWindow != 100*time.Millisecond {
		t.Errorf("Processing.BatchWindow = %v, want 100ms", cfg.Processing.BatchWindow)
	}

	if cfg.Kafka.Product != "thingflow" {
		t.Errorf("Kafka.Product = %q, want %q", cfg.Kafka.Product, "thingflow")
	}

	if cfg.Metrics.Port != 9092 {
		t.Errorf("Metrics.Port = %d, want 9092", cfg.Metrics.Port)
	}
}

func TestLoad_RequiresTenants(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Error("Load() should fail without configured tenants")
	}
}

func TestLoad_Overrides(t *testing.T) {
	path := writeConfig(t, `
processing:
  tenants: [acme, globex]
  pool_width: 8
  batch_window: 250ms
kafka:
  instance: staging
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Processing.Tenants) != 2 {
		t.Errorf("Processing.Tenants = %v, want two tenants", cfg.Processing.Tenants)
	}

	if cfg.Processing.PoolWidth != 8 {
		t.Errorf("Processing.PoolWidth = %d, want 8", cfg.Processing.PoolWidth)
	}

	if cfg.Processing.BatchWindow != 250*time.Millisecond {
		t.Errorf("Processing.BatchWindow = %v, want 250ms", cfg.Processing.BatchWindow)
	}

	if cfg.Kafka.Instance != "staging" {
		t.Errorf("Kafka.Instance = %q, want %q", cfg.Kafka.Instance, "staging")
	}
}
