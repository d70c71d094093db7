package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSetDefaults(t *testing.T) {
	c := &Config{}
	c.SetDefaults()
	if c.Scheduler.Debounce != time.Second {
		t.Fatalf("expected 1s debounce, got %s", c.Scheduler.Debounce)
	}
	if c.Scheduler.MinIndicator != 600*time.Millisecond {
		t.Fatalf("expected 600ms indicator, got %s", c.Scheduler.MinIndicator)
	}
	if c.API.Timeout != 0 {
		t.Fatalf("expected no api timeout by default")
	}
	if c.Server.Port != 3000 {
		t.Fatalf("expected port 3000")
	}
	if c.Server.Host != "127.0.0.1" {
		t.Fatalf("expected default host")
	}
	if c.Log.Level != "info" {
		t.Fatalf("expected info level")
	}
	if c.Ledger.Capacity != 30 {
		t.Fatalf("expected ledger capacity 30, got %d", c.Ledger.Capacity)
	}
}

func TestLoadFromYAML(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	body := "api:\n  base_url: http://sim.local:9000\nscheduler:\n  debounce: 250ms\nserver:\n  port: 8080\nledger:\n  kafka:\n    brokers: [\"k1:9092\"]\n"
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.API.BaseURL != "http://sim.local:9000" {
		t.Fatalf("unexpected base url %s", cfg.API.BaseURL)
	}
	if cfg.Scheduler.Debounce != 250*time.Millisecond {
		t.Fatalf("unexpected debounce %s", cfg.Scheduler.Debounce)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("unexpected port %d", cfg.Server.Port)
	}
	if len(cfg.Ledger.Kafka.Brokers) != 1 || cfg.Ledger.Kafka.Brokers[0] != "k1:9092" {
		t.Fatalf("unexpected brokers %v", cfg.Ledger.Kafka.Brokers)
	}
	if cfg.Scheduler.MinIndicator != 600*time.Millisecond {
		t.Fatalf("defaults should survive partial yaml")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRADESIM_API_BASE_URL", "http://env.local")
	t.Setenv("TRADESIM_SCHEDULER_DEBOUNCE", "2s")
	t.Setenv("TRADESIM_KAFKA_BROKERS", "a:1, b:2")
	t.Setenv("TRADESIM_METRICS_ENABLED", "true")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.API.BaseURL != "http://env.local" {
		t.Fatalf("env base url not applied: %s", cfg.API.BaseURL)
	}
	if cfg.Scheduler.Debounce != 2*time.Second {
		t.Fatalf("env debounce not applied: %s", cfg.Scheduler.Debounce)
	}
	if len(cfg.Ledger.Kafka.Brokers) != 2 || cfg.Ledger.Kafka.Brokers[1] != "b:2" {
		t.Fatalf("env brokers not applied: %v", cfg.Ledger.Kafka.Brokers)
	}
	if !cfg.Metrics.Enabled {
		t.Fatalf("env metrics flag not applied")
	}
}

func TestValidate(t *testing.T) {
	c := &Config{}
	c.SetDefaults()
	c.Output.Dir = t.TempDir()
	if err := c.Validate(); err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if err := c.ValidateExport(); err != nil {
		t.Fatalf("validate export failed: %v", err)
	}

	bad := *c
	bad.API.BaseURL = "not a url"
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected base url validation error")
	}

	bad = *c
	bad.Output.Formats = []string{"pdf"}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected format validation error")
	}
}
