package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultCoreConfigIsValid(t *testing.T) {
	cfg := DefaultCoreConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default core config invalid: %v", err)
	}
	if cfg.MaxIterations != 3 {
		t.Errorf("MaxIterations = %d, want 3", cfg.MaxIterations)
	}
	if cfg.DefaultStep != "general_assistant" {
		t.Errorf("DefaultStep = %q", cfg.DefaultStep)
	}
}

func TestDefaultServerConfigIsValid(t *testing.T) {
	cfg := DefaultServerConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default server config invalid: %v", err)
	}
}

func TestCoreConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CoreConfig)
	}{
		{"zero max iterations", func(c *CoreConfig) { c.MaxIterations = 0 }},
		{"empty default step", func(c *CoreConfig) { c.DefaultStep = "" }},
		{"zero buffer", func(c *CoreConfig) { c.ObserverBufferSize = 0 }},
		{"negative retention", func(c *CoreConfig) { c.EventRetention = -time.Second }},
		{"rule without step", func(c *CoreConfig) {
			c.RoutingRules = []RoutingRule{{Keywords: []string{"x"}}}
		}},
		{"rule without keywords", func(c *CoreConfig) {
			c.RoutingRules = []RoutingRule{{Step: "x"}}
		}},
		{"sweeper without interval", func(c *CoreConfig) {
			c.SweeperEnabled = true
			c.SweepInterval = 0
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultCoreConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestServerConfigValidation(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.Store.Backend = "postgres"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown backend accepted")
	}

	cfg = DefaultServerConfig()
	cfg.Store.Backend = "bolt"
	cfg.Store.Path = ""
	if err := cfg.Validate(); err == nil {
		t.Error("bolt backend without path accepted")
	}

	cfg = DefaultServerConfig()
	cfg.NATS.Enabled = true
	cfg.NATS.URL = ""
	if err := cfg.Validate(); err == nil {
		t.Error("enabled nats without url accepted")
	}
}

func TestLoadFromFile(t *testing.T) {
	raw := `
core:
  max_iterations: 5
  default_step: report_drafting
  routing_rules:
    - keywords: ["invoice"]
      step: invoice_review
store:
  backend: memory
nats:
  enabled: true
  url: nats://example:4222
`
	path := filepath.Join(t.TempDir(), "relay.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Core.MaxIterations != 5 {
		t.Errorf("MaxIterations = %d, want 5", cfg.Core.MaxIterations)
	}
	if cfg.Core.DefaultStep != "report_drafting" {
		t.Errorf("DefaultStep = %q", cfg.Core.DefaultStep)
	}
	if len(cfg.Core.RoutingRules) != 1 || cfg.Core.RoutingRules[0].Step != "invoice_review" {
		t.Errorf("routing rules not loaded: %+v", cfg.Core.RoutingRules)
	}
	// Unspecified sections keep defaults.
	if cfg.Metrics.Addr != ":9090" {
		t.Errorf("metrics addr = %q, want default", cfg.Metrics.Addr)
	}
	if !cfg.NATS.Enabled || cfg.NATS.URL != "nats://example:4222" {
		t.Errorf("nats config not loaded: %+v", cfg.NATS)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml")); !os.IsNotExist(err) {
		t.Errorf("missing file error = %v, want os.IsNotExist", err)
	}
}

func TestLoadFromFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("core:\n  max_iterations: 0\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("invalid config accepted")
	}
}
