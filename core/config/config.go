// Package config provides orchestration configuration - limits, routing
// rules, checkpoint policy, and runtime wiring toggles.
//
// This module contains ONLY configuration relevant to task orchestration.
// Step content (template text, prompts) lives with the steps themselves.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Routing Rules
// =============================================================================

// RoutingRule maps descriptions containing any of Keywords to Step.
// Matching is case-insensitive substring; first matching rule wins.
type RoutingRule struct {
	Keywords []string `json:"keywords" yaml:"keywords"`
	Step     string   `json:"step" yaml:"step"`
}

// =============================================================================
// Core Config
// =============================================================================

// CoreConfig holds orchestration configuration.
//
// Infrastructure-agnostic: no store paths or transport URLs here,
// those live in ServerConfig.
type CoreConfig struct {
	// Revision Loop Control
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`

	// Clarification decision: answers matching one of these tokens
	// (case-insensitive) terminate the loop.
	AffirmativeTokens []string `json:"affirmative_tokens" yaml:"affirmative_tokens"`

	// Routing
	RoutingRules []RoutingRule `json:"routing_rules" yaml:"routing_rules"`
	DefaultStep  string        `json:"default_step" yaml:"default_step"`

	// Channel
	ObserverBufferSize int           `json:"observer_buffer_size" yaml:"observer_buffer_size"`
	EventRetention     time.Duration `json:"event_retention" yaml:"event_retention"`

	// Rate Limiting (per session, StartTask only)
	StartsPerMinute int `json:"starts_per_minute" yaml:"starts_per_minute"`
	StartsPerHour   int `json:"starts_per_hour" yaml:"starts_per_hour"`

	// Sweeper (stale checkpoint policy, disabled by default)
	SweeperEnabled   bool          `json:"sweeper_enabled" yaml:"sweeper_enabled"`
	SweepInterval    time.Duration `json:"sweep_interval" yaml:"sweep_interval"`
	ApprovalTTL      time.Duration `json:"approval_ttl" yaml:"approval_ttl"`
	ClarificationTTL time.Duration `json:"clarification_ttl" yaml:"clarification_ttl"`

	// Logging
	LogLevel string `json:"log_level" yaml:"log_level"`
}

// DefaultCoreConfig returns a CoreConfig with default values.
func DefaultCoreConfig() *CoreConfig {
	return &CoreConfig{
		MaxIterations: 3,

		AffirmativeTokens: []string{"yes", "y", "ok", "okay", "looks good", "lgtm", "done", "approved"},

		RoutingRules: []RoutingRule{
			{Keywords: []string{"invoice", "billing", "payment"}, Step: "invoice_review"},
			{Keywords: []string{"report", "draft", "summary", "write"}, Step: "report_drafting"},
			{Keywords: []string{"lookup", "find", "search", "record"}, Step: "data_lookup"},
		},
		DefaultStep: "general_assistant",

		ObserverBufferSize: 256,
		EventRetention:     1 * time.Hour,

		StartsPerMinute: 30,
		StartsPerHour:   300,

		SweeperEnabled:   false,
		SweepInterval:    1 * time.Minute,
		ApprovalTTL:      24 * time.Hour,
		ClarificationTTL: 24 * time.Hour,

		LogLevel: "INFO",
	}
}

// Validate checks configuration consistency.
func (c *CoreConfig) Validate() error {
	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be >= 1, got %d", c.MaxIterations)
	}
	if c.DefaultStep == "" {
		return fmt.Errorf("default_step is required")
	}
	if c.ObserverBufferSize < 1 {
		return fmt.Errorf("observer_buffer_size must be >= 1, got %d", c.ObserverBufferSize)
	}
	if c.EventRetention < 0 {
		return fmt.Errorf("event_retention must not be negative")
	}
	for i, rule := range c.RoutingRules {
		if rule.Step == "" {
			return fmt.Errorf("routing_rules[%d]: step is required", i)
		}
		if len(rule.Keywords) == 0 {
			return fmt.Errorf("routing_rules[%d]: at least one keyword is required", i)
		}
	}
	if c.SweeperEnabled {
		if c.SweepInterval <= 0 {
			return fmt.Errorf("sweep_interval must be positive when sweeper is enabled")
		}
		if c.ApprovalTTL <= 0 || c.ClarificationTTL <= 0 {
			return fmt.Errorf("checkpoint TTLs must be positive when sweeper is enabled")
		}
	}
	return nil
}

// =============================================================================
// Server Config
// =============================================================================

// StoreConfig selects and configures the state store backend.
type StoreConfig struct {
	// Backend is "memory" or "bolt".
	Backend string `json:"backend" yaml:"backend"`
	// Path is the bbolt database file (bolt backend only).
	Path string `json:"path" yaml:"path"`
}

// NATSConfig configures the optional NATS gateway.
type NATSConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	URL     string `json:"url" yaml:"url"`
}

// ServerConfig is the full daemon configuration: orchestration settings
// plus infrastructure wiring.
type ServerConfig struct {
	Core    CoreConfig  `json:"core" yaml:"core"`
	Store   StoreConfig `json:"store" yaml:"store"`
	NATS    NATSConfig  `json:"nats" yaml:"nats"`
	Metrics struct {
		Addr string `json:"addr" yaml:"addr"`
	} `json:"metrics" yaml:"metrics"`
	Tracing struct {
		Enabled  bool   `json:"enabled" yaml:"enabled"`
		Endpoint string `json:"endpoint" yaml:"endpoint"`
	} `json:"tracing" yaml:"tracing"`
}

// DefaultServerConfig returns a ServerConfig with default values.
func DefaultServerConfig() *ServerConfig {
	cfg := &ServerConfig{
		Core: *DefaultCoreConfig(),
		Store: StoreConfig{
			Backend: "bolt",
			Path:    "relay-core.db",
		},
		NATS: NATSConfig{
			Enabled: false,
			URL:     "nats://127.0.0.1:4222",
		},
	}
	cfg.Metrics.Addr = ":9090"
	cfg.Tracing.Enabled = false
	cfg.Tracing.Endpoint = "localhost:4317"
	return cfg
}

// Validate checks the full server configuration.
func (c *ServerConfig) Validate() error {
	if err := c.Core.Validate(); err != nil {
		return err
	}
	switch c.Store.Backend {
	case "memory":
	case "bolt":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the bolt backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats is enabled")
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing.endpoint is required when tracing is enabled")
	}
	return nil
}

// LoadFromFile loads a ServerConfig from a YAML file, layered over defaults.
func LoadFromFile(path string) (*ServerConfig, error) {
	cfg := DefaultServerConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}
