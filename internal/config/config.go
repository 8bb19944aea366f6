// Package config loads the YAML configuration consumed by the core:
// the broker URL, the authenticator hook to install, the
// per-plugin queue bindings, worker-pool sizing, and the pending-store
// directory.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Debug bool `yaml:"debug"`

	Messaging MessagingConfig `yaml:"messaging"`
	Pending   PendingConfig   `yaml:"pending"`
	Tracker   TrackerConfig   `yaml:"tracker"`
	Plugins   []PluginConfig  `yaml:"plugins"`
}

// TrackerConfig configures the cancellation tracker's optional durable
// audit mirror. An empty AuditDirectory disables it; the in-memory
// tracker is always the source of truth regardless.
type TrackerConfig struct {
	AuditDirectory string `yaml:"audit_directory"`
}

type MessagingConfig struct {
	URL           string `yaml:"url"`
	Authenticator string `yaml:"authenticator"`
}

type PendingConfig struct {
	Directory string `yaml:"directory"`
}

type PluginConfig struct {
	Name        string `yaml:"name"`
	Queue       string `yaml:"queue"`
	Exchange    string `yaml:"exchange"`
	ExchangeKind string `yaml:"exchange_kind"`
	RoutingKey  string `yaml:"routing_key"`
	Capacity    int    `yaml:"capacity"`
	Backlog     int    `yaml:"backlog"`
}

func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Pending.Directory == "" {
		cfg.Pending.Directory = "/var/run/gofer/pending"
	}
	for i := range cfg.Plugins {
		p := &cfg.Plugins[i]
		if p.ExchangeKind == "" {
			p.ExchangeKind = "direct"
		}
		if p.Capacity <= 0 {
			p.Capacity = 10
		}
		if p.Backlog <= 0 {
			p.Backlog = 100
		}
	}
}

func validate(cfg *Config) error {
	if cfg.Messaging.URL == "" {
		return fmt.Errorf("messaging.url is required")
	}
	seen := make(map[string]bool)
	for _, p := range cfg.Plugins {
		if p.Name == "" {
			return fmt.Errorf("plugin entry missing name")
		}
		if p.Queue == "" {
			return fmt.Errorf("plugin %s: queue is required", p.Name)
		}
		if seen[p.Queue] {
			return fmt.Errorf("plugin %s: queue %s is already bound to another plugin", p.Name, p.Queue)
		}
		seen[p.Queue] = true
	}
	return nil
}
