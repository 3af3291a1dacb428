// Package config loads hamsync's configuration surface (spec.md §6's
// Configuration table plus §5's bounded-queue sizes) from YAML,
// following the Load/default-fill shape the pack's config packages use.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"hamsync/internal/pool"
)

// Config mirrors spec.md §6's recognized options exactly.
type Config struct {
	Storage string   `yaml:"storage"` // adapter name: "memory" or "sqlite"
	SQLite  string   `yaml:"sqlite_path,omitempty"`

	Peers  []string `yaml:"peers"`
	Relays []string `yaml:"relays"`

	MaxPeers            int    `yaml:"max_peers"`
	MaxRelayConnections int    `yaml:"max_relay_connections"`
	MinRelayConnections int    `yaml:"min_relay_connections"`
	RelayLoadBalancing  string `yaml:"relay_load_balancing"`
	RelayDiscovery      bool   `yaml:"relay_discovery"`

	TimeoutMS int  `yaml:"timeout_ms"`
	Realtime  bool `yaml:"realtime"`

	// Bounded queue sizes, spec.md §5.
	InboundQueueSize    int `yaml:"inbound_queue_size"`
	OutboundQueueSize   int `yaml:"outbound_queue_size"`
	SubscriberQueueSize int `yaml:"subscriber_queue_size"`
}

// Defaults returns a Config with every spec.md §6/§5 default applied.
func Defaults() Config {
	return Config{
		Storage:             "memory",
		MaxPeers:            10,
		MaxRelayConnections: pool.DefaultMaxConnections,
		MinRelayConnections: pool.DefaultMinConnections,
		RelayLoadBalancing:  string(pool.HealthWeighted),
		RelayDiscovery:      true,
		TimeoutMS:           5000,
		Realtime:            true,
		InboundQueueSize:    1024,
		OutboundQueueSize:   1024,
		SubscriberQueueSize: 256,
	}
}

// Load reads path, unmarshals it over Defaults(), and returns the
// merged Config. A missing file is not an error — Defaults() alone is
// returned, following getployz-ployz/config.Load's "absent file is an
// empty config, not a failure" convention.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Strategy parses RelayLoadBalancing into a pool.Strategy, falling back
// to the spec default on an unrecognized value.
func (c Config) Strategy() pool.Strategy {
	switch pool.Strategy(c.RelayLoadBalancing) {
	case pool.RoundRobin, pool.LeastInFlight, pool.Random, pool.HealthWeighted:
		return pool.Strategy(c.RelayLoadBalancing)
	default:
		return pool.HealthWeighted
	}
}
