// Package config loads and validates the node's TOML configuration.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the top-level node configuration.
type Config struct {
	Node      NodeConfig      `toml:"node"`
	Network   NetworkConfig   `toml:"network"`
	Runtime   RuntimeConfig   `toml:"runtime"`
	Consensus ConsensusConfig `toml:"consensus"`
	Metrics   MetricsConfig   `toml:"metrics"`
}

// NodeConfig contains node-wide settings.
type NodeConfig struct {
	// DataDir is the root of the on-disk store.
	DataDir string `toml:"data_dir"`

	// LogLevel: trace, debug, info, warn, error.
	LogLevel string `toml:"log_level"`

	// GenesisPath points at the YAML genesis document. Empty means the
	// built-in development genesis.
	GenesisPath string `toml:"genesis_path"`
}

// NetworkConfig contains P2P settings.
type NetworkConfig struct {
	ListenPort      uint16   `toml:"listen_port"`
	MaxPeers        int      `toml:"max_peers"`
	BootstrapPeers  []string `toml:"bootstrap_peers"`
	EnableDiscovery bool     `toml:"enable_discovery"`
}

// RuntimeConfig contains execution settings.
type RuntimeConfig struct {
	// ChainID names the chain this node follows.
	ChainID string `toml:"chain_id"`

	// ProducerEnabled turns on the block production tick.
	ProducerEnabled bool `toml:"producer_enabled"`

	// ProducerKey is the hex-encoded 32-byte Ed25519 seed of the producer
	// key. Required when ProducerEnabled is set.
	ProducerKey string `toml:"producer_key"`

	// BlockInterval is the production tick period in milliseconds.
	BlockInterval int64 `toml:"block_interval"`
}

// ConsensusConfig contains the BFT timeout schedule, in milliseconds.
type ConsensusConfig struct {
	ProposeTimeout int64  `toml:"propose_timeout"`
	PrevoteTimeout int64  `toml:"prevote_timeout"`
	CommitTimeout  int64  `toml:"commit_timeout"`
	TimeoutDelta   int64  `toml:"timeout_delta"`
	MaxRounds      uint64 `toml:"max_rounds"`
}

// MetricsConfig contains the prometheus listener settings.
type MetricsConfig struct {
	Enabled    bool   `toml:"enabled"`
	ListenAddr string `toml:"listen_addr"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			DataDir:  "./data",
			LogLevel: "info",
		},
		Network: NetworkConfig{
			ListenPort:      30303,
			MaxPeers:        50,
			EnableDiscovery: true,
		},
		Runtime: RuntimeConfig{
			ChainID:       "lumen-mainnet",
			BlockInterval: 3000,
		},
		Consensus: ConsensusConfig{
			ProposeTimeout: 3000,
			PrevoteTimeout: 2000,
			CommitTimeout:  2000,
			TimeoutDelta:   500,
			MaxRounds:      10,
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:9090",
		},
	}
}

// Dev returns the in-code development configuration: single producing
// validator with a fixed key, local data directory, debug logging.
func Dev() *Config {
	cfg := Default()
	cfg.Node.DataDir = "./dev_data"
	cfg.Node.LogLevel = "debug"
	cfg.Network.MaxPeers = 10
	cfg.Runtime.ChainID = "lumen-devnet"
	cfg.Runtime.ProducerEnabled = true
	cfg.Runtime.ProducerKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	cfg.Runtime.BlockInterval = 3000
	cfg.Metrics.Enabled = true
	return cfg
}

// Load reads a TOML configuration file, filling unset keys with defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Node.DataDir == "" {
		return fmt.Errorf("node.data_dir is required")
	}
	switch c.Node.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid node.log_level: %s", c.Node.LogLevel)
	}
	if c.Runtime.ProducerEnabled && len(c.Runtime.ProducerKey) != 64 {
		return fmt.Errorf("runtime.producer_key must be a 32-byte hex seed when producing")
	}
	if c.Consensus.MaxRounds == 0 {
		return fmt.Errorf("consensus.max_rounds must be positive")
	}
	return nil
}

// ProposeTimeoutDuration returns the propose timeout as a duration.
func (c *ConsensusConfig) ProposeTimeoutDuration() time.Duration {
	return time.Duration(c.ProposeTimeout) * time.Millisecond
}

// PrevoteTimeoutDuration returns the prevote timeout as a duration.
func (c *ConsensusConfig) PrevoteTimeoutDuration() time.Duration {
	return time.Duration(c.PrevoteTimeout) * time.Millisecond
}

// CommitTimeoutDuration returns the commit timeout as a duration.
func (c *ConsensusConfig) CommitTimeoutDuration() time.Duration {
	return time.Duration(c.CommitTimeout) * time.Millisecond
}

// TimeoutDeltaDuration returns the per-round timeout increment.
func (c *ConsensusConfig) TimeoutDeltaDuration() time.Duration {
	return time.Duration(c.TimeoutDelta) * time.Millisecond
}

// BlockIntervalDuration returns the production tick period.
func (c *RuntimeConfig) BlockIntervalDuration() time.Duration {
	return time.Duration(c.BlockInterval) * time.Millisecond
}
