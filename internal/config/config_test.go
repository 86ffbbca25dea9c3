package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	require.Equal(t, "./data", cfg.Node.DataDir)
	require.Equal(t, "info", cfg.Node.LogLevel)
	require.Equal(t, uint16(30303), cfg.Network.ListenPort)
	require.Equal(t, 50, cfg.Network.MaxPeers)
	require.True(t, cfg.Network.EnableDiscovery)
	require.False(t, cfg.Runtime.ProducerEnabled)
	require.Equal(t, 3*time.Second, cfg.Consensus.ProposeTimeoutDuration())
	require.Equal(t, 2*time.Second, cfg.Consensus.PrevoteTimeoutDuration())
	require.Equal(t, 2*time.Second, cfg.Consensus.CommitTimeoutDuration())
	require.Equal(t, 500*time.Millisecond, cfg.Consensus.TimeoutDeltaDuration())
	require.Equal(t, uint64(10), cfg.Consensus.MaxRounds)
	require.NoError(t, cfg.Validate())
}

func TestDevConfig(t *testing.T) {
	cfg := Dev()

	require.Equal(t, "./dev_data", cfg.Node.DataDir)
	require.Equal(t, "debug", cfg.Node.LogLevel)
	require.True(t, cfg.Runtime.ProducerEnabled)
	require.Len(t, cfg.Runtime.ProducerKey, 64)
	require.NoError(t, cfg.Validate())
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.toml")
	content := `
[node]
data_dir = "/var/lib/lumen"
log_level = "warn"

[network]
listen_port = 40404
max_peers = 12
bootstrap_peers = ["10.0.0.1:30303", "10.0.0.2:30303"]

[runtime]
chain_id = "lumen-testnet"
producer_enabled = false

[consensus]
propose_timeout = 5000
timeout_delta = 250
max_rounds = 20
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "/var/lib/lumen", cfg.Node.DataDir)
	require.Equal(t, "warn", cfg.Node.LogLevel)
	require.Equal(t, uint16(40404), cfg.Network.ListenPort)
	require.Equal(t, 12, cfg.Network.MaxPeers)
	require.Len(t, cfg.Network.BootstrapPeers, 2)
	require.Equal(t, "lumen-testnet", cfg.Runtime.ChainID)
	require.Equal(t, 5*time.Second, cfg.Consensus.ProposeTimeoutDuration())
	require.Equal(t, 250*time.Millisecond, cfg.Consensus.TimeoutDeltaDuration())
	require.Equal(t, uint64(20), cfg.Consensus.MaxRounds)

	// Unset keys keep their defaults.
	require.Equal(t, 2*time.Second, cfg.Consensus.PrevoteTimeoutDuration())
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestValidateCatchesBadValues(t *testing.T) {
	cfg := Default()
	cfg.Node.LogLevel = "verbose"
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Node.DataDir = ""
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Runtime.ProducerEnabled = true
	cfg.Runtime.ProducerKey = "short"
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Consensus.MaxRounds = 0
	require.Error(t, cfg.Validate())
}
