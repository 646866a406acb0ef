package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "node.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadFillsDefaultsOnMissingFields(t *testing.T) {
	path := writeConfig(t, `{"pubsub_addr": "127.0.0.1:8000"}`)

	require.NoError(t, Load(path))
	require.Equal(t, DefaultCongestion(), GlobalCfg.Congestion)
	require.Equal(t, DefaultPubsub(), GlobalCfg.Pubsub)
	require.Equal(t, "mainnet", GlobalCfg.Contracts)
}

func TestLoadPreservesExplicitOverrides(t *testing.T) {
	path := writeConfig(t, `{
		"pubsub_addr": "127.0.0.1:8000",
		"contracts": "kovan",
		"pubsub": {"max_sol_conn": 4, "protocol_id": 7}
	}`)

	require.NoError(t, Load(path))
	require.Equal(t, "kovan", GlobalCfg.Contracts)
	require.Equal(t, 4, GlobalCfg.Pubsub.MaxSolConn)
	require.Equal(t, uint32(7), GlobalCfg.Pubsub.ProtocolID)
	// fields left zero under a non-zero protocol id are NOT defaulted,
	// matching defaults()'s all-or-nothing Pubsub block behavior.
	require.Equal(t, 0, GlobalCfg.Pubsub.DedupCacheSize)
}

func TestLoadRejectsMissingPubsubAddr(t *testing.T) {
	path := writeConfig(t, `{"contracts": "mainnet"}`)
	err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsBadContracts(t *testing.T) {
	path := writeConfig(t, `{"pubsub_addr": "127.0.0.1:8000", "contracts": "ropsten"}`)
	err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.Error(t, err)
}

func TestReloadSwapsGlobalCfg(t *testing.T) {
	first := writeConfig(t, `{"pubsub_addr": "127.0.0.1:8000"}`)
	require.NoError(t, Load(first))
	require.Equal(t, "127.0.0.1:8000", GlobalCfg.PubsubAddr)

	second := writeConfig(t, `{"pubsub_addr": "127.0.0.1:9000"}`)
	require.NoError(t, Reload(second))
	require.Equal(t, "127.0.0.1:9000", GlobalCfg.PubsubAddr)
}
