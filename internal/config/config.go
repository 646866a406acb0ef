// Package config loads the node's JSON configuration and CLI flag
// overrides, following moto/config's shape: a package-level struct, a
// verify() validation pass, and a Reload(path) hot-reload entrypoint.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// LogConfig mirrors moto's "log" config block.
type LogConfig struct {
	Level string `json:"level"`
	Path  string `json:"path"`
}

// CongestionConfig exposes the NewReno/RTT constants of spec §4.1.3 as
// overridable knobs, defaulting to the spec's own numbers.
type CongestionConfig struct {
	InitialCwndBytes int `json:"initial_cwnd_bytes"`
	MSSBytes         int `json:"mss_bytes"`
	MinRTOMillis     int `json:"min_rto_millis"`
	MaxRTOMillis     int `json:"max_rto_millis"`
}

// DefaultCongestion returns the constants named in spec §4.1.3/§4.1.6.
func DefaultCongestion() CongestionConfig {
	return CongestionConfig{
		InitialCwndBytes: 15000,
		MSSBytes:         1200,
		MinRTOMillis:     1000,
		MaxRTOMillis:     60000,
	}
}

// PubsubConfig exposes spec §4.2's tunables.
type PubsubConfig struct {
	MaxSolConn          int   `json:"max_sol_conn"`
	DedupCacheSize      int   `json:"dedup_cache_size"`
	DedupExpirySeconds  int   `json:"dedup_expiry_seconds"`
	HeartbeatSeconds    int   `json:"heartbeat_seconds"`
	StaleAfterSeconds   int   `json:"stale_after_seconds"`
	OutOfOrderHoldCap   int   `json:"out_of_order_hold_cap"`
	ProtocolID          uint32 `json:"protocol_id"`
}

// DefaultPubsub returns the constants named in spec §4.2/§5.
func DefaultPubsub() PubsubConfig {
	return PubsubConfig{
		MaxSolConn:         8,
		DedupCacheSize:     100000,
		DedupExpirySeconds: 60,
		HeartbeatSeconds:   10,
		StaleAfterSeconds:  60,
		OutOfOrderHoldCap:  1024,
		ProtocolID:         0x10000000,
	}
}

// Config is the node's full configuration (spec §6 CLI contract plus
// JSON node config).
type Config struct {
	DiscoveryAddr     string `json:"discovery_addr"`
	PubsubAddr        string `json:"pubsub_addr"`
	BeaconAddr        string `json:"beacon_addr"`
	KeystorePath      string `json:"keystore_path"`
	KeystorePassPath  string `json:"keystore_pass_path"`
	Contracts         string `json:"contracts"` // "mainnet" | "kovan"
	MetricsAddr       string `json:"metrics_addr"`

	Log       LogConfig        `json:"log"`
	Congestion CongestionConfig `json:"congestion"`
	Pubsub    PubsubConfig     `json:"pubsub"`
}

// GlobalCfg is the process-wide effective config, set by Load/Reload.
var GlobalCfg *Config

// defaults fills in spec defaults block by block, mirroring moto's
// verify()-does-defaulting pattern (e.g. setting.json's Timeout==0 -> 500):
// the congestion block is replaced only when all of its fields are zero,
// and zero pubsub fields are filled only when pubsub.protocol_id is zero
// (a non-zero protocol_id leaves the rest of the pubsub block as given).
func (c *Config) defaults() {
	if c.Congestion == (CongestionConfig{}) {
		c.Congestion = DefaultCongestion()
	}
	if c.Pubsub.ProtocolID == 0 {
		d := DefaultPubsub()
		if c.Pubsub.MaxSolConn == 0 {
			c.Pubsub.MaxSolConn = d.MaxSolConn
		}
		if c.Pubsub.DedupCacheSize == 0 {
			c.Pubsub.DedupCacheSize = d.DedupCacheSize
		}
		if c.Pubsub.DedupExpirySeconds == 0 {
			c.Pubsub.DedupExpirySeconds = d.DedupExpirySeconds
		}
		if c.Pubsub.HeartbeatSeconds == 0 {
			c.Pubsub.HeartbeatSeconds = d.HeartbeatSeconds
		}
		if c.Pubsub.StaleAfterSeconds == 0 {
			c.Pubsub.StaleAfterSeconds = d.StaleAfterSeconds
		}
		if c.Pubsub.OutOfOrderHoldCap == 0 {
			c.Pubsub.OutOfOrderHoldCap = d.OutOfOrderHoldCap
		}
		c.Pubsub.ProtocolID = d.ProtocolID
	}
	if c.Contracts == "" {
		c.Contracts = "mainnet"
	}
}

// verify validates a loaded config, matching moto's per-rule verify().
func (c *Config) verify() error {
	if c.PubsubAddr == "" {
		return fmt.Errorf("config: empty pubsub_addr")
	}
	if c.Contracts != "mainnet" && c.Contracts != "kovan" {
		return fmt.Errorf("config: invalid contracts %q, want mainnet|kovan", c.Contracts)
	}
	return nil
}

// Load reads and validates the config at path, setting GlobalCfg.
func Load(path string) error {
	cfg, err := loadFile(path)
	if err != nil {
		return err
	}
	GlobalCfg = cfg
	return nil
}

// Reload re-reads path and replaces GlobalCfg, matching
// moto/config.Reload's hot-reload contract. The replacement is a plain
// pointer assignment with no synchronization against concurrent readers.
func Reload(path string) error {
	return Load(path)
}

func loadFile(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.defaults()
	if err := cfg.verify(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
