// Package config loads the audio server's YAML configuration: endpoint
// defaults, per-stream-type policy, standby timeout, and retry budgets
// (SPEC_FULL.md §B.3). The teacher hand-parses a line-oriented
// "direwolf.conf" grammar in src/config.go; we use the declarative
// gopkg.in/yaml.v3 it already depends on instead of inventing a second
// config grammar.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Endpoint describes one hardware-backed endpoint to open at startup.
type Endpoint struct {
	Name       string   `yaml:"name"`
	Kind       string   `yaml:"kind"` // "output" or "input"; cmd/audioserver logs and skips any other kind
	Devices    []string `yaml:"devices"`
	SampleRate int      `yaml:"sample_rate"`
	Channels   int      `yaml:"channels"`
	Format     int      `yaml:"format"`
	LatencyMS  int      `yaml:"latency_ms"`
}

// Config is the top-level server configuration (spec §4.9/§6.4).
type Config struct {
	// RPCSocket is the unix-domain-socket path the RPC listener binds
	// (internal/rpc, SPEC_FULL.md §D.1).
	RPCSocket string `yaml:"rpc_socket"`

	// DiscoveryName, if non-empty, enables DNS-SD announcement under
	// that service instance name (internal/discovery).
	DiscoveryName string `yaml:"discovery_name"`

	// AuditDir is the directory for daily-rotated audit CSV files
	// (internal/audit); empty disables the audit trail.
	AuditDir string `yaml:"audit_dir"`

	// StandbyTimeoutMS is spec §4.5's "active set has been empty past
	// the standby timeout (~3s)" value, in milliseconds.
	StandbyTimeoutMS int `yaml:"standby_timeout_ms"`

	// StartupRetries/SteadyRetries are spec §4.2's retry budgets
	// (kMaxTrackStartupRetries/kMaxTrackRetries).
	StartupRetries int `yaml:"startup_retries"`
	SteadyRetries  int `yaml:"steady_retries"`

	// SilentMode is spec §4.5's "silent mode" system property. When set,
	// cmd/audioserver applies master mute once at startup to the mixer
	// endpoints already opened from Endpoints; endpoints opened later are
	// not muted, and the mute is not tied to a wake from standby.
	SilentMode bool `yaml:"silent_mode"`

	Endpoints []Endpoint `yaml:"endpoints"`
}

// StandbyTimeout returns StandbyTimeoutMS as a time.Duration, defaulting
// to spec §4.5's canonical 3s when unset.
func (c *Config) StandbyTimeout() time.Duration {
	if c.StandbyTimeoutMS <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.StandbyTimeoutMS) * time.Millisecond
}

// Default returns a Config with spec-canonical defaults, used when no
// file is given (matching the teacher's config.go fallback-to-builtin-
// defaults behaviour when direwolf.conf is absent).
func Default() *Config {
	return &Config{
		RPCSocket:        "/tmp/audioserver.sock",
		StandbyTimeoutMS: 3000,
		StartupRetries:   50,
		SteadyRetries:    3,
	}
}

// Load reads and parses a YAML config file at path, starting from
// Default() so unset fields keep their canonical values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}

	return cfg, nil
}
