package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Defaults applied by ApplyDefaults when the corresponding field is unset.
const (
	DefaultAddr          = "127.0.0.1:9590"
	DefaultServiceURL    = "https://localhost:47990"
	DefaultProbeTimeout  = 2 * time.Second
	DefaultPollInterval  = 5 * time.Second
	DefaultSettleDelay   = 8 * time.Second
	DefaultDebounceCount = 1
	DefaultBackupRetain  = 5
)

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and are replaced by ApplyDefaults.
type Config struct {
	// Local HTTP API listen address consumed by the GUI front-end.
	Addr string `json:"addr" yaml:"addr" toml:"addr"`
	// Base URL of the service's local control endpoint.
	ServiceURL string `json:"service_url" yaml:"service_url" toml:"service_url"`
	// Path to the service's configuration document.
	ServiceConfigPath string `json:"service_config_path" yaml:"service_config_path" toml:"service_config_path"`
	// Directory that receives timestamped config backups.
	BackupDir string `json:"backup_dir" yaml:"backup_dir" toml:"backup_dir"`
	// How many backups to retain before pruning the oldest.
	BackupRetain int `json:"backup_retain" yaml:"backup_retain" toml:"backup_retain"`
	// Path to the encrypted credential store file.
	VaultPath string `json:"vault_path" yaml:"vault_path" toml:"vault_path"`
	// Path to the machine key file used to encrypt the vault.
	KeyPath string `json:"key_path" yaml:"key_path" toml:"key_path"`
	// Candidate paths for the virtual display driver's settings file.
	DriverSettingsPaths []string `json:"driver_settings_paths" yaml:"driver_settings_paths" toml:"driver_settings_paths"`
	// Per-probe timeout in milliseconds.
	ProbeTimeoutMS int `json:"probe_timeout_ms" yaml:"probe_timeout_ms" toml:"probe_timeout_ms"`
	// Poll interval in milliseconds.
	PollIntervalMS int `json:"poll_interval_ms" yaml:"poll_interval_ms" toml:"poll_interval_ms"`
	// Consecutive identical probes required before a change is published.
	DebounceCount int `json:"debounce_count" yaml:"debounce_count" toml:"debounce_count"`
	// Settle delay after driver changes, in milliseconds.
	SettleDelayMS int `json:"settle_delay_ms" yaml:"settle_delay_ms" toml:"settle_delay_ms"`
	// Log level: debug|info|warn|error.
	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields with package defaults.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.ServiceURL == "" {
		c.ServiceURL = DefaultServiceURL
	}
	if c.BackupRetain <= 0 {
		c.BackupRetain = DefaultBackupRetain
	}
	if c.ProbeTimeoutMS <= 0 {
		c.ProbeTimeoutMS = int(DefaultProbeTimeout / time.Millisecond)
	}
	if c.PollIntervalMS <= 0 {
		c.PollIntervalMS = int(DefaultPollInterval / time.Millisecond)
	}
	if c.DebounceCount <= 0 {
		c.DebounceCount = DefaultDebounceCount
	}
	if c.SettleDelayMS <= 0 {
		c.SettleDelayMS = int(DefaultSettleDelay / time.Millisecond)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate rejects configs that cannot possibly work.
func (c Config) Validate() error {
	if c.ServiceConfigPath == "" {
		return fmt.Errorf("service_config_path is required")
	}
	if c.VaultPath == "" {
		return fmt.Errorf("vault_path is required")
	}
	if c.KeyPath == "" {
		return fmt.Errorf("key_path is required")
	}
	if c.PollIntervalMS < c.ProbeTimeoutMS {
		return fmt.Errorf("poll_interval_ms (%d) must be >= probe_timeout_ms (%d)", c.PollIntervalMS, c.ProbeTimeoutMS)
	}
	return nil
}

// ProbeTimeout returns the probe timeout as a duration.
func (c Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutMS) * time.Millisecond
}

// PollInterval returns the poll interval as a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// SettleDelay returns the post-driver-change settle delay as a duration.
func (c Config) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMS) * time.Millisecond
}
