package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	DefaultSnapshotDir  = "data/snapshots"
	DefaultHistoryLimit = 288
	DefaultBindAddress  = "127.0.0.1:7000"
)

type Config struct {
	SnapshotDir           string  `yaml:"snapshot_dir" env:"SNAPSHOT_DIR"`
	HistoryLimit          int     `yaml:"history_limit" env:"HISTORY_LIMIT"`
	CollectionIntervalSec float64 `yaml:"collection_interval_sec" env:"COLLECTION_INTERVAL_SECS"`
	API                   API     `yaml:"api"`
	Spikes                Spikes  `yaml:"spikes"`
}

// API configures the HTTP server. An empty Key disables authentication.
type API struct {
	Key         string `yaml:"key" env:"SYSTEM_API_KEY"`
	BindAddress string `yaml:"bind_address" env:"API_BIND_ADDRESS"`
}

type Spikes struct {
	CPU         Threshold        `yaml:"cpu"`
	Memory      Threshold        `yaml:"memory"`
	Network     NetworkThreshold `yaml:"network"`
	DebounceSec int              `yaml:"debounce_sec"`
}

// NetworkThreshold applies to the summed rates of all non-loopback
// interfaces, in kilobits per second.
type NetworkThreshold struct {
	Enabled           bool    `yaml:"enabled"`
	RxKbpsThreshold   float64 `yaml:"rx_kbps_threshold"`
	TxKbpsThreshold   float64 `yaml:"tx_kbps_threshold"`
	RelativeThreshold float64 `yaml:"relative_threshold"`
}

type Threshold struct {
	Enabled           bool    `yaml:"enabled"`
	AbsoluteThreshold float64 `yaml:"absolute_threshold"`
	RelativeThreshold float64 `yaml:"relative_threshold"`
}

// LoadConfig reads the YAML file at path, when given, then applies
// environment overrides and defaults. An empty path yields the defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.SnapshotDir == "" {
		c.SnapshotDir = DefaultSnapshotDir
	}
	if c.HistoryLimit == 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	if c.CollectionIntervalSec < 1 {
		c.CollectionIntervalSec = 1
	}
	if c.API.BindAddress == "" {
		c.API.BindAddress = DefaultBindAddress
	}
	if c.Spikes.DebounceSec <= 0 {
		c.Spikes.DebounceSec = 60
	}
}

func (c *Config) validate() error {
	if c.HistoryLimit < 0 {
		return fmt.Errorf("history_limit must be positive")
	}
	if c.Spikes.CPU.Enabled && c.Spikes.CPU.AbsoluteThreshold <= 0 && c.Spikes.CPU.RelativeThreshold <= 0 {
		return fmt.Errorf("spikes.cpu needs an absolute or relative threshold")
	}
	if c.Spikes.Memory.Enabled && c.Spikes.Memory.AbsoluteThreshold <= 0 && c.Spikes.Memory.RelativeThreshold <= 0 {
		return fmt.Errorf("spikes.memory needs an absolute or relative threshold")
	}
	network := c.Spikes.Network
	if network.Enabled && network.RxKbpsThreshold <= 0 && network.TxKbpsThreshold <= 0 && network.RelativeThreshold <= 0 {
		return fmt.Errorf("spikes.network needs an rx, tx or relative threshold")
	}
	return nil
}

func (c *Config) CollectionInterval() time.Duration {
	return time.Duration(c.CollectionIntervalSec * float64(time.Second))
}

func (c *Config) DebounceWindow() time.Duration {
	return time.Duration(c.Spikes.DebounceSec) * time.Second
}
