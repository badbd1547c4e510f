package server

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds server configuration.
type Config struct {
	Addr              string        // TCP bind address (e.g. ":9650")
	DBPath            string        // SQLite database path
	MetricsAddr       string        // HTTP bind address for /metrics (empty = disabled)
	HeartbeatInterval time.Duration // server to client keepalive interval
	StaleAfter        time.Duration // heartbeat age after which a session is reported stale
	OutboxSize        int           // per-session outbound queue depth
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:              ":9650",
		DBPath:            "chat.db",
		MetricsAddr:       ":9652",
		HeartbeatInterval: 30 * time.Second,
		StaleAfter:        2 * time.Minute,
		OutboxSize:        64,
	}
}

// fileConfig is the on-disk YAML shape. Durations are strings in Go
// duration syntax ("30s", "2m").
type fileConfig struct {
	Addr              string  `yaml:"addr"`
	DBPath            string  `yaml:"db_path"`
	MetricsAddr       *string `yaml:"metrics_addr"` // pointer so "" can disable the endpoint
	HeartbeatInterval string  `yaml:"heartbeat_interval"`
	StaleAfter        string  `yaml:"stale_after"`
	OutboxSize        int     `yaml:"outbox_size"`
}

// LoadConfig reads a YAML config file over the defaults. Fields absent
// from the file keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path) //nolint:gosec // path from user-provided CLI flag
	if err != nil {
		return cfg, fmt.Errorf("server: read config: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("server: parse config: %w", err)
	}

	if fc.Addr != "" {
		cfg.Addr = fc.Addr
	}
	if fc.DBPath != "" {
		cfg.DBPath = fc.DBPath
	}
	if fc.MetricsAddr != nil {
		cfg.MetricsAddr = *fc.MetricsAddr
	}
	if fc.OutboxSize > 0 {
		cfg.OutboxSize = fc.OutboxSize
	}
	if fc.HeartbeatInterval != "" {
		d, err := time.ParseDuration(fc.HeartbeatInterval)
		if err != nil {
			return cfg, fmt.Errorf("server: parse heartbeat_interval: %w", err)
		}
		cfg.HeartbeatInterval = d
	}
	if fc.StaleAfter != "" {
		d, err := time.ParseDuration(fc.StaleAfter)
		if err != nil {
			return cfg, fmt.Errorf("server: parse stale_after: %w", err)
		}
		cfg.StaleAfter = d
	}
	return cfg, nil
}
