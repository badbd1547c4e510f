package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("addr: \":7000\"\nheartbeat_interval: 10s\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Addr != ":7000" {
		t.Errorf("Addr = %q, want :7000", cfg.Addr)
	}
	if cfg.HeartbeatInterval != 10*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 10s", cfg.HeartbeatInterval)
	}
	// Unset fields keep their defaults.
	if cfg.DBPath != DefaultConfig().DBPath {
		t.Errorf("DBPath = %q, want default %q", cfg.DBPath, DefaultConfig().DBPath)
	}
	if cfg.OutboxSize != DefaultConfig().OutboxSize {
		t.Errorf("OutboxSize = %d, want default %d", cfg.OutboxSize, DefaultConfig().OutboxSize)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("LoadConfig of a missing file succeeded")
	}
}

func TestLoadConfigBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("addr: [unterminated"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig of invalid YAML succeeded")
	}
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.TotalConnections.Add(3)
	m.ActiveConnections.Add(2)
	m.MessagesRouted.Add(5)

	s := m.Snapshot()
	if s.TotalConnections != 3 || s.ActiveConnections != 2 || s.MessagesRouted != 5 {
		t.Errorf("snapshot = %+v", s)
	}
	if m.JSON() == "{}" {
		t.Error("JSON serialization failed")
	}
}
