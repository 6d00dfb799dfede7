package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TELEMUX_CONFIG", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected defaults to validate, got %v", err)
	}
	if cfg != Default() {
		t.Errorf("Expected defaults, got %+v", cfg)
	}
	if cfg.HTTPPort() != 3000 {
		t.Errorf("Expected http port 3000, got %d", cfg.HTTPPort())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TELEMUX_UDP_LISTEN", "127.0.0.1:6000")
	t.Setenv("REALTIME_HOST", "10.0.0.5:6001")
	t.Setenv("TELEMUX_BROADCAST_CAPACITY", "16")
	t.Setenv("TELEMUX_STRICT_DECODE", "yes")
	t.Setenv("TELEMUX_WS_IDLE_TIMEOUT", "0")
	t.Setenv("TELEMUX_LOG_LEVEL", "DEBUG")
	t.Setenv("TELEMUX_MAX_CLIENTS", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.UDPListen != "127.0.0.1:6000" || cfg.RealtimeHost != "10.0.0.5:6001" {
		t.Errorf("Unexpected addresses %s %s", cfg.UDPListen, cfg.RealtimeHost)
	}
	if cfg.BroadcastCapacity != 16 {
		t.Errorf("Expected capacity 16, got %d", cfg.BroadcastCapacity)
	}
	if !cfg.StrictDecode {
		t.Error("Expected strict decode")
	}
	if cfg.WSIdleTimeout != 0 {
		t.Errorf("Expected idle timeout disabled, got %v", cfg.WSIdleTimeout)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected lower-cased level, got %s", cfg.LogLevel)
	}
	if cfg.MaxClients != 64 {
		t.Errorf("Expected invalid int to fall back to 64, got %d", cfg.MaxClients)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemux.yaml")
	data := strings.Join([]string{
		"udp_listen: 127.0.0.1:7000",
		"egress_capacity: 8",
		"ws_ping_interval: 5s",
		"mcp_enabled: true",
		"tcp_listen: 127.0.0.1:7001",
		"sse_enabled: false",
	}, "\n")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	t.Setenv("TELEMUX_CONFIG", path)
	t.Setenv("TELEMUX_EGRESS_CAPACITY", "32")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.UDPListen != "127.0.0.1:7000" {
		t.Errorf("Expected file value for udp_listen, got %s", cfg.UDPListen)
	}
	if cfg.EgressCapacity != 32 {
		t.Errorf("Expected env to override file, got %d", cfg.EgressCapacity)
	}
	if cfg.WSPingInterval != 5*time.Second {
		t.Errorf("Expected ping interval 5s, got %v", cfg.WSPingInterval)
	}
	if !cfg.MCPEnabled {
		t.Error("Expected mcp enabled from file")
	}
	if cfg.TCPListen != "127.0.0.1:7001" || cfg.SSEEnabled {
		t.Errorf("Expected tcp gateway on and sse off, got %q %v", cfg.TCPListen, cfg.SSEEnabled)
	}
	if cfg.WSPath != "/ws" {
		t.Errorf("Expected default ws path to survive, got %s", cfg.WSPath)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("TELEMUX_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Error("Expected missing config file to fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad udp listen", func(c *Config) { c.UDPListen = "5000" }},
		{"bad realtime host", func(c *Config) { c.RealtimeHost = "" }},
		{"bad http addr", func(c *Config) { c.HTTPAddr = "nope" }},
		{"ws path", func(c *Config) { c.WSPath = "ws" }},
		{"broadcast capacity", func(c *Config) { c.BroadcastCapacity = 0 }},
		{"egress capacity", func(c *Config) { c.EgressCapacity = -1 }},
		{"max clients", func(c *Config) { c.MaxClients = 0 }},
		{"write timeout", func(c *Config) { c.WSWriteTimeout = 0 }},
		{"ping not shorter than idle", func(c *Config) { c.WSPingInterval = c.WSIdleTimeout }},
		{"bad tcp listen", func(c *Config) { c.TCPListen = "7001" }},
		{"sse keepalive", func(c *Config) { c.SSEKeepalive = -time.Second }},
		{"shutdown timeout", func(c *Config) { c.ShutdownTimeout = 0 }},
		{"log level", func(c *Config) { c.LogLevel = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Expected validation error for %s", tt.name)
			}
		})
	}
}
