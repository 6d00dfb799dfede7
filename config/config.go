package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	UDPListen         string        `yaml:"udp_listen"`
	RealtimeHost      string        `yaml:"realtime_host"`
	HTTPAddr          string        `yaml:"http_addr"`
	TCPListen         string        `yaml:"tcp_listen"`
	WSPath            string        `yaml:"ws_path"`
	BroadcastCapacity int           `yaml:"broadcast_capacity"`
	EgressCapacity    int           `yaml:"egress_capacity"`
	StrictDecode      bool          `yaml:"strict_decode"`
	MaxClients        int           `yaml:"max_clients"`
	WSWriteTimeout    time.Duration `yaml:"ws_write_timeout"`
	WSIdleTimeout     time.Duration `yaml:"ws_idle_timeout"`
	WSPingInterval    time.Duration `yaml:"ws_ping_interval"`
	SSEEnabled        bool          `yaml:"sse_enabled"`
	SSEKeepalive      time.Duration `yaml:"sse_keepalive"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	LogLevel          string        `yaml:"log_level"`
	LogJSON           bool          `yaml:"log_json"`
	MCPEnabled        bool          `yaml:"mcp_enabled"`
	MDNSEnabled       bool          `yaml:"mdns_enabled"`
}

func Default() Config {
	return Config{
		UDPListen:         "0.0.0.0:5000",
		RealtimeHost:      "127.0.0.1:5001",
		HTTPAddr:          "0.0.0.0:3000",
		WSPath:            "/ws",
		BroadcastCapacity: 100,
		EgressCapacity:    100,
		MaxClients:        64,
		WSWriteTimeout:    5 * time.Second,
		WSIdleTimeout:     60 * time.Second,
		WSPingInterval:    25 * time.Second,
		SSEEnabled:        true,
		SSEKeepalive:      15 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		LogLevel:          "info",
		LogJSON:           true,
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// TELEMUX_CONFIG if set, then environment variables.
func Load() (Config, error) {
	cfg := Default()
	if path := env("TELEMUX_CONFIG", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg = Config{
		UDPListen:         env("TELEMUX_UDP_LISTEN", cfg.UDPListen),
		RealtimeHost:      env("REALTIME_HOST", cfg.RealtimeHost),
		HTTPAddr:          env("TELEMUX_HTTP_ADDR", cfg.HTTPAddr),
		TCPListen:         env("TELEMUX_TCP_LISTEN", cfg.TCPListen),
		WSPath:            env("TELEMUX_WS_PATH", cfg.WSPath),
		BroadcastCapacity: envInt("TELEMUX_BROADCAST_CAPACITY", cfg.BroadcastCapacity),
		EgressCapacity:    envInt("TELEMUX_EGRESS_CAPACITY", cfg.EgressCapacity),
		StrictDecode:      envBool("TELEMUX_STRICT_DECODE", cfg.StrictDecode),
		MaxClients:        envInt("TELEMUX_MAX_CLIENTS", cfg.MaxClients),
		WSWriteTimeout:    envDuration("TELEMUX_WS_WRITE_TIMEOUT", cfg.WSWriteTimeout),
		WSIdleTimeout:     envDuration("TELEMUX_WS_IDLE_TIMEOUT", cfg.WSIdleTimeout),
		WSPingInterval:    envDuration("TELEMUX_WS_PING_INTERVAL", cfg.WSPingInterval),
		SSEEnabled:        envBool("TELEMUX_SSE_ENABLED", cfg.SSEEnabled),
		SSEKeepalive:      envDuration("TELEMUX_SSE_KEEPALIVE", cfg.SSEKeepalive),
		ShutdownTimeout:   envDuration("TELEMUX_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout),
		LogLevel:          strings.ToLower(env("TELEMUX_LOG_LEVEL", cfg.LogLevel)),
		LogJSON:           envBool("TELEMUX_LOG_JSON", cfg.LogJSON),
		MCPEnabled:        envBool("TELEMUX_MCP_ENABLED", cfg.MCPEnabled),
		MDNSEnabled:       envBool("TELEMUX_MDNS_ENABLED", cfg.MDNSEnabled),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.UDPListen); err != nil {
		return fmt.Errorf("TELEMUX_UDP_LISTEN %q: %w", c.UDPListen, err)
	}
	if _, _, err := net.SplitHostPort(c.RealtimeHost); err != nil {
		return fmt.Errorf("REALTIME_HOST %q: %w", c.RealtimeHost, err)
	}
	if _, _, err := net.SplitHostPort(c.HTTPAddr); err != nil {
		return fmt.Errorf("TELEMUX_HTTP_ADDR %q: %w", c.HTTPAddr, err)
	}
	if c.TCPListen != "" {
		if _, _, err := net.SplitHostPort(c.TCPListen); err != nil {
			return fmt.Errorf("TELEMUX_TCP_LISTEN %q: %w", c.TCPListen, err)
		}
	}
	if !strings.HasPrefix(c.WSPath, "/") {
		return fmt.Errorf("TELEMUX_WS_PATH must start with /, got %q", c.WSPath)
	}
	if c.BroadcastCapacity < 1 {
		return errors.New("TELEMUX_BROADCAST_CAPACITY must be >= 1")
	}
	if c.EgressCapacity < 1 {
		return errors.New("TELEMUX_EGRESS_CAPACITY must be >= 1")
	}
	if c.MaxClients < 1 {
		return errors.New("TELEMUX_MAX_CLIENTS must be >= 1")
	}
	if c.WSWriteTimeout <= 0 {
		return errors.New("TELEMUX_WS_WRITE_TIMEOUT must be > 0")
	}
	if c.WSIdleTimeout < 0 || c.WSPingInterval < 0 {
		return errors.New("TELEMUX_WS_IDLE_TIMEOUT and TELEMUX_WS_PING_INTERVAL must be >= 0")
	}
	if c.WSIdleTimeout > 0 && c.WSPingInterval >= c.WSIdleTimeout {
		return errors.New("TELEMUX_WS_PING_INTERVAL must be shorter than TELEMUX_WS_IDLE_TIMEOUT")
	}
	if c.SSEKeepalive < 0 {
		return errors.New("TELEMUX_SSE_KEEPALIVE must be >= 0")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("TELEMUX_SHUTDOWN_TIMEOUT must be > 0")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unsupported log level %q", c.LogLevel)
	}
	return nil
}

// HTTPPort is the numeric port of HTTPAddr, used for mDNS advertisement.
func (c Config) HTTPPort() int {
	_, port, err := net.SplitHostPort(c.HTTPAddr)
	if err != nil {
		return 0
	}
	p, _ := strconv.Atoi(port)
	return p
}

func env(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return fallback
	}
	switch v {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
