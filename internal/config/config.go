// Package config holds the resolved server configuration. The launcher owns
// flag and environment parsing and overlays them onto a loaded file; the
// server core only ever sees the resulting Config.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	// Host and Port for the TCP listener.
	Host string `json:"host"`
	Port int    `json:"port"`

	// WSAddr is an optional listen address (e.g. "127.0.0.1:8081") for the
	// WebSocket bridge. Empty disables it.
	WSAddr string `json:"ws_addr"`

	// Periodic status logging.
	StatusReporting   bool `json:"status_reporting"`
	StatusIntervalSec int  `json:"status_interval_seconds"`

	// Per-client outbound queue length. A member whose queue fills is
	// dropped from its session and disconnected.
	SendQueueLen int `json:"send_queue_len"`

	// Maximum accepted request line, in bytes.
	MaxLineBytes int `json:"max_line_bytes"`

	// Grace periods.
	ShutdownTimeoutSec int `json:"shutdown_timeout_seconds"`
	WriteTimeoutSec    int `json:"write_timeout_seconds"`

	// Log level for all subsystems: debug, info, warn, error.
	LogLevel string `json:"log_level"`
}

func Default() Config {
	return Config{
		Host:               "localhost",
		Port:               8080,
		WSAddr:             "",
		StatusReporting:    true,
		StatusIntervalSec:  30,
		SendQueueLen:       256,
		MaxLineBytes:       64 * 1024,
		ShutdownTimeoutSec: 5,
		WriteTimeoutSec:    10,
		LogLevel:           "info",
	}
}

func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New("host is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return errors.New("port must be 1..65535")
	}
	if c.WSAddr != "" {
		if _, _, err := net.SplitHostPort(c.WSAddr); err != nil {
			return fmt.Errorf("ws_addr: %v", err)
		}
	}
	if c.StatusIntervalSec <= 0 {
		return errors.New("status_interval_seconds must be > 0")
	}
	if c.SendQueueLen <= 0 {
		return errors.New("send_queue_len must be > 0")
	}
	if c.MaxLineBytes < 1024 {
		return errors.New("max_line_bytes must be >= 1024")
	}
	if c.ShutdownTimeoutSec <= 0 {
		return errors.New("shutdown_timeout_seconds must be > 0")
	}
	if c.WriteTimeoutSec <= 0 {
		return errors.New("write_timeout_seconds must be > 0")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("log_level must be one of debug, info, warn, error")
	}
	return nil
}

// Addr is the TCP listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, fmt.Sprint(c.Port))
}

func (c *Config) StatusInterval() time.Duration {
	return time.Duration(c.StatusIntervalSec) * time.Second
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSec) * time.Second
}

func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSec) * time.Second
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	// Strip UTF-8 BOM if present (common when editing JSON on Windows).
	b = stripBOM(b)

	// Start from defaults so missing JSON fields remain initialized.
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// stripBOM removes a UTF-8 byte order mark if present.
func stripBOM(b []byte) []byte {
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		return b[3:]
	}
	return b
}

func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// Ensure loads config if it exists; otherwise creates a default config file.
// Returns (cfg, createdNew, err).
func Ensure(path string) (Config, bool, error) {
	if _, err := os.Stat(path); err == nil {
		cfg, err := Load(path)
		return cfg, false, err
	} else if !os.IsNotExist(err) {
		return Config{}, false, err
	}

	cfg := Default()
	if err := Save(path, cfg); err != nil {
		return Config{}, false, fmt.Errorf("create default config: %w", err)
	}
	return cfg, true, nil
}
