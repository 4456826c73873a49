package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Addr() != "localhost:8080" {
		t.Fatalf("Addr = %s", cfg.Addr())
	}
}

func TestValidateRejects(t *testing.T) {
	mutations := map[string]func(*Config){
		"empty host":        func(c *Config) { c.Host = "" },
		"port zero":         func(c *Config) { c.Port = 0 },
		"port too large":    func(c *Config) { c.Port = 70000 },
		"bad ws addr":       func(c *Config) { c.WSAddr = "no-port" },
		"zero interval":     func(c *Config) { c.StatusIntervalSec = 0 },
		"zero queue":        func(c *Config) { c.SendQueueLen = 0 },
		"tiny line limit":   func(c *Config) { c.MaxLineBytes = 16 },
		"zero shutdown":     func(c *Config) { c.ShutdownTimeoutSec = 0 },
		"zero write":        func(c *Config) { c.WriteTimeoutSec = 0 },
		"unknown log level": func(c *Config) { c.LogLevel = "verbose" },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("Validate accepted an invalid config")
			}
		})
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tcsync.json")
	if err := os.WriteFile(path, []byte(`{"host":"0.0.0.0","port":9000}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Host != "0.0.0.0" || cfg.Port != 9000 {
		t.Fatalf("loaded %+v", cfg)
	}
	// Unspecified fields keep their defaults.
	if cfg.SendQueueLen != Default().SendQueueLen || cfg.LogLevel != "info" {
		t.Fatalf("defaults not preserved: %+v", cfg)
	}
}

func TestLoadStripsBOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tcsync.json")
	body := append([]byte{0xEF, 0xBB, 0xBF}, []byte(`{"port":9001}`)...)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 9001 {
		t.Fatalf("port = %d", cfg.Port)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tcsync.json")
	if err := os.WriteFile(path, []byte(`{"port":-1}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted an invalid config")
	}
}

func TestEnsureCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "tcsync.json")

	cfg, created, err := Ensure(path)
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("Ensure did not report creation")
	}
	if cfg != Default() {
		t.Fatalf("created config %+v", cfg)
	}

	// Second call loads the existing file.
	if _, created, err = Ensure(path); err != nil || created {
		t.Fatalf("second Ensure = (created=%v, err=%v)", created, err)
	}
}
