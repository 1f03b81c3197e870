package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_DefaultConfig(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "debug"

device:
  name: "gpib0,5"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected normalized level 'DEBUG', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Device.Name != "gpib0,5" {
		t.Errorf("Expected device name 'gpib0,5', got %q", cfg.Device.Name)
	}
	if cfg.Device.IOTimeout != 2*time.Second {
		t.Errorf("Expected default io_timeout 2s, got %v", cfg.Device.IOTimeout)
	}
	if cfg.Portmap.Port != 111 {
		t.Errorf("Expected default portmap port 111, got %d", cfg.Portmap.Port)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// A path inside a temp dir keeps the user's ~/.config/vxi11 out of the test
	nonExistentPath := filepath.Join(t.TempDir(), "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error with missing config file, got: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Capture.Type != "filesystem" {
		t.Errorf("Expected default capture type 'filesystem', got %q", cfg.Capture.Type)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid.yaml", "logging:\n  level: [unclosed\n")

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error for invalid YAML")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
capture:
  type: "postgres"
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected validation error for unknown capture type")
	}
}

func TestLoad_Durations(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
device:
  io_timeout: 10s
  lock_timeout: 500ms
  socket_timeout: 1m
  term_char: "\n"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Device.IOTimeout != 10*time.Second {
		t.Errorf("Expected io_timeout 10s, got %v", cfg.Device.IOTimeout)
	}
	if cfg.Device.LockTimeout != 500*time.Millisecond {
		t.Errorf("Expected lock_timeout 500ms, got %v", cfg.Device.LockTimeout)
	}
	if cfg.Device.SocketTimeout != time.Minute {
		t.Errorf("Expected socket_timeout 1m, got %v", cfg.Device.SocketTimeout)
	}
	if cfg.Device.TermChar != "\n" {
		t.Errorf("Expected newline term_char, got %q", cfg.Device.TermChar)
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "config.toml", `
[logging]
level = "WARN"
format = "json"

[device]
max_recv_size = 4096

[capture]
type = "memory"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load TOML config: %v", err)
	}

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected level 'WARN', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected format 'json', got %q", cfg.Logging.Format)
	}
	if cfg.Device.MaxRecvSize != 4096 {
		t.Errorf("Expected max_recv_size 4096, got %d", cfg.Device.MaxRecvSize)
	}
	if cfg.Capture.Type != "memory" {
		t.Errorf("Expected capture type 'memory', got %q", cfg.Capture.Type)
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("VXI11_LOGGING_LEVEL", "ERROR")
	t.Setenv("VXI11_DEVICE_IO_TIMEOUT", "7s")

	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "INFO"

device:
  io_timeout: 2s
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
	if cfg.Device.IOTimeout != 7*time.Second {
		t.Errorf("Expected io_timeout 7s from env var, got %v", cfg.Device.IOTimeout)
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	path := GetDefaultConfigPath()

	if !filepath.IsAbs(path) {
		t.Errorf("Expected absolute path, got %q", path)
	}
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("Expected filename 'config.yaml', got %q", filepath.Base(path))
	}
}

func TestGetConfigDir(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	if dir := GetConfigDir(); dir != filepath.Join(xdg, "vxi11") {
		t.Errorf("Expected %q, got %q", filepath.Join(xdg, "vxi11"), dir)
	}
}

func TestConfigExists(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if ConfigExists() {
		t.Fatal("Expected no config in a fresh config dir")
	}

	if _, err := InitConfig(false); err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}

	if !ConfigExists() {
		t.Error("Expected config to exist after InitConfig")
	}
}
