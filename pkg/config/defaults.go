package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/marmos91/vxi11/internal/protocol/portmap"
	"github.com/marmos91/vxi11/pkg/vxi11"
)

// DefaultMetricsPort is the HTTP port of the /metrics endpoint.
const DefaultMetricsPort = 9090

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Store-specific options are filled for every store type, so a generated
//     config file documents all of them
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyDeviceDefaults(&cfg.Device)
	applyPortmapDefaults(&cfg.Portmap)
	applyCaptureDefaults(&cfg.Capture)
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyDeviceDefaults sets device link defaults.
//
// ClientID stays zero: the device derives a fresh id for every link.
func applyDeviceDefaults(cfg *DeviceConfig) {
	if cfg.Name == "" {
		cfg.Name = vxi11.DefaultDeviceName
	}
	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = vxi11.DefaultLockTimeout
	}
	if cfg.IOTimeout == 0 {
		cfg.IOTimeout = vxi11.DefaultIOTimeout
	}
	if cfg.MaxRecvSize == 0 {
		cfg.MaxRecvSize = vxi11.DefaultMaxRecvSize
	}
	if cfg.MaxResponseSize == 0 {
		cfg.MaxResponseSize = vxi11.DefaultMaxResponseSize
	}
	if cfg.CommandRate > 0 && cfg.CommandBurst == 0 {
		cfg.CommandBurst = 1
	}
}

func applyPortmapDefaults(cfg *PortmapConfig) {
	if cfg.Port == 0 {
		cfg.Port = portmap.Port
	}
}

// applyCaptureDefaults sets capture store defaults.
func applyCaptureDefaults(cfg *CaptureConfig) {
	if cfg.Type == "" {
		cfg.Type = "filesystem"
	}

	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}

	if _, ok := cfg.Filesystem["path"]; !ok {
		cfg.Filesystem["path"] = filepath.Join(os.TempDir(), "vxi11-captures")
	}
	if _, ok := cfg.Badger["db_path"]; !ok {
		cfg.Badger["db_path"] = filepath.Join(os.TempDir(), "vxi11-captures.db")
	}
	if _, ok := cfg.S3["key_prefix"]; !ok {
		cfg.S3["key_prefix"] = "captures/"
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultMetricsPort
	}
}

// GetDefaultConfig returns a Config with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
