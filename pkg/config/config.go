package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete vxi11 client configuration.
//
// This structure captures all configurable aspects of the shell:
//   - Logging configuration
//   - Device link parameters (timeouts, transfer sizes, pacing)
//   - Port mapper location
//   - Capture store selection and configuration (store-specific)
//   - Metrics exposition
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (VXI11_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// Store Configuration Pattern:
// Each capture store defines its own options, decoded by its factory.
// The Config struct carries type-specific sections (capture.filesystem,
// capture.s3, ...) and only the section matching the selected type is used.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Device contains the link parameters used for every instrument
	Device DeviceConfig `mapstructure:"device"`

	// Portmap locates the instrument's port mapper
	Portmap PortmapConfig `mapstructure:"portmap"`

	// Capture specifies where %SAVE stores instrument responses
	Capture CaptureConfig `mapstructure:"capture"`

	// Metrics controls the Prometheus exposition server
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// DeviceConfig holds the parameters of a device link.
type DeviceConfig struct {
	// Host is the default instrument address, used when none is given
	// on the command line
	Host string `mapstructure:"host" validate:"omitempty,hostname_rfc1123|ip"`

	// Name is the logical device name, e.g. "inst0" or "gpib0,5"
	Name string `mapstructure:"name" validate:"required"`

	// ClientID is sent with CREATE_LINK. Zero derives a random id.
	ClientID int32 `mapstructure:"client_id" validate:"gte=0"`

	// LockDevice requests an exclusive lock when the link is created
	LockDevice bool `mapstructure:"lock_device"`

	// LockTimeout is how long the instrument waits for a lock held elsewhere
	LockTimeout time.Duration `mapstructure:"lock_timeout" validate:"gt=0"`

	// IOTimeout bounds each operation on the instrument side
	IOTimeout time.Duration `mapstructure:"io_timeout" validate:"gt=0"`

	// SocketTimeout is a local deadline on every RPC (0 waits forever)
	SocketTimeout time.Duration `mapstructure:"socket_timeout" validate:"gte=0"`

	// DialTimeout bounds TCP connection establishment (0 uses the OS default)
	DialTimeout time.Duration `mapstructure:"dial_timeout" validate:"gte=0"`

	// MaxRecvSize caps the instrument's reported max_recv_size
	MaxRecvSize uint32 `mapstructure:"max_recv_size" validate:"gt=0"`

	// MaxResponseSize bounds the bytes accumulated by one read
	MaxResponseSize int `mapstructure:"max_response_size" validate:"gt=0"`

	// TermChar ends reads early when set. Empty disables it.
	TermChar string `mapstructure:"term_char" validate:"max=1"`

	// CommandRate paces writes in commands per second (0 disables pacing)
	CommandRate float64 `mapstructure:"command_rate" validate:"gte=0"`

	// CommandBurst is the number of commands allowed back to back
	CommandBurst int `mapstructure:"command_burst" validate:"gte=0"`
}

// PortmapConfig locates the port mapper.
type PortmapConfig struct {
	// Port is the port mapper's TCP port
	Port int `mapstructure:"port" validate:"required,gt=0,lte=65535"`
}

// CaptureConfig specifies capture store configuration.
//
// The Type field determines which store implementation is used.
// Only the corresponding type-specific configuration section is used.
type CaptureConfig struct {
	// Type specifies which capture store implementation to use
	// Valid values: memory, filesystem, s3, badger
	Type string `mapstructure:"type" validate:"required,oneof=memory filesystem s3 badger"`

	// Memory contains memory-specific configuration
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory"`

	// Filesystem contains filesystem-specific configuration
	// Only used when Type = "filesystem"
	Filesystem map[string]any `mapstructure:"filesystem"`

	// S3 contains S3-specific configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger"`
}

// MetricsConfig controls the metrics HTTP server.
type MetricsConfig struct {
	// Enabled starts the /metrics endpoint alongside the shell
	Enabled bool `mapstructure:"enabled"`

	// Port is the HTTP port for /metrics
	Port int `mapstructure:"port" validate:"omitempty,gt=0,lte=65535"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (VXI11_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the VXI11_ prefix and underscores
	// Example: VXI11_DEVICE_IO_TIMEOUT=5s
	v.SetEnvPrefix("VXI11")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/vxi11/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		// A missing file is acceptable - defaults apply
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "vxi11")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "vxi11")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
