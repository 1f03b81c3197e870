package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// InitConfig writes a sample configuration file to the default location.
//
// Parameters:
//   - force: Overwrite an existing file
//
// Returns:
//   - string: Path of the written file
//   - error: If the file exists and force is false, or on I/O failure
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a sample configuration file to path, creating
// parent directories as needed.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use force to overwrite)", path)
		}
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// generateYAMLWithComments renders cfg as a commented YAML document.
//
// Every capture store section is written so the file documents all of
// them, even though only the one named by capture.type is used.
func generateYAMLWithComments(cfg *Config) (string, error) {
	var b strings.Builder
	w := func(format string, args ...any) { fmt.Fprintf(&b, format+"\n", args...) }

	w("# vxi11 Configuration File")
	w("#")
	w("# Environment variables override these values: VXI11_<SECTION>_<KEY>,")
	w("# e.g. VXI11_DEVICE_IO_TIMEOUT=5s")
	w("")
	w("logging:")
	w("  # DEBUG, INFO, WARN or ERROR")
	w("  level: %q", cfg.Logging.Level)
	w("  # text or json")
	w("  format: %q", cfg.Logging.Format)
	w("  # stdout, stderr or a file path")
	w("  output: %q", cfg.Logging.Output)
	w("")
	w("device:")
	w("  # Default instrument address when none is given on the command line")
	w("  host: %q", cfg.Device.Host)
	w("  # Logical device name (inst0, gpib0,5, ...)")
	w("  name: %q", cfg.Device.Name)
	w("  # CREATE_LINK client id; 0 derives a random id per link")
	w("  client_id: %d", cfg.Device.ClientID)
	w("  lock_device: %t", cfg.Device.LockDevice)
	w("  lock_timeout: %s", cfg.Device.LockTimeout)
	w("  io_timeout: %s", cfg.Device.IOTimeout)
	w("  # Local deadline on every RPC; 0s waits forever")
	w("  socket_timeout: %s", cfg.Device.SocketTimeout)
	w("  dial_timeout: %s", cfg.Device.DialTimeout)
	w("  # Ceiling for the chunk size reported by the instrument")
	w("  max_recv_size: %d", cfg.Device.MaxRecvSize)
	w("  # Largest response accepted by one read")
	w("  max_response_size: %d", cfg.Device.MaxResponseSize)
	w("  # Termination character for reads; empty disables it")
	w("  term_char: %q", cfg.Device.TermChar)
	w("  # Commands per second; 0 disables pacing")
	w("  command_rate: %g", cfg.Device.CommandRate)
	w("  command_burst: %d", cfg.Device.CommandBurst)
	w("")
	w("portmap:")
	w("  port: %d", cfg.Portmap.Port)
	w("")
	w("capture:")
	w("  # memory, filesystem, s3 or badger")
	w("  type: %q", cfg.Capture.Type)
	w("  filesystem:")
	w("    path: %q", cfg.Capture.Filesystem["path"])
	w("  badger:")
	w("    db_path: %q", cfg.Capture.Badger["db_path"])
	w("  s3:")
	w("    region: \"\"")
	w("    bucket: \"\"")
	w("    key_prefix: %q", cfg.Capture.S3["key_prefix"])
	w("    # Custom endpoint for S3-compatible services (MinIO, Localstack)")
	w("    endpoint: \"\"")
	w("")
	w("metrics:")
	w("  enabled: %t", cfg.Metrics.Enabled)
	w("  port: %d", cfg.Metrics.Port)

	out := b.String()

	var check map[string]any
	if err := yaml.Unmarshal([]byte(out), &check); err != nil {
		return "", fmt.Errorf("generated config is not valid YAML: %w", err)
	}

	return out, nil
}
