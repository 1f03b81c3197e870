package config

import (
	"github.com/marmos91/vxi11/pkg/metrics"
	promMetrics "github.com/marmos91/vxi11/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// RPCMetrics instruments the RPC transport (never nil, uses noop if disabled)
	RPCMetrics metrics.RPCMetrics

	// DeviceMetrics instruments device operations (never nil, uses noop if disabled)
	DeviceMetrics metrics.DeviceMetrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed metrics instances for all components
//
// If metrics are disabled:
//   - Returns nil server
//   - Returns no-op metrics implementations (zero overhead)
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{
			RPCMetrics:    metrics.NewNoopRPCMetrics(),
			DeviceMetrics: metrics.NewNoopDeviceMetrics(),
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port: cfg.Metrics.Port,
	})

	return &MetricsResult{
		Server:        server,
		RPCMetrics:    promMetrics.NewRPCMetrics(),
		DeviceMetrics: promMetrics.NewDeviceMetrics(),
	}
}
