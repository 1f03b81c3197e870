// Package metrics defines the observability hooks of the VXI-11 client.
//
// Collectors are optional. Components given a nil RPCMetrics or
// DeviceMetrics fall back to no-op implementations, and the Prometheus
// implementations in the prometheus subpackage only register themselves
// once InitRegistry has run.
//
//	reg := metrics.InitRegistry()
//	srv := metrics.NewServer(metrics.ServerConfig{Port: 9090})
//	dev, err := vxi11.Dial(ctx, host, vxi11.Config{
//	    RPCMetrics:    prometheus.NewRPCMetrics(),
//	    DeviceMetrics: prometheus.NewDeviceMetrics(),
//	})
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry creates the process-wide registry and returns it. Later
// calls return the same registry.
//
// Besides the RPC and device collectors, the registry exports Go runtime
// and process metrics, so a shell left open against an instrument can be
// watched like any other long-running process.
func InitRegistry() *prometheus.Registry {
	registryOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		registry = reg
	})
	return registry
}

// GetRegistry returns the registry, or nil while metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
