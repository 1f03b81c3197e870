package config

import "testing"

func TestInitializeMetrics_Disabled(t *testing.T) {
	result := InitializeMetrics(GetDefaultConfig())

	if result.Server != nil {
		t.Error("Expected no server when metrics are disabled")
	}
	if result.RPCMetrics == nil || result.DeviceMetrics == nil {
		t.Fatal("Expected no-op collectors when metrics are disabled")
	}

	// No-op collectors accept calls without a registry
	result.RPCMetrics.RecordConnectionOpened("portmap")
	result.DeviceMetrics.AddActiveLinks(1)
}

func TestInitializeMetrics_Enabled(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = 19090

	result := InitializeMetrics(cfg)

	if result.Server == nil {
		t.Fatal("Expected a metrics server when metrics are enabled")
	}
	if result.RPCMetrics == nil || result.DeviceMetrics == nil {
		t.Fatal("Expected Prometheus collectors when metrics are enabled")
	}
}
