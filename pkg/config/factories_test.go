package config

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/vxi11/pkg/capture"
	"github.com/marmos91/vxi11/pkg/capture/capturetest"
)

func TestCreateCaptureStore_Memory(t *testing.T) {
	store, err := CreateCaptureStore(context.Background(), &CaptureConfig{Type: "memory"})
	if err != nil {
		t.Fatalf("Failed to create memory capture store: %v", err)
	}
	defer func() { _ = store.Close() }()

	roundTrip(t, store)
}

func TestCreateCaptureStore_Filesystem(t *testing.T) {
	cfg := &CaptureConfig{
		Type:       "filesystem",
		Filesystem: map[string]any{"path": filepath.Join(t.TempDir(), "captures")},
	}

	store, err := CreateCaptureStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create filesystem capture store: %v", err)
	}
	defer func() { _ = store.Close() }()

	roundTrip(t, store)
}

func TestCreateCaptureStore_FilesystemMissingPath(t *testing.T) {
	cfg := &CaptureConfig{Type: "filesystem", Filesystem: map[string]any{}}

	_, err := CreateCaptureStore(context.Background(), cfg)
	if err == nil {
		t.Fatal("Expected error for missing path")
	}
	if !strings.Contains(err.Error(), "path is required") {
		t.Errorf("Expected 'path is required' error, got: %v", err)
	}
}

func TestCreateCaptureStore_BadgerInMemory(t *testing.T) {
	cfg := &CaptureConfig{
		Type:   "badger",
		Badger: map[string]any{"in_memory": true, "block_cache_mb": "8"},
	}

	store, err := CreateCaptureStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create badger capture store: %v", err)
	}
	defer func() { _ = store.Close() }()

	roundTrip(t, store)
}

func TestCreateCaptureStore_BadgerMissingPath(t *testing.T) {
	cfg := &CaptureConfig{Type: "badger", Badger: map[string]any{}}

	_, err := CreateCaptureStore(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "db_path is required") {
		t.Errorf("Expected 'db_path is required' error, got: %v", err)
	}
}

func TestCreateCaptureStore_S3RequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		options map[string]any
		wantErr string
	}{
		{"MissingBucket", map[string]any{"region": "eu-west-1"}, "bucket is required"},
		{"MissingRegion", map[string]any{"bucket": "captures"}, "region is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CreateCaptureStore(context.Background(), &CaptureConfig{Type: "s3", S3: tt.options})
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected %q error, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestNewS3Client_CustomEndpoint(t *testing.T) {
	client, err := NewS3Client(context.Background(), S3Options{
		Region:          "us-east-1",
		Endpoint:        "http://127.0.0.1:9000",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
	})
	if err != nil {
		t.Fatalf("NewS3Client failed: %v", err)
	}

	opts := client.Options()
	if !opts.UsePathStyle {
		t.Error("Expected path-style addressing with a custom endpoint")
	}
	if opts.BaseEndpoint == nil || *opts.BaseEndpoint != "http://127.0.0.1:9000" {
		t.Errorf("Expected custom base endpoint, got %v", opts.BaseEndpoint)
	}
	if opts.Region != "us-east-1" {
		t.Errorf("Expected region 'us-east-1', got %q", opts.Region)
	}
}

func TestCreateCaptureStore_UnknownType(t *testing.T) {
	_, err := CreateCaptureStore(context.Background(), &CaptureConfig{Type: "postgres"})
	if err == nil || !strings.Contains(err.Error(), "unknown capture store type") {
		t.Errorf("Expected 'unknown capture store type' error, got: %v", err)
	}
}

func TestCreateCaptureStore_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := CreateCaptureStore(ctx, &CaptureConfig{Type: "memory"})
	if err == nil {
		t.Fatal("Expected error for canceled context")
	}
}

func TestCreateDeviceConfig(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Device.Name = "gpib0,5"
	cfg.Device.IOTimeout = 3 * time.Second
	cfg.Device.TermChar = "\n"
	cfg.Device.MaxRecvSize = 4096
	cfg.Portmap.Port = 1111

	m := InitializeMetrics(cfg)
	dev := CreateDeviceConfig(cfg, m)

	if dev.Name != "gpib0,5" {
		t.Errorf("Expected name 'gpib0,5', got %q", dev.Name)
	}
	if dev.IOTimeout != 3*time.Second {
		t.Errorf("Expected io timeout 3s, got %v", dev.IOTimeout)
	}
	if !dev.TermCharEnabled || dev.TermChar != '\n' {
		t.Errorf("Expected newline term char enabled, got %q enabled=%v", dev.TermChar, dev.TermCharEnabled)
	}
	if dev.MaxRecvSize != 4096 {
		t.Errorf("Expected max recv size 4096, got %d", dev.MaxRecvSize)
	}
	if dev.PortmapPort != 1111 {
		t.Errorf("Expected portmap port 1111, got %d", dev.PortmapPort)
	}
	if dev.RPCMetrics == nil || dev.DeviceMetrics == nil {
		t.Error("Expected metrics collectors to be attached")
	}
}

func TestCreateDeviceConfig_NoTermChar(t *testing.T) {
	dev := CreateDeviceConfig(GetDefaultConfig(), nil)

	if dev.TermCharEnabled {
		t.Error("Expected term char disabled by default")
	}
	if dev.RPCMetrics != nil {
		t.Error("Expected metrics left for the device to default")
	}
}

func roundTrip(t *testing.T, store capture.Store) {
	t.Helper()
	ctx := context.Background()

	if err := store.Put(ctx, capturetest.Sample("dmm/voltage")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	rec, err := store.Get(ctx, "dmm/voltage")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec.Query != "MEAS:VOLT?" {
		t.Errorf("Expected query 'MEAS:VOLT?', got %q", rec.Query)
	}
}
