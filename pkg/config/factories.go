package config

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/vxi11/internal/logger"
	"github.com/marmos91/vxi11/pkg/capture"
	captureBadger "github.com/marmos91/vxi11/pkg/capture/badger"
	captureFs "github.com/marmos91/vxi11/pkg/capture/fs"
	"github.com/marmos91/vxi11/pkg/capture/memory"
	captureS3 "github.com/marmos91/vxi11/pkg/capture/s3"
	"github.com/marmos91/vxi11/pkg/vxi11"
	"github.com/mitchellh/mapstructure"
)

// CreateCaptureStore creates a capture store based on configuration.
//
// This factory function uses the Type field to determine which store implementation
// to create, then decodes the type-specific configuration from the corresponding
// map and passes it to the store's constructor.
//
// Supported types:
//   - "memory": Uses pkg/capture/memory (ephemeral, lost on exit)
//   - "filesystem": Uses pkg/capture/fs (one JSON file per record)
//   - "s3": Uses pkg/capture/s3 (Amazon S3 or compatible storage)
//   - "badger": Uses pkg/capture/badger (embedded BadgerDB)
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Capture store configuration
//
// Returns:
//   - capture.Store: Initialized capture store
//   - error: Configuration or initialization error
func CreateCaptureStore(ctx context.Context, cfg *CaptureConfig) (capture.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "memory":
		return memory.New(), nil
	case "filesystem":
		return createFilesystemCaptureStore(cfg.Filesystem)
	case "s3":
		return createS3CaptureStore(ctx, cfg.S3)
	case "badger":
		return createBadgerCaptureStore(ctx, cfg.Badger)
	default:
		return nil, fmt.Errorf("unknown capture store type: %q (supported: memory, filesystem, s3, badger)", cfg.Type)
	}
}

// createFilesystemCaptureStore creates a filesystem-based capture store.
func createFilesystemCaptureStore(options map[string]any) (capture.Store, error) {
	type FilesystemCaptureStoreConfig struct {
		Path string `mapstructure:"path"`
	}

	var storeCfg FilesystemCaptureStoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode filesystem capture store config: %w", err)
	}

	if storeCfg.Path == "" {
		return nil, fmt.Errorf("filesystem capture store: path is required")
	}

	store, err := captureFs.New(storeCfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem capture store: %w", err)
	}

	return store, nil
}

// S3Options are the options of the "s3" capture store.
type S3Options struct {
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

// createS3CaptureStore creates an S3-based capture store.
func createS3CaptureStore(ctx context.Context, options map[string]any) (capture.Store, error) {
	var storeCfg S3Options
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 capture store config: %w", err)
	}

	if storeCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 capture store: bucket is required")
	}
	if storeCfg.Region == "" {
		return nil, fmt.Errorf("S3 capture store: region is required")
	}

	client, err := NewS3Client(ctx, storeCfg)
	if err != nil {
		return nil, err
	}

	store, err := captureS3.New(ctx, captureS3.Config{
		Client:    client,
		Bucket:    storeCfg.Bucket,
		KeyPrefix: storeCfg.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 capture store: %w", err)
	}

	logger.Info("S3 capture store initialized: bucket=%s, region=%s, prefix=%s",
		storeCfg.Bucket, storeCfg.Region, storeCfg.KeyPrefix)

	return store, nil
}

// NewS3Client builds an S3 client from the store options.
//
// A custom endpoint (MinIO, Localstack, ...) switches the client to
// path-style addressing. Static credentials are used when both keys are
// set; otherwise the default AWS credential chain applies.
func NewS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	var configOptions []func(*awsConfig.LoadOptions) error

	configOptions = append(configOptions, awsConfig.WithRegion(opts.Region))

	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			opts.AccessKeyID,
			opts.SecretAccessKey,
			"",
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = 5
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// createBadgerCaptureStore creates a BadgerDB-based capture store.
func createBadgerCaptureStore(ctx context.Context, options map[string]any) (capture.Store, error) {
	type BadgerCaptureStoreOptions struct {
		DBPath           string `mapstructure:"db_path"`
		InMemory         bool   `mapstructure:"in_memory"`
		BlockCacheSizeMB int64  `mapstructure:"block_cache_mb"`
	}

	var storeOpts BadgerCaptureStoreOptions
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &storeOpts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(options); err != nil {
		return nil, fmt.Errorf("failed to decode badger capture store options: %w", err)
	}

	if storeOpts.DBPath == "" && !storeOpts.InMemory {
		return nil, fmt.Errorf("badger capture store: db_path is required")
	}

	store, err := captureBadger.New(ctx, captureBadger.Config{
		DBPath:           storeOpts.DBPath,
		InMemory:         storeOpts.InMemory,
		BlockCacheSizeMB: storeOpts.BlockCacheSizeMB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create badger capture store: %w", err)
	}

	return store, nil
}

// CreateDeviceConfig converts the device section into a vxi11.Config.
//
// Parameters:
//   - cfg: The complete configuration
//   - m: Metrics collectors to attach (nil leaves the device's no-op defaults)
//
// Returns:
//   - vxi11.Config ready for vxi11.New or vxi11.Dial
func CreateDeviceConfig(cfg *Config, m *MetricsResult) vxi11.Config {
	dev := cfg.Device
	out := vxi11.Config{
		Name:            dev.Name,
		ClientID:        dev.ClientID,
		LockDevice:      dev.LockDevice,
		LockTimeout:     dev.LockTimeout,
		IOTimeout:       dev.IOTimeout,
		SocketTimeout:   dev.SocketTimeout,
		DialTimeout:     dev.DialTimeout,
		MaxRecvSize:     dev.MaxRecvSize,
		MaxResponseSize: dev.MaxResponseSize,
		PortmapPort:     cfg.Portmap.Port,
		CommandRate:     dev.CommandRate,
		CommandBurst:    dev.CommandBurst,
	}
	if dev.TermChar != "" {
		out.TermChar = dev.TermChar[0]
		out.TermCharEnabled = true
	}
	if m != nil {
		out.RPCMetrics = m.RPCMetrics
		out.DeviceMetrics = m.DeviceMetrics
	}
	return out
}

// closeTimeout bounds store shutdown in the shell.
const closeTimeout = 5 * time.Second

// CloseCaptureStore closes store, logging instead of failing when it takes
// longer than closeTimeout.
func CloseCaptureStore(store capture.Store) {
	done := make(chan error, 1)
	go func() { done <- store.Close() }()

	select {
	case err := <-done:
		if err != nil {
			logger.Warn("Failed to close capture store: %v", err)
		}
	case <-time.After(closeTimeout):
		logger.Warn("Capture store did not close within %v", closeTimeout)
	}
}
