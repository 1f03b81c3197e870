// Package s3 stores captured records as objects in Amazon S3 or an
// S3-compatible service.
//
// Key Design:
//   - The record key is used as the object key, under an optional prefix
//   - Objects are JSON documents with a ".json" suffix
//   - The bucket mirrors the layout of the fs backend, so captures can be
//     synced between the two with standard tools
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/vxi11/internal/logger"
	"github.com/marmos91/vxi11/pkg/capture"
)

const ext = ".json"

// API is the subset of *s3.Client used by Store.
type API interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Config configures a Store.
type Config struct {
	// Client is the configured S3 client.
	Client API

	// Bucket must already exist.
	Bucket string

	// KeyPrefix is prepended to every object key, e.g. "captures/".
	KeyPrefix string
}

// Store is an S3-backed capture store.
type Store struct {
	client    API
	bucket    string
	keyPrefix string
	closed    atomic.Bool
}

// New verifies bucket access and returns a Store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Client == nil {
		return nil, errors.New("capture s3: client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("capture s3: bucket is required")
	}

	if _, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("capture s3: access bucket %q: %w", cfg.Bucket, err)
	}

	return &Store{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
	}, nil
}

func (s *Store) objectKey(key string) string {
	return s.keyPrefix + key + ext
}

func (s *Store) check(ctx context.Context) error {
	if s.closed.Load() {
		return capture.ErrClosed
	}
	return ctx.Err()
}

func (s *Store) Put(ctx context.Context, rec capture.Record) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if err := capture.ValidateKey(rec.Key); err != nil {
		return err
	}

	data, err := capture.Marshal(rec)
	if err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(rec.Key)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("capture s3: put %s: %w", rec.Key, err)
	}

	logger.Debug("capture s3: saved s3://%s/%s", s.bucket, s.objectKey(rec.Key))
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (capture.Record, error) {
	if err := s.check(ctx); err != nil {
		return capture.Record{}, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return capture.Record{}, capture.ErrNotFound
		}
		return capture.Record{}, fmt.Errorf("capture s3: get %s: %w", key, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return capture.Record{}, fmt.Errorf("capture s3: read %s: %w", key, err)
	}
	return capture.Unmarshal(data)
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.keyPrefix + prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("capture s3: list: %w", err)
		}
		for _, obj := range page.Contents {
			key := strings.TrimPrefix(aws.ToString(obj.Key), s.keyPrefix)
			if strings.HasSuffix(key, ext) {
				keys = append(keys, strings.TrimSuffix(key, ext))
			}
		}
	}

	slices.Sort(keys)
	return keys, nil
}

// Close marks the store closed. The S3 client holds no resources that
// need releasing.
func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}
