// Package fs stores captured records as JSON files under a root directory.
//
// The key maps directly to the file path: key "scope/ch1" is stored at
// <root>/scope/ch1.json.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/marmos91/vxi11/internal/logger"
	"github.com/marmos91/vxi11/pkg/capture"
)

const ext = ".json"

// Store is a filesystem-backed capture store.
type Store struct {
	root   string
	closed atomic.Bool
}

// New creates root if needed and returns a Store rooted there.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("capture fs: root path is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("capture fs: create %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key)+ext)
}

func (s *Store) check(ctx context.Context) error {
	if s.closed.Load() {
		return capture.ErrClosed
	}
	return ctx.Err()
}

// Put writes the record to a temporary file and renames it into place, so
// a concurrent Get never sees a partial record.
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

	path := s.path(rec.Key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("capture fs: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".capture-*")
	if err != nil {
		return fmt.Errorf("capture fs: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("capture fs: write %s: %w", rec.Key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("capture fs: write %s: %w", rec.Key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("capture fs: %w", err)
	}

	logger.Debug("capture fs: saved %s (%d bytes)", rec.Key, len(rec.Response))
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (capture.Record, error) {
	if err := s.check(ctx); err != nil {
		return capture.Record{}, err
	}
	if err := capture.ValidateKey(key); err != nil {
		return capture.Record{}, capture.ErrNotFound
	}

	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return capture.Record{}, capture.ErrNotFound
	}
	if err != nil {
		return capture.Record{}, fmt.Errorf("capture fs: read %s: %w", key, err)
	}
	return capture.Unmarshal(data)
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	var keys []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ext) || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		key := strings.TrimSuffix(filepath.ToSlash(rel), ext)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("capture fs: list: %w", err)
	}

	slices.Sort(keys)
	return keys, nil
}

func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}
