// Package badger stores captured records in an embedded BadgerDB.
package badger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/vxi11/internal/logger"
	"github.com/marmos91/vxi11/pkg/capture"
)

// keyPrefix namespaces record keys inside the database.
const keyPrefix = "capture:"

// Config configures a Store.
type Config struct {
	// DBPath is the database directory. Ignored when InMemory is set.
	DBPath string

	// InMemory keeps the database in memory only.
	InMemory bool

	// BlockCacheSizeMB sizes Badger's block cache. Zero selects 32MB.
	BlockCacheSizeMB int64
}

// Store is a BadgerDB-backed capture store.
type Store struct {
	db     *badger.DB
	closed atomic.Bool
}

// New opens the database described by cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.DBPath == "" && !cfg.InMemory {
		return nil, errors.New("capture badger: db_path is required")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.DBPath)
	}

	blockCacheMB := cfg.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 32
	}
	opts = opts.WithLoggingLevel(badger.WARNING).
		WithCompression(options.ZSTD).
		WithBlockCacheSize(blockCacheMB << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("capture badger: open %s: %w", cfg.DBPath, err)
	}

	logger.Debug("capture badger: opened (path=%q in_memory=%v)", cfg.DBPath, cfg.InMemory)
	return &Store{db: db}, nil
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

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+rec.Key), data)
	})
}

func (s *Store) Get(ctx context.Context, key string) (capture.Record, error) {
	if err := s.check(ctx); err != nil {
		return capture.Record{}, err
	}

	var rec capture.Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return capture.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			rec, err = capture.Unmarshal(val)
			return err
		})
	})
	if err != nil {
		return capture.Record{}, err
	}
	return rec, nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix + prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().Key()[len(keyPrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("capture badger: list: %w", err)
	}

	slices.Sort(keys)
	return keys, nil
}

func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}
