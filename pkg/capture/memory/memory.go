// Package memory is an in-process capture store. Records are lost when the
// process exits.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/marmos91/vxi11/pkg/capture"
)

// Store keeps records in a map.
type Store struct {
	mu      sync.RWMutex
	records map[string]capture.Record
	closed  bool
}

// New returns an empty Store.
func New() *Store {
	return &Store{records: make(map[string]capture.Record)}
}

func (s *Store) Put(ctx context.Context, rec capture.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := capture.ValidateKey(rec.Key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return capture.ErrClosed
	}

	rec.Response = slices.Clone(rec.Response)
	s.records[rec.Key] = rec
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (capture.Record, error) {
	if err := ctx.Err(); err != nil {
		return capture.Record{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return capture.Record{}, capture.ErrClosed
	}

	rec, ok := s.records[key]
	if !ok {
		return capture.Record{}, capture.ErrNotFound
	}
	rec.Response = slices.Clone(rec.Response)
	return rec, nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, capture.ErrClosed
	}

	keys := make([]string, 0, len(s.records))
	for key := range s.records {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.records = nil
	return nil
}
