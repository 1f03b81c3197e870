// Package capturetest is a contract test suite for capture.Store
// implementations.
//
// Usage:
//
//	func TestStore(t *testing.T) {
//	    capturetest.Run(t, func(t *testing.T) capture.Store {
//	        return memory.New()
//	    })
//	}
package capturetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/vxi11/pkg/capture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store for each subtest.
type Factory func(t *testing.T) capture.Store

// Run executes the suite against stores created by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("PutGet", func(t *testing.T) { testPutGet(t, newStore(t)) })
	t.Run("Overwrite", func(t *testing.T) { testOverwrite(t, newStore(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, newStore(t)) })
	t.Run("InvalidKey", func(t *testing.T) { testInvalidKey(t, newStore(t)) })
	t.Run("List", func(t *testing.T) { testList(t, newStore(t)) })
	t.Run("Concurrent", func(t *testing.T) { testConcurrent(t, newStore(t)) })
	t.Run("Closed", func(t *testing.T) { testClosed(t, newStore(t)) })
}

// Sample returns a record suitable for tests.
func Sample(key string) capture.Record {
	return capture.Record{
		Key:      key,
		Host:     "192.0.2.10",
		Device:   "inst0",
		Query:    "MEAS:VOLT?",
		Response: []byte("+1.234E+00\n"),
		Time:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func testPutGet(t *testing.T, store capture.Store) {
	ctx := context.Background()
	rec := Sample("dmm/voltage")

	require.NoError(t, store.Put(ctx, rec))

	got, err := store.Get(ctx, "dmm/voltage")
	require.NoError(t, err)
	assert.Equal(t, rec.Key, got.Key)
	assert.Equal(t, rec.Query, got.Query)
	assert.Equal(t, rec.Response, got.Response)
	assert.True(t, rec.Time.Equal(got.Time))
}

func testOverwrite(t *testing.T, store capture.Store) {
	ctx := context.Background()
	rec := Sample("dmm/voltage")
	require.NoError(t, store.Put(ctx, rec))

	rec.Response = []byte("+2.000E+00\n")
	require.NoError(t, store.Put(ctx, rec))

	got, err := store.Get(ctx, rec.Key)
	require.NoError(t, err)
	assert.Equal(t, []byte("+2.000E+00\n"), got.Response)

	keys, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"dmm/voltage"}, keys)
}

func testNotFound(t *testing.T, store capture.Store) {
	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, capture.ErrNotFound)
}

func testInvalidKey(t *testing.T, store capture.Store) {
	for _, key := range []string{"", "/abs", "a//b", "../escape", "a/./b", "with space"} {
		err := store.Put(context.Background(), Sample(key))
		var keyErr *capture.InvalidKeyError
		assert.ErrorAs(t, err, &keyErr, "key %q", key)
	}
}

func testList(t *testing.T, store capture.Store) {
	ctx := context.Background()
	for _, key := range []string{"scope/ch2", "scope/ch1", "dmm/voltage", "scopex"} {
		require.NoError(t, store.Put(ctx, Sample(key)))
	}

	keys, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"dmm/voltage", "scope/ch1", "scope/ch2", "scopex"}, keys)

	keys, err = store.List(ctx, "scope/")
	require.NoError(t, err)
	assert.Equal(t, []string{"scope/ch1", "scope/ch2"}, keys)

	keys, err = store.List(ctx, "nothing")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func testConcurrent(t *testing.T, store capture.Store) {
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := fmt.Sprintf("run/%02d", i)
			assert.NoError(t, store.Put(ctx, Sample(key)))
			_, err := store.Get(ctx, key)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	keys, err := store.List(ctx, "run/")
	require.NoError(t, err)
	assert.Len(t, keys, 16)
}

func testClosed(t *testing.T, store capture.Store) {
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, Sample("a")))
	require.NoError(t, store.Close())

	assert.ErrorIs(t, store.Put(ctx, Sample("b")), capture.ErrClosed)
	_, err := store.Get(ctx, "a")
	assert.ErrorIs(t, err, capture.ErrClosed)
	_, err = store.List(ctx, "")
	assert.ErrorIs(t, err, capture.ErrClosed)
}
