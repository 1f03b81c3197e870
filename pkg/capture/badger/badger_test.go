package badger

import (
	"context"
	"testing"

	"github.com/marmos91/vxi11/pkg/capture"
	"github.com/marmos91/vxi11/pkg/capture/capturetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) capture.Store {
	t.Helper()
	store, err := New(context.Background(), Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore(t *testing.T) {
	capturetest.Run(t, newStore)
}

func TestPersistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := New(ctx, Config{DBPath: dir})
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, capturetest.Sample("dmm/voltage")))
	require.NoError(t, store.Close())

	store, err = New(ctx, Config{DBPath: dir})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	got, err := store.Get(ctx, "dmm/voltage")
	require.NoError(t, err)
	assert.Equal(t, "MEAS:VOLT?", got.Query)
}

func TestNewRequiresPath(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}
