package memory

import (
	"context"
	"testing"

	"github.com/marmos91/vxi11/pkg/capture"
	"github.com/marmos91/vxi11/pkg/capture/capturetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	capturetest.Run(t, func(t *testing.T) capture.Store { return New() })
}

func TestResponseIsCopied(t *testing.T) {
	ctx := context.Background()
	store := New()

	rec := capturetest.Sample("dmm/voltage")
	require.NoError(t, store.Put(ctx, rec))
	rec.Response[0] = 'X'

	got, err := store.Get(ctx, "dmm/voltage")
	require.NoError(t, err)
	assert.Equal(t, byte('+'), got.Response[0])
}
