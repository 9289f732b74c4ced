package memory

import (
	"context"
	"testing"

	"github.com/dukex/convergence/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	_, err := store.Get(ctx, "k")
	require.True(t, persistence.IsBlobNotFound(err))

	value := []byte("v1")
	require.NoError(t, store.Put(ctx, "k", value))

	value[0] = 'x'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(got))

	require.NoError(t, store.Delete(ctx, "k"))

	_, err = store.Get(ctx, "k")
	require.True(t, persistence.IsBlobNotFound(err))

	require.ErrorIs(t, store.Put(ctx, "", nil), persistence.ErrInvalidKey)
}
