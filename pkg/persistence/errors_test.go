package persistence

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlobError(t *testing.T) {
	err := NewBlobError("Get", "convergence.workflows", ErrBlobNotFound)

	assert.Equal(t, "Get operation failed for key convergence.workflows: blob not found", err.Error())
	assert.True(t, IsBlobNotFound(err))
	assert.True(t, errors.Is(err, ErrBlobNotFound))
	assert.False(t, errors.Is(err, ErrInvalidKey))

	wrapped := fmt.Errorf("loading: %w", err)
	assert.True(t, IsBlobNotFound(wrapped))

	var blobErr *BlobError
	assert.True(t, errors.As(wrapped, &blobErr))
	assert.Equal(t, "convergence.workflows", blobErr.Key)
}
