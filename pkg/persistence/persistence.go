// Package persistence defines the key/value blob storage used to mirror user workflows.
package persistence

import (
	"context"
)

// BlobStore stores opaque JSON documents under string keys.
type BlobStore interface {
	// Get returns ErrBlobNotFound when nothing is stored under key.
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
