// Package file provides a file-system blob store, one file per key.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/convergence/pkg/persistence"
)

// Store implements persistence.BlobStore on top of a directory.
type Store struct {
	root string
}

// NewStore creates a store rooted at dir. A leading "file://" is stripped.
func NewStore(root string) *Store {
	return &Store{
		root: strings.Replace(root, "file://", "", 1),
	}
}

func (s *Store) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", persistence.ErrInvalidKey
	}

	return filepath.Join(s.root, key+".json"), nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	filePath, err := s.path(key)
	if err != nil {
		return nil, persistence.NewBlobError("Get", key, err)
	}

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewBlobError("Get", key, persistence.ErrBlobNotFound)
		}

		return nil, persistence.NewBlobError("Get", key, err)
	}

	return body, nil
}

func (s *Store) Put(_ context.Context, key string, value []byte) error {
	filePath, err := s.path(key)
	if err != nil {
		return persistence.NewBlobError("Put", key, err)
	}

	err = os.MkdirAll(s.root, 0750)
	if err != nil {
		return persistence.NewBlobError("Put", key, fmt.Errorf("failed to create root directory: %w", err))
	}

	tmp := filePath + ".tmp"

	err = os.WriteFile(tmp, value, 0600)
	if err != nil {
		return persistence.NewBlobError("Put", key, err)
	}

	err = os.Rename(tmp, filePath)
	if err != nil {
		return persistence.NewBlobError("Put", key, err)
	}

	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	filePath, err := s.path(key)
	if err != nil {
		return persistence.NewBlobError("Delete", key, err)
	}

	err = os.Remove(filePath)
	if err != nil && !os.IsNotExist(err) {
		return persistence.NewBlobError("Delete", key, err)
	}

	return nil
}

// HealthCheck reports whether the root directory exists or can be created.
func (s *Store) HealthCheck(_ context.Context) error {
	return os.MkdirAll(s.root, 0750)
}

// Close is a no-op for file storage.
func (s *Store) Close(_ context.Context) error {
	return nil
}
