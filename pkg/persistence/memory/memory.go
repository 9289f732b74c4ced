// Package memory provides an in-process blob store.
package memory

import (
	"context"
	"sync"

	"github.com/dukex/convergence/pkg/persistence"
)

type Store struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewStore() *Store {
	return &Store{
		blobs: make(map[string][]byte),
	}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.blobs[key]
	if !ok {
		return nil, persistence.NewBlobError("Get", key, persistence.ErrBlobNotFound)
	}

	return append([]byte(nil), value...), nil
}

func (s *Store) Put(_ context.Context, key string, value []byte) error {
	if key == "" {
		return persistence.NewBlobError("Put", key, persistence.ErrInvalidKey)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.blobs[key] = append([]byte(nil), value...)

	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.blobs, key)

	return nil
}

func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

func (s *Store) Close(_ context.Context) error {
	return nil
}
