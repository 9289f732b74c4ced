// Package mocks provides testify mocks for the storage and device interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockBlobStore is a mock implementation of persistence.BlobStore.
type MockBlobStore struct {
	mock.Mock
}

func (m *MockBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)

	body, _ := args.Get(0).([]byte)

	return body, args.Error(1)
}

func (m *MockBlobStore) Put(ctx context.Context, key string, value []byte) error {
	args := m.Called(ctx, key, value)

	return args.Error(0)
}

func (m *MockBlobStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)

	return args.Error(0)
}

func (m *MockBlobStore) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockBlobStore) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
