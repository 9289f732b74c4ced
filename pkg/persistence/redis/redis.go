// Package redis provides a Redis-backed blob store.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/convergence/pkg/persistence"
	goredis "github.com/redis/go-redis/v9"
)

const defaultPrefix = "convergence:"

type Store struct {
	client *goredis.Client
	prefix string
}

// NewStore connects to the Redis server described by a redis:// URL.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	opts, err := goredis.ParseURL(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = client.Ping(pingCtx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{client: client, prefix: defaultPrefix}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, persistence.NewBlobError("Get", key, persistence.ErrBlobNotFound)
		}

		return nil, persistence.NewBlobError("Get", key, err)
	}

	return val, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return persistence.NewBlobError("Put", key, persistence.ErrInvalidKey)
	}

	err := s.client.Set(ctx, s.prefix+key, value, 0).Err()
	if err != nil {
		return persistence.NewBlobError("Put", key, err)
	}

	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.client.Del(ctx, s.prefix+key).Err()
	if err != nil {
		return persistence.NewBlobError("Delete", key, err)
	}

	return nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close(_ context.Context) error {
	return s.client.Close()
}
