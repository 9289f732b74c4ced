// Package cmd builds the infrastructure components selected on the command line.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/convergence/pkg/persistence"
	"github.com/dukex/convergence/pkg/persistence/file"
	"github.com/dukex/convergence/pkg/persistence/memory"
	"github.com/dukex/convergence/pkg/persistence/postgresql"
	"github.com/dukex/convergence/pkg/persistence/redis"
)

var supportedPersistenceProviders = []string{"file", "memory", "postgres", "postgresql", "redis", "rediss"}

// NewBlobStore selects a backend by URL scheme. URLs without a known scheme are treated as file paths.
func NewBlobStore(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.BlobStore, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "memory":
		return memory.NewStore(), nil
	case "postgres", "postgresql":
		store, err := postgresql.NewStore(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres store: %w", err)
		}

		return store, nil
	case "redis", "rediss":
		store, err := redis.NewStore(ctx, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis store: %w", err)
		}

		return store, nil
	default:
		return file.NewStore(databaseURL), nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	parts := strings.SplitN(databaseURL, "://", 2)
	if len(parts) < 2 {
		return "file"
	}

	provider := parts[0]
	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}
