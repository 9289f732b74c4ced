// Package postgresql provides a PostgreSQL-backed blob store.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/convergence/pkg/persistence"
	"github.com/dukex/convergence/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE kv_blobs (
				key VARCHAR(255) PRIMARY KEY,
				value BYTEA NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);
		`,
	}
}

// Store implements persistence.BlobStore on a single key/value table.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore connects to PostgreSQL and runs pending migrations.
func NewStore(ctx context.Context, logger *slog.Logger, databaseURL string) (*Store, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger = logger.With("module", "postgresql-store")

	err = sqlbase.NewMigrationManager(logger, database, migrations()).RunMigrations(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: database, logger: logger}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte

	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv_blobs WHERE key = $1", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewBlobError("Get", key, persistence.ErrBlobNotFound)
		}

		return nil, persistence.NewBlobError("Get", key, err)
	}

	return value, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return persistence.NewBlobError("Put", key, persistence.ErrInvalidKey)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_blobs (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, value)
	if err != nil {
		return persistence.NewBlobError("Put", key, err)
	}

	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM kv_blobs WHERE key = $1", key)
	if err != nil {
		return persistence.NewBlobError("Delete", key, err)
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (s *Store) HealthCheck(ctx context.Context) error {
	err := s.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close(_ context.Context) error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	return nil
}
