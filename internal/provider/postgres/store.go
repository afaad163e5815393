package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dwsmith1983/forecastd/internal/provider"
	"github.com/dwsmith1983/forecastd/pkg/types"
)

// Compile-time interface satisfaction check.
var _ provider.Store = (*Store)(nil)

// upsertParallelism bounds concurrent row upserts within one batch.
const upsertParallelism = 8

// Store is a Postgres-backed prediction store.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store with a connection pool. The pool connects lazily; call
// Start to verify connectivity and apply the schema.
func New(ctx context.Context, cfg *types.PostgresConfig) (*Store, error) {
	if cfg == nil || cfg.DSN == "" {
		return nil, fmt.Errorf("postgres: dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	return &Store{pool: pool, logger: slog.Default()}, nil
}

// Name returns the backend identifier.
func (s *Store) Name() string { return string(types.StorePostgres) }

// Start verifies the connection and runs the schema DDL.
func (s *Store) Start(ctx context.Context) error {
	if err := s.Ping(ctx); err != nil {
		return err
	}
	return s.Migrate(ctx)
}

// Migrate creates the predictions table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

// Stop closes the connection pool.
func (s *Store) Stop(_ context.Context) error {
	s.pool.Close()
	return nil
}

// Ping checks connectivity to the database.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}
