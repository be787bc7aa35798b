package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stacklok/reelsync/internal/config"
	"github.com/stacklok/reelsync/internal/db"
	moviestore "github.com/stacklok/reelsync/internal/storage"
	"github.com/stacklok/reelsync/internal/storage/postgres"
)

// DatabaseFactory creates PostgreSQL-backed stores over one connection pool
type DatabaseFactory struct {
	pool *pgxpool.Pool
	opts factoryOptions
}

var _ Factory = (*DatabaseFactory)(nil)

// NewDatabaseFactory creates a new database-backed storage factory.
// It establishes a connection pool to the configured PostgreSQL database.
func NewDatabaseFactory(ctx context.Context, cfg *config.Config, opts ...Option) (*DatabaseFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Database == nil {
		return nil, fmt.Errorf("database configuration is required for database storage type")
	}

	factory := &DatabaseFactory{}
	for _, opt := range opts {
		opt(&factory.opts)
	}

	slog.Info("Creating database-backed storage factory")

	var poolOpts []db.Option
	if factory.opts.tracer != nil {
		poolOpts = append(poolOpts, db.WithTracer(factory.opts.tracer))
	}
	pool, err := db.NewPool(ctx, cfg.Database, poolOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}
	factory.pool = pool

	return factory, nil
}

// CreateStore creates a store on the factory's pool. The pool stays owned by
// the factory.
func (d *DatabaseFactory) CreateStore(_ context.Context) (moviestore.Store, error) {
	slog.Debug("Creating database-backed store")

	var opts []postgres.Option
	if d.opts.tracer != nil {
		opts = append(opts, postgres.WithTracer(d.opts.tracer))
		slog.Debug("Database store tracing enabled")
	}

	s, err := postgres.New(d.pool, opts...)
	if err != nil {
		return nil, err
	}
	return nopCloser{s}, nil
}

// Cleanup releases resources held by the database factory.
// This closes the database connection pool and any active connections.
func (d *DatabaseFactory) Cleanup() {
	if d.pool != nil {
		slog.Info("Closing database connection pool")
		d.pool.Close()
	}
}

// nopCloser leaves closing the pool to Cleanup
type nopCloser struct {
	moviestore.Store
}

func (nopCloser) Close() {}
