// Package db provides the PostgreSQL connection pool, migration runner, and
// pgtype conversion helpers shared by the domain services.
package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emberian/tulip/internal/config"
)

// Open creates a pgx connection pool from the Postgres config.
func Open(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	return pgxpool.New(ctx, DSN(cfg))
}
