// Package pgxdbtest provisions throwaway PostgreSQL databases for tests.
package pgxdbtest

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for pgtestdb
	"github.com/peterldowns/pgtestdb"
	"github.com/stretchr/testify/require"

	"github.com/angerman/encoins-relay/migrator"
)

// CreateTestDatabase creates a test database with the snapshot-store schema
// applied. Returns the connection pool and database URL for further
// connections.
func CreateTestDatabase(t *testing.T, migrationsDir string) (*pgxpool.Pool, string) {
	t.Helper()

	config := pgtestdb.Config{
		DriverName: "pgx",
		User:       "relay",
		Password:   "relay",
		Host:       "localhost",
		Port:       "5432",
		Options:    "sslmode=disable",
	}

	dbConfig := pgtestdb.Custom(t, config, migrator.NewSchemaMigrator(migrationsDir))
	dbURL := dbConfig.URL()

	t.Logf("testdbconf: %s", dbURL)

	pool, err := createTestConnection(t.Context(), dbURL)
	require.NoError(t, err)

	return pool, dbURL
}

func createTestConnection(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
