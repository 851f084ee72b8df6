package storetest

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap/zaptest"

	"github.com/paddle-club/backend/pkg/database"
)

// EnvDatabaseURL names the DSN of a disposable Postgres database for repository tests.
const EnvDatabaseURL = "TEST_DATABASE_URL"

// Postgres connects to the database named by TEST_DATABASE_URL and applies the
// migrations. The test is skipped when the variable is unset.
func Postgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv(EnvDatabaseURL)
	if dsn == "" {
		t.Skipf("%s not set", EnvDatabaseURL)
	}
	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, dsn, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := database.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}
