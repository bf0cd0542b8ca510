// Package storetest spins up a disposable Postgres container and applies
// the goose migrations from migrations/, for use by integration tests that
// need a real database. Grounded on the discord-dkp-bot example's
// testcontainers-backed pgtest helper (internal/store/postgres/pgtest_test.go),
// adapted from sqlx/lib/pq to pgx/v5 and from a hand-rolled SQL file to
// goose.
package storetest

import (
	"context"
	"database/sql"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/karti/auctionhouse/internal/store"
)

// NewStore starts a postgres:16-alpine container, migrates it with goose,
// and returns a connected *store.Store. The container is torn down when the
// test ends.
func NewStore(t *testing.T) *store.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("auctionhouse_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("storetest: start postgres container: %v", err)
	}

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("storetest: connection string: %v", err)
	}

	migrate(t, connStr)

	s, err := store.Connect(ctx, connStr)
	if err != nil {
		t.Fatalf("storetest: connect pool: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func migrate(t *testing.T, connStr string) {
	t.Helper()

	db, err := sql.Open("pgx", connStr)
	if err != nil {
		t.Fatalf("storetest: open migration connection: %v", err)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		t.Fatalf("storetest: set goose dialect: %v", err)
	}

	_, thisFile, _, _ := runtime.Caller(0)
	migrationsDir := filepath.Join(filepath.Dir(thisFile), "..", "..", "migrations")
	if err := goose.Up(db, migrationsDir); err != nil {
		t.Fatalf("storetest: run migrations: %v", err)
	}
}
