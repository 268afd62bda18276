// Package testenv connects integration tests to the real stores the country
// catalogue migrates between.
//
// Tests that need a store call one of the helpers below and are skipped when
// the store is not configured, so `go test ./...` passes on a bare machine.
package testenv

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	surrealdb "github.com/surrealdb/surrealdb.go"
)

const (
	// EnvSurrealDBURL is the SurrealDB endpoint, e.g. ws://localhost:8000.
	EnvSurrealDBURL = "MIGRATOR_SURREALDB_URL"

	// EnvPostgresDSN is the PostgreSQL connection string.
	EnvPostgresDSN = "MIGRATOR_POSTGRES_DSN"

	connectTimeout = 10 * time.Second
)

// SurrealDBURL returns the configured endpoint, or "" when there is none.
func SurrealDBURL() string {
	return os.Getenv(EnvSurrealDBURL)
}

// PostgresDSN returns the connection string or skips t.
func PostgresDSN(t testing.TB) string {
	t.Helper()
	dsn := os.Getenv(EnvPostgresDSN)
	if dsn == "" {
		t.Skipf("%s is not set", EnvPostgresDSN)
	}
	return dsn
}

// SurrealDB connects as root to namespace "migrator" and a database named
// after t, removes tables, and closes the connection when t ends. It skips t
// when no endpoint is configured.
func SurrealDB(t testing.TB, tables ...string) *surrealdb.DB {
	t.Helper()
	url := SurrealDBURL()
	if url == "" {
		t.Skipf("%s is not set", EnvSurrealDBURL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	db, err := New(ctx, url, "migrator", databaseName(t.Name()), tables...)
	if err != nil {
		t.Fatalf("testenv: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close(context.Background())
	})
	return db
}

// New connects to url, signs in as root, selects namespace and database and
// removes tables.
func New(ctx context.Context, url, namespace, database string, tables ...string) (*surrealdb.DB, error) {
	if database == "" {
		return nil, fmt.Errorf("database name must be specified")
	}

	db, err := surrealdb.FromEndpointURLString(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}
	if _, err := db.SignIn(ctx, &surrealdb.Auth{Username: "root", Password: "root"}); err != nil {
		_ = db.Close(ctx)
		return nil, fmt.Errorf("failed to sign in: %w", err)
	}
	if err := db.Use(ctx, namespace, database); err != nil {
		_ = db.Close(ctx)
		return nil, fmt.Errorf("failed to use database: %w", err)
	}

	// REMOVE TABLE does not take the table name as a parameter.
	for _, table := range tables {
		if _, err := surrealdb.Query[any](ctx, db, "REMOVE TABLE IF EXISTS "+table, nil); err != nil {
			_ = db.Close(ctx)
			return nil, fmt.Errorf("failed to remove table %s: %w", table, err)
		}
	}
	return db, nil
}

func databaseName(testName string) string {
	return strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(testName)
}
