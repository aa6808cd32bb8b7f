//go:build integration

package migrations

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// Shared PostgreSQL container for all integration tests in this package.
var sharedDSN string

func TestMain(m *testing.M) {
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("julie_test"),
		tcpostgres.WithUsername("julie_test"),
		tcpostgres.WithPassword("julie_test"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
		os.Exit(1)
	}

	sharedDSN, err = ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = ctr.Terminate(ctx)
		fmt.Fprintf(os.Stderr, "failed to get connection string: %v\n", err)
		os.Exit(1)
	}

	exitCode := m.Run()

	if err := ctr.Terminate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to terminate container: %v\n", err)
	}
	os.Exit(exitCode)
}

func writeMigrations(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
	}
	return dir
}

func TestRunnerUpIsIdempotent(t *testing.T) {
	ctx := context.Background()
	dir := writeMigrations(t, map[string]string{
		"1_accounts.up.sql":   "CREATE TABLE it_accounts (id BIGSERIAL PRIMARY KEY);",
		"1_accounts.down.sql": "DROP TABLE it_accounts;",
		"2_sessions.up.sql":   "CREATE TABLE it_sessions (id BIGSERIAL PRIMARY KEY);",
		"2_sessions.down.sql": "DROP TABLE it_sessions;",
	})
	opts := Options{DSN: sharedDSN, Dir: dir, Table: "it_schema_migrations"}

	r, err := Open(ctx, opts)
	require.NoError(t, err)
	first, err := r.Up(ctx)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	assert.Equal(t, 2, first.Applied)
	assert.Equal(t, uint(2), first.Version)
	assert.False(t, first.Dirty)

	r, err = Open(ctx, opts)
	require.NoError(t, err)
	defer r.Close()

	second, err := r.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Applied)
	assert.Equal(t, uint(2), second.Version)

	down, err := r.Steps(ctx, -1)
	require.NoError(t, err)
	assert.Equal(t, 1, down.Applied)
	assert.Equal(t, uint(1), down.Version)
}

func TestRunnerFailingMigration(t *testing.T) {
	ctx := context.Background()
	dir := writeMigrations(t, map[string]string{
		"1_broken.up.sql":   "CREATE TABLE it_broken (;",
		"1_broken.down.sql": "SELECT 1;",
	})

	r, err := Open(ctx, Options{DSN: sharedDSN, Dir: dir, Table: "it_broken_migrations"})
	require.NoError(t, err)
	defer r.Close()

	rep, err := r.Up(ctx)
	require.Error(t, err)
	assert.True(t, rep.Dirty)

	// A dirty schema refuses further runs until forced.
	_, err = r.Up(ctx)
	assert.ErrorContains(t, err, "dirty")

	require.NoError(t, r.Force(-1))
	v, err := r.Version()
	require.NoError(t, err)
	assert.False(t, v.HasVersion)
}

func TestOpenMissingDir(t *testing.T) {
	_, err := Open(context.Background(), Options{DSN: sharedDSN, Dir: filepath.Join(t.TempDir(), "nope")})
	assert.ErrorContains(t, err, "migrations directory")
}
