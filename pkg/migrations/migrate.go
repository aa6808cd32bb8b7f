// Package migrations runs schema migrations, either SQL files through
// golang-migrate or the server's own migration command.
package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql
)

// UnknownApplied is reported when the engine does not say how many
// migrations it applied.
const UnknownApplied = -1

// Report describes the schema after a run.
type Report struct {
	Applied    int  // migrations applied by this run, or UnknownApplied
	Version    uint // current version, valid when HasVersion
	HasVersion bool
	Dirty      bool
}

// Options locate the database and the migration files.
type Options struct {
	DSN          string
	Dir          string
	Table        string
	DatabaseName string
}

// versionSource is the part of a golang-migrate source driver used to
// count migrations between two versions.
type versionSource interface {
	First() (uint, error)
	Next(version uint) (uint, error)
}

// Runner wraps a golang-migrate instance over a directory of SQL files.
// golang-migrate takes a PostgreSQL advisory lock around every run, so
// replicas starting together apply each migration once.
type Runner struct {
	db  *sql.DB
	m   *migrate.Migrate
	src versionSource
}

// Open connects to the database and prepares the migration source.
func Open(ctx context.Context, opts Options) (*Runner, error) {
	if opts.Table == "" {
		opts.Table = "schema_migrations"
	}

	db, err := sql.Open("pgx", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable: opts.Table,
		DatabaseName:    opts.DatabaseName,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	if _, err := os.Stat(opts.Dir); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations directory: %w", err)
	}
	src, err := iofs.New(os.DirFS(opts.Dir), ".")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		_ = src.Close()
		_ = db.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return &Runner{db: db, m: m, src: src}, nil
}

// Close releases the source and the database connection.
func (r *Runner) Close() error {
	srcErr, dbErr := r.m.Close()
	return errors.Join(srcErr, dbErr)
}

// Up applies all pending migrations. Nothing pending is not an error.
func (r *Runner) Up(ctx context.Context) (Report, error) {
	return r.run(ctx, func() error { return r.m.Up() })
}

// Steps applies n migrations forward (n > 0) or rolls back -n (n < 0).
func (r *Runner) Steps(ctx context.Context, n int) (Report, error) {
	return r.run(ctx, func() error { return r.m.Steps(n) })
}

// Force sets the version without running migrations and clears the dirty
// flag. Used to recover from a failed migration.
func (r *Runner) Force(version int) error {
	if err := r.m.Force(version); err != nil {
		return fmt.Errorf("force version %d: %w", version, err)
	}
	return nil
}

// Version returns the current schema version.
func (r *Runner) Version() (Report, error) {
	v, dirty, err := r.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return Report{}, nil
	}
	if err != nil {
		return Report{}, fmt.Errorf("failed to get migration version: %w", err)
	}
	return Report{Version: v, HasVersion: true, Dirty: dirty}, nil
}

func (r *Runner) run(ctx context.Context, op func() error) (Report, error) {
	before, err := r.Version()
	if err != nil {
		return Report{}, err
	}
	if before.Dirty {
		return before, fmt.Errorf("schema is dirty at version %d; fix it and run 'migrate force'", before.Version)
	}

	// golang-migrate stops between migrations when GracefulStop fires.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			select {
			case r.m.GracefulStop <- true:
			default:
			}
		case <-done:
		}
	}()

	opErr := op()
	if opErr != nil && !errors.Is(opErr, migrate.ErrNoChange) {
		after, _ := r.Version()
		return after, fmt.Errorf("migration failed: %w", opErr)
	}

	after, err := r.Version()
	if err != nil {
		return Report{}, err
	}
	after.Applied = distance(r.src, before, after)
	return after, nil
}

// distance counts the migrations between two reports in either direction.
func distance(src versionSource, before, after Report) int {
	switch {
	case before.HasVersion == after.HasVersion && before.Version == after.Version:
		return 0
	case !before.HasVersion:
		return countFromStart(src, after.Version)
	case !after.HasVersion:
		return countFromStart(src, before.Version)
	case after.Version > before.Version:
		return countBetween(src, before.Version, after.Version)
	default:
		return countBetween(src, after.Version, before.Version)
	}
}

func countFromStart(src versionSource, to uint) int {
	v, err := src.First()
	if err != nil {
		return UnknownApplied
	}
	if v == to {
		return 1
	}
	n := countBetween(src, v, to)
	if n == UnknownApplied {
		return n
	}
	return n + 1
}

// countBetween returns how many Next steps lead from 'from' to 'to'.
func countBetween(src versionSource, from, to uint) int {
	n := 0
	for v := from; v != to; n++ {
		next, err := src.Next(v)
		if err != nil || next <= v || next > to {
			return UnknownApplied
		}
		v = next
	}
	return n
}
