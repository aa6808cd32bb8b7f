// Package database prepares the server's role and database using
// maintenance credentials. Every step checks the catalog first, so running
// it against an initialized cluster changes nothing.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql

	"github.com/juliehq/julie-entrypoint/internal/logger"
)

// Target is the role and database the server connects with.
type Target struct {
	Role     string
	Password string
	Database string
}

// Validate checks that role and database are named.
func (t Target) Validate() error {
	if t.Role == "" {
		return errors.New("database role is required")
	}
	if t.Database == "" {
		return errors.New("database name is required")
	}
	return nil
}

// Outcome reports which objects had to be created.
type Outcome struct {
	RoleCreated     bool
	DatabaseCreated bool
}

// Open connects to the maintenance database.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Ensure creates the role and database when missing and grants the role
// full privileges on the database. CREATE DATABASE cannot run inside a
// transaction, so statements are issued one by one.
func Ensure(ctx context.Context, db *sql.DB, t Target) (Outcome, error) {
	var out Outcome
	if err := t.Validate(); err != nil {
		return out, err
	}

	role := pgx.Identifier{t.Role}.Sanitize()
	name := pgx.Identifier{t.Database}.Sanitize()

	exists, err := rowExists(ctx, db, "SELECT 1 FROM pg_roles WHERE rolname = $1", t.Role)
	if err != nil {
		return out, fmt.Errorf("look up role: %w", err)
	}
	if !exists {
		stmt := "CREATE ROLE " + role + " LOGIN"
		if t.Password != "" {
			stmt += " PASSWORD " + quoteLiteral(t.Password)
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return out, fmt.Errorf("create role %s: %w", t.Role, err)
		}
		out.RoleCreated = true
		logger.Info("role created", "role", t.Role)
	}

	exists, err = rowExists(ctx, db, "SELECT 1 FROM pg_database WHERE datname = $1", t.Database)
	if err != nil {
		return out, fmt.Errorf("look up database: %w", err)
	}
	if !exists {
		if _, err := db.ExecContext(ctx, "CREATE DATABASE "+name+" OWNER "+role); err != nil {
			return out, fmt.Errorf("create database %s: %w", t.Database, err)
		}
		out.DatabaseCreated = true
		logger.Info("database created", "database", t.Database, "role", t.Role)
	}

	if _, err := db.ExecContext(ctx, "GRANT ALL PRIVILEGES ON DATABASE "+name+" TO "+role); err != nil {
		return out, fmt.Errorf("grant privileges: %w", err)
	}
	return out, nil
}

func rowExists(ctx context.Context, db *sql.DB, query string, arg any) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, query, arg).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, err
	default:
		return true, nil
	}
}

// quoteLiteral renders s as a SQL string literal. Utility statements such
// as CREATE ROLE do not accept bind parameters.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
