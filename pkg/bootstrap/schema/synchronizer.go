// Package schema brings the database schema up to date before the server
// starts, optionally gated by a deploy readiness audit.
package schema

import (
	"context"
	"fmt"
	"time"

	"github.com/juliehq/julie-entrypoint/internal/logger"
	"github.com/juliehq/julie-entrypoint/pkg/audit"
	"github.com/juliehq/julie-entrypoint/pkg/bootstrap"
	"github.com/juliehq/julie-entrypoint/pkg/migrations"
)

// StageName is the name the driver and logs use for this stage.
const StageName = "schema"

// Policy decides what failed audit checks mean.
type Policy string

const (
	PolicyWarn Policy = "warn" // error findings degrade the stage
	PolicyFail Policy = "fail" // error findings abort before migrating
	PolicyOff  Policy = "off"
)

// Migrator applies every pending migration without prompting.
type Migrator interface {
	Migrate(ctx context.Context) (migrations.Report, error)
}

// MigratorFunc adapts a function to Migrator.
type MigratorFunc func(ctx context.Context) (migrations.Report, error)

func (f MigratorFunc) Migrate(ctx context.Context) (migrations.Report, error) { return f(ctx) }

// Auditor runs the deploy readiness checks.
type Auditor interface {
	Run(ctx context.Context) audit.Report
}

// Observer is told how many migrations a run applied.
type Observer interface {
	MigrationsApplied(n int)
}

// Synchronizer is the schema stage.
type Synchronizer struct {
	migrator Migrator
	auditor  Auditor
	policy   Policy
	observer Observer
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithAudit audits with a before migrating; p decides what failures mean.
func WithAudit(a Auditor, p Policy) Option {
	return func(s *Synchronizer) {
		s.auditor = a
		s.policy = p
	}
}

// WithObserver attaches an Observer.
func WithObserver(o Observer) Option {
	return func(s *Synchronizer) { s.observer = o }
}

// New creates a Synchronizer. A nil migrator makes the stage a no-op.
func New(m Migrator, opts ...Option) *Synchronizer {
	s := &Synchronizer{migrator: m, policy: PolicyOff}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements bootstrap.Stage.
func (s *Synchronizer) Name() string { return StageName }

// Run implements bootstrap.Stage.
func (s *Synchronizer) Run(ctx context.Context) bootstrap.Result {
	return s.ApplyPendingMigrations(ctx)
}

// ApplyPendingMigrations audits (if configured) and migrates. A migration
// failure is hard; a failed audit is soft unless the policy is fail.
func (s *Synchronizer) ApplyPendingMigrations(ctx context.Context) bootstrap.Result {
	degraded := s.audit(ctx)
	if degraded.IsHard() {
		return degraded
	}

	if s.migrator == nil {
		logger.InfoCtx(ctx, "migrations disabled")
		return degraded
	}

	start := time.Now()
	rep, err := s.migrator.Migrate(ctx)
	if err != nil {
		if rep.Dirty {
			return bootstrap.HardFailure("migration failed, schema left dirty", err)
		}
		return bootstrap.HardFailure("migration failed", err)
	}

	if s.observer != nil && rep.Applied != migrations.UnknownApplied {
		s.observer.MigrationsApplied(rep.Applied)
	}

	args := []any{logger.KeyDurationMs, time.Since(start).Milliseconds()}
	if rep.Applied != migrations.UnknownApplied {
		args = append(args, logger.KeyApplied, rep.Applied)
	}
	if rep.HasVersion {
		args = append(args, logger.KeyVersion, rep.Version)
	}
	switch {
	case rep.Applied == 0:
		logger.InfoCtx(ctx, "schema up to date", args...)
	default:
		logger.InfoCtx(ctx, "migrations applied", args...)
	}

	if rep.Dirty {
		return bootstrap.SoftFailure("schema marked dirty",
			fmt.Errorf("version %d needs a manual force", rep.Version))
	}
	return degraded
}

// audit returns Success, a SoftFailure to carry past migrations, or a
// HardFailure that stops the stage.
func (s *Synchronizer) audit(ctx context.Context) bootstrap.Result {
	if s.auditor == nil || s.policy == PolicyOff {
		return bootstrap.Success()
	}

	rep := s.auditor.Run(ctx)
	for _, f := range rep.Findings {
		logger.WarnCtx(ctx, "deploy check failed",
			"check", f.Check,
			"severity", string(f.Severity),
			logger.KeyReason, f.Message)
	}

	err := rep.Err()
	if err == nil {
		return bootstrap.Success()
	}
	if s.policy == PolicyFail {
		return bootstrap.HardFailure("deploy audit failed", err)
	}
	return bootstrap.SoftFailure("deploy audit failed", err)
}
