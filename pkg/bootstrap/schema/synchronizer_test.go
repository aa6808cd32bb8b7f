package schema

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juliehq/julie-entrypoint/internal/logger"
	"github.com/juliehq/julie-entrypoint/pkg/audit"
	"github.com/juliehq/julie-entrypoint/pkg/bootstrap"
	"github.com/juliehq/julie-entrypoint/pkg/migrations"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := new(bytes.Buffer)
	logger.InitWithWriter(buf, "INFO", "text", false)
	t.Cleanup(func() { logger.InitWithWriter(&bytes.Buffer{}, "INFO", "text", false) })
	return buf
}

// fakeMigrator returns a fixed report and counts calls.
type fakeMigrator struct {
	rep   migrations.Report
	err   error
	calls int
}

func (m *fakeMigrator) Migrate(context.Context) (migrations.Report, error) {
	m.calls++
	return m.rep, m.err
}

type staticAuditor audit.Report

func (a staticAuditor) Run(context.Context) audit.Report { return audit.Report(a) }

type recordingObserver struct{ applied []int }

func (o *recordingObserver) MigrationsApplied(n int) { o.applied = append(o.applied, n) }

var failingAudit = staticAuditor{Findings: []audit.Finding{
	{Check: "debug", Severity: audit.SeverityError, Message: "DEBUG is enabled"},
}}

func TestApplyPendingMigrations_NothingPending(t *testing.T) {
	logs := captureLogs(t)
	m := &fakeMigrator{rep: migrations.Report{Applied: 0, Version: 7, HasVersion: true}}
	obs := &recordingObserver{}

	res := New(m, WithObserver(obs)).ApplyPendingMigrations(context.Background())

	assert.Equal(t, bootstrap.KindSuccess, res.Kind)
	assert.Equal(t, []int{0}, obs.applied)
	assert.Contains(t, logs.String(), "schema up to date")
	assert.Contains(t, logs.String(), "version=7")
	assert.Equal(t, 1, m.calls)
}

func TestApplyPendingMigrations_Applied(t *testing.T) {
	logs := captureLogs(t)
	m := &fakeMigrator{rep: migrations.Report{Applied: 3, Version: 9, HasVersion: true}}

	res := New(m).ApplyPendingMigrations(context.Background())

	assert.Equal(t, bootstrap.KindSuccess, res.Kind)
	assert.Contains(t, logs.String(), "migrations applied")
	assert.Contains(t, logs.String(), "applied=3")
}

func TestApplyPendingMigrations_UnknownCountNotObserved(t *testing.T) {
	captureLogs(t)
	obs := &recordingObserver{}
	m := MigratorFunc(func(context.Context) (migrations.Report, error) {
		return migrations.Report{Applied: migrations.UnknownApplied}, nil
	})

	res := New(m, WithObserver(obs)).ApplyPendingMigrations(context.Background())

	assert.Equal(t, bootstrap.KindSuccess, res.Kind)
	assert.Empty(t, obs.applied)
}

func TestApplyPendingMigrations_EngineFailureIsHard(t *testing.T) {
	captureLogs(t)
	cause := errors.New("relation \"accounts\" already exists")
	m := &fakeMigrator{rep: migrations.Report{Applied: migrations.UnknownApplied}, err: cause}

	res := New(m).ApplyPendingMigrations(context.Background())

	assert.True(t, res.IsHard())
	assert.ErrorIs(t, res.Err, cause)
	assert.Equal(t, "migration failed", res.Reason)
}

func TestApplyPendingMigrations_DirtyFailure(t *testing.T) {
	captureLogs(t)
	m := MigratorFunc(func(context.Context) (migrations.Report, error) {
		return migrations.Report{Version: 4, HasVersion: true, Dirty: true}, errors.New("syntax error")
	})

	res := New(m).ApplyPendingMigrations(context.Background())

	assert.True(t, res.IsHard())
	assert.Contains(t, res.Reason, "dirty")
}

func TestApplyPendingMigrations_DirtyWithoutErrorIsSoft(t *testing.T) {
	captureLogs(t)
	m := MigratorFunc(func(context.Context) (migrations.Report, error) {
		return migrations.Report{Version: 4, HasVersion: true, Dirty: true}, nil
	})

	res := New(m).ApplyPendingMigrations(context.Background())

	assert.Equal(t, bootstrap.KindSoftFailure, res.Kind)
}

func TestApplyPendingMigrations_Audit(t *testing.T) {
	t.Run("WarnPolicyDegradesButMigrates", func(t *testing.T) {
		logs := captureLogs(t)
		m := &fakeMigrator{}

		res := New(m, WithAudit(failingAudit, PolicyWarn)).ApplyPendingMigrations(context.Background())

		assert.Equal(t, bootstrap.KindSoftFailure, res.Kind)
		assert.Equal(t, "deploy audit failed", res.Reason)
		assert.Contains(t, logs.String(), "check=debug")
		assert.Equal(t, 1, m.calls)
	})

	t.Run("FailPolicyStopsBeforeMigrating", func(t *testing.T) {
		captureLogs(t)
		m := &fakeMigrator{}

		res := New(m, WithAudit(failingAudit, PolicyFail)).ApplyPendingMigrations(context.Background())

		assert.True(t, res.IsHard())
		assert.Zero(t, m.calls)
	})

	t.Run("OffPolicySkips", func(t *testing.T) {
		logs := captureLogs(t)
		m := MigratorFunc(func(context.Context) (migrations.Report, error) { return migrations.Report{}, nil })

		res := New(m, WithAudit(failingAudit, PolicyOff)).ApplyPendingMigrations(context.Background())

		assert.Equal(t, bootstrap.KindSuccess, res.Kind)
		assert.NotContains(t, logs.String(), "deploy check failed")
	})

	t.Run("WarningsOnlyStaySuccessful", func(t *testing.T) {
		logs := captureLogs(t)
		a := staticAuditor{Findings: []audit.Finding{
			{Check: "force_https", Severity: audit.SeverityWarning, Message: "off"},
		}}
		m := MigratorFunc(func(context.Context) (migrations.Report, error) { return migrations.Report{}, nil })

		res := New(m, WithAudit(a, PolicyFail)).ApplyPendingMigrations(context.Background())

		assert.Equal(t, bootstrap.KindSuccess, res.Kind)
		assert.Contains(t, logs.String(), "check=force_https")
	})

	t.Run("MigrationFailureOutranksAudit", func(t *testing.T) {
		captureLogs(t)
		m := MigratorFunc(func(context.Context) (migrations.Report, error) {
			return migrations.Report{}, errors.New("boom")
		})

		res := New(m, WithAudit(failingAudit, PolicyWarn)).ApplyPendingMigrations(context.Background())

		require.True(t, res.IsHard())
		assert.Equal(t, "migration failed", res.Reason)
	})
}

func TestSynchronizerDisabled(t *testing.T) {
	logs := captureLogs(t)

	res := New(nil).Run(context.Background())

	assert.Equal(t, bootstrap.KindSuccess, res.Kind)
	assert.Contains(t, logs.String(), "migrations disabled")
	assert.Equal(t, StageName, New(nil).Name())
}
