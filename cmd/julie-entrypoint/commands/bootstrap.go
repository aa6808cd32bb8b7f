package commands

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/juliehq/julie-entrypoint/internal/logger"
	"github.com/juliehq/julie-entrypoint/internal/telemetry"
	"github.com/juliehq/julie-entrypoint/pkg/audit"
	"github.com/juliehq/julie-entrypoint/pkg/bootstrap"
	"github.com/juliehq/julie-entrypoint/pkg/bootstrap/assets"
	"github.com/juliehq/julie-entrypoint/pkg/bootstrap/gate"
	"github.com/juliehq/julie-entrypoint/pkg/bootstrap/handoff"
	"github.com/juliehq/julie-entrypoint/pkg/bootstrap/schema"
	"github.com/juliehq/julie-entrypoint/pkg/config"
	"github.com/juliehq/julie-entrypoint/pkg/metrics"
	"github.com/juliehq/julie-entrypoint/pkg/migrations"
)

// BootIDEnv exports the bootstrap run id to the server.
const BootIDEnv = "JULIE_BOOT_ID"

func runBootstrap(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}
	spec, err := handoff.NewSpec(args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	ignoreBrokenPipe()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootID := uuid.NewString()
	ctx = logger.WithContext(ctx, logger.NewLogContext(bootID))

	shutdown, err := InitTelemetry(ctx, cfg, bootID)
	if err != nil {
		logger.WarnCtx(ctx, "tracing disabled", logger.Err(err))
	} else {
		defer func() { _ = shutdown(context.Background()) }()
	}

	ctx, span := telemetry.StartSpan(ctx, "bootstrap")
	defer span.End()
	telemetry.SetAttributes(ctx, attribute.String(telemetry.AttrBootID, bootID))

	p := newPipeline(cfg, spec, bootID)
	logger.InfoCtx(ctx, "bootstrap starting",
		logger.KeyVersion, Version,
		"stages", strings.Join(p.driver.Stages(), ","))

	if err := p.driver.Run(ctx); err != nil {
		return err
	}
	if code := p.handoff.ExitCode(); code != 0 {
		return ExitStatus(code)
	}
	return nil
}

// pipeline is the assembled bootstrap sequence.
type pipeline struct {
	driver  *bootstrap.Driver
	handoff *handoff.Handoff
}

func newPipeline(cfg *config.Config, spec handoff.Spec, bootID string) *pipeline {
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}
	obs := metrics.NewBootstrapMetrics()

	g := gate.New(gateTarget(cfg), newProber(cfg), gate.Config{
		Interval: cfg.Gate.Interval,
		Deadline: cfg.Gate.Deadline,
	})

	var schemaOpts []schema.Option
	if cfg.Audit.Policy != string(schema.PolicyOff) {
		schemaOpts = append(schemaOpts,
			schema.WithAudit(audit.New(cfg.AuditSettings(), cfg.Audit.Command), schema.Policy(cfg.Audit.Policy)))
	}

	a := assets.New(nil, assetsConfig(cfg))

	h := handoff.New(spec, handoff.Options{
		Mode:        handoff.Mode(cfg.Handoff.Mode),
		Env:         setEnv(os.Environ(), BootIDEnv, bootID),
		BeforeStart: func() { _ = logger.Close() },
	})

	var driverOpts []bootstrap.Option
	if obs != nil {
		g.SetObserver(obs)
		a.SetObserver(obs)
		schemaOpts = append(schemaOpts, schema.WithObserver(obs))
		driverOpts = append(driverOpts, bootstrap.WithObserver(obs))
	}
	driverOpts = append(driverOpts, bootstrap.WithFlush(func(ctx context.Context) {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logger.WarnCtx(ctx, "metrics not exported", logger.Err(err))
		}
		if err := telemetry.Flush(ctx); err != nil {
			logger.WarnCtx(ctx, "traces not flushed", logger.Err(err))
		}
	}))

	s := schema.New(newMigrator(cfg), schemaOpts...)

	return &pipeline{
		driver:  bootstrap.NewDriver([]bootstrap.Stage{g, s, a, h}, driverOpts...),
		handoff: h,
	}
}

func gateTarget(cfg *config.Config) gate.Target {
	return gate.Target{Host: cfg.Database.Host, Port: cfg.Database.Port}
}

func newProber(cfg *config.Config) gate.Prober {
	if cfg.Gate.Probe == "postgres" {
		return &gate.PostgresProber{DSN: cfg.Database.DSN()}
	}
	return &gate.TCPProber{DialTimeout: cfg.Gate.DialTimeout, Window: cfg.Gate.ProbeWindow}
}

// newMigrator returns nil when migrations are disabled.
func newMigrator(cfg *config.Config) schema.Migrator {
	if !cfg.Migrations.Enabled {
		return nil
	}
	if cfg.Migrations.Engine == "migrate" {
		return schema.MigratorFunc(func(ctx context.Context) (migrations.Report, error) {
			r, err := openRunner(ctx, cfg)
			if err != nil {
				return migrations.Report{Applied: migrations.UnknownApplied}, err
			}
			defer func() { _ = r.Close() }()
			return r.Up(ctx)
		})
	}
	c := &migrations.Command{Argv: cfg.Migrations.Command}
	return schema.MigratorFunc(c.Run)
}

func openRunner(ctx context.Context, cfg *config.Config) (*migrations.Runner, error) {
	return migrations.Open(ctx, migrations.Options{
		DSN:          cfg.Database.DSN(),
		Dir:          cfg.Migrations.Dir,
		Table:        cfg.Migrations.Table,
		DatabaseName: cfg.Database.Name,
	})
}

// assetsConfig keeps only the marker when asset collection is disabled.
func assetsConfig(cfg *config.Config) assets.Config {
	ac := assets.Config{
		StaticRoot: cfg.Assets.StaticRoot,
		Marker:     cfg.Assets.Marker,
	}
	if cfg.Assets.Enabled {
		ac.Sources = cfg.Assets.Sources
		ac.Manifest = cfg.Assets.Manifest
		ac.Clear = cfg.Assets.Clear
	}
	return ac
}

// setEnv returns env with key set to value, replacing earlier entries.
func setEnv(env []string, key, value string) []string {
	out := make([]string, 0, len(env)+1)
	for _, kv := range env {
		if name, _, _ := strings.Cut(kv, "="); name != key {
			out = append(out, kv)
		}
	}
	return append(out, key+"="+value)
}
