package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/juliehq/julie-entrypoint/internal/cli/output"
	"github.com/juliehq/julie-entrypoint/internal/cli/prompt"
	"github.com/juliehq/julie-entrypoint/pkg/config"
	"github.com/juliehq/julie-entrypoint/pkg/migrations"
)

var migrateYes bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations manually",
	Long: `Apply, roll back or inspect schema migrations outside of a bootstrap run.

With migrations.engine "command" only "up" is available; it runs the
configured migration command. With engine "migrate" every subcommand works
against the SQL files in migrations.dir.

Examples:
  # Apply pending migrations
  julie-entrypoint migrate up

  # Roll back the last two migrations
  julie-entrypoint migrate down 2

  # Recover from a failed migration
  julie-entrypoint migrate force 20260301`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrationConfig(cmd, func(ctx context.Context, cfg *config.Config) error {
			return migrateUp(ctx, cfg, printerFor(cmd))
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down [N]",
	Short: "Roll back N migrations (default 1)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n := 1
		if len(args) == 1 {
			v, err := strconv.Atoi(args[0])
			if err != nil || v < 1 {
				return fmt.Errorf("%w: N must be a positive integer, got %q", ErrUsage, args[0])
			}
			n = v
		}
		return withMigrationConfig(cmd, func(ctx context.Context, cfg *config.Config) error {
			if !migrateYes {
				ok, err := prompt.ConfirmDanger(fmt.Sprintf("Roll back %d migration(s)", n), "down")
				if err != nil || !ok {
					return err
				}
			}
			return migrateDown(ctx, cfg, n, printerFor(cmd))
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the current schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrationConfig(cmd, func(ctx context.Context, cfg *config.Config) error {
			return migrateVersion(ctx, cfg, printerFor(cmd))
		})
	},
}

var migrateForceCmd = &cobra.Command{
	Use:   "force VERSION",
	Short: "Set the schema version and clear the dirty flag",
	Long: `Record VERSION as applied without running anything. Use -1 for an empty
schema. Only needed after a migration failed half-way and was fixed by hand.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < -1 {
			return fmt.Errorf("%w: VERSION must be an integer >= -1, got %q", ErrUsage, args[0])
		}
		return withMigrationConfig(cmd, func(ctx context.Context, cfg *config.Config) error {
			if !migrateYes {
				ok, err := prompt.ConfirmDanger(fmt.Sprintf("Force schema version %d", v), "force")
				if err != nil || !ok {
					return err
				}
			}
			return migrateForce(ctx, cfg, v, printerFor(cmd))
		})
	},
}

func init() {
	migrateCmd.PersistentFlags().BoolVarP(&migrateYes, "yes", "y", false, "Do not ask for confirmation")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd, migrateForceCmd)
}

// errCommandEngine rejects operations the external engine cannot do.
var errCommandEngine = errors.New("only 'up' is supported with migrations.engine 'command'")

func withMigrationConfig(cmd *cobra.Command, fn func(context.Context, *config.Config) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	return fn(ctx, cfg)
}

func printerFor(cmd *cobra.Command) *output.Printer {
	return output.NewPrinter(cmd.OutOrStdout(), output.FormatTable, false)
}

func migrateUp(ctx context.Context, cfg *config.Config, p *output.Printer) error {
	if cfg.Migrations.Engine != "migrate" {
		c := &migrations.Command{Argv: cfg.Migrations.Command}
		if _, err := c.Run(ctx); err != nil {
			return err
		}
		p.Success("Migrations applied")
		return nil
	}

	r, err := openRunner(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	rep, err := r.Up(ctx)
	if err != nil {
		return err
	}
	p.Success(fmt.Sprintf("Applied %d migration(s); schema at %s", rep.Applied, versionString(rep)))
	return nil
}

func migrateDown(ctx context.Context, cfg *config.Config, n int, p *output.Printer) error {
	if cfg.Migrations.Engine != "migrate" {
		return errCommandEngine
	}
	r, err := openRunner(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	rep, err := r.Steps(ctx, -n)
	if err != nil {
		return err
	}
	p.Success(fmt.Sprintf("Rolled back %d migration(s); schema at %s", rep.Applied, versionString(rep)))
	return nil
}

func migrateVersion(ctx context.Context, cfg *config.Config, p *output.Printer) error {
	if cfg.Migrations.Engine != "migrate" {
		return errCommandEngine
	}
	r, err := openRunner(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	rep, err := r.Version()
	if err != nil {
		return err
	}
	return output.PrintKeyValues(p.Writer(), [][2]string{
		{"Version", versionString(rep)},
		{"Dirty", strconv.FormatBool(rep.Dirty)},
	})
}

func migrateForce(ctx context.Context, cfg *config.Config, v int, p *output.Printer) error {
	if cfg.Migrations.Engine != "migrate" {
		return errCommandEngine
	}
	r, err := openRunner(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	if err := r.Force(v); err != nil {
		return err
	}
	p.Success(fmt.Sprintf("Schema version forced to %d", v))
	return nil
}

func versionString(rep migrations.Report) string {
	if !rep.HasVersion {
		return "none"
	}
	s := strconv.FormatUint(uint64(rep.Version), 10)
	if rep.Dirty {
		s += " (dirty)"
	}
	return s
}
