package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/juliehq/julie-entrypoint/internal/cli/output"
	"github.com/juliehq/julie-entrypoint/pkg/config"
	"github.com/juliehq/julie-entrypoint/pkg/database"
)

var dbinitCmd = &cobra.Command{
	Use:   "dbinit",
	Short: "Create the server's database role and database",
	Long: `Connect with the maintenance credentials (database.admin.*) and create the
role database.user and the database database.name when they are missing,
then grant the role full privileges on the database. Safe to run repeatedly.

Examples:
  JULIE_DATABASE_ADMIN_PASSWORD=... julie-entrypoint dbinit`,
	Args: cobra.NoArgs,
	RunE: runDBInit,
}

func runDBInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}
	if cfg.Database.Host == "" {
		return fmt.Errorf("%w: database.host (DB_HOST) is not set", config.ErrInvalid)
	}

	db, err := database.Open(cmd.Context(), cfg.Database.AdminDSN())
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	out, err := database.Ensure(cmd.Context(), db, database.Target{
		Role:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Name,
	})
	if err != nil {
		return err
	}

	p := output.NewPrinter(cmd.OutOrStdout(), output.FormatTable, false)
	_ = output.PrintKeyValues(p.Writer(), [][2]string{
		{"Role", cfg.Database.User + created(out.RoleCreated)},
		{"Database", cfg.Database.Name + created(out.DatabaseCreated)},
	})
	p.Success("Database ready")
	return nil
}

func created(ok bool) string {
	if ok {
		return " (created)"
	}
	return " (exists)"
}
