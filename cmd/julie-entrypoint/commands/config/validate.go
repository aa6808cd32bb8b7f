package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/juliehq/julie-entrypoint/pkg/audit"
	"github.com/juliehq/julie-entrypoint/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the configuration and run the built-in deploy audit checks.

Audit findings are listed but never fail the command; the bootstrap's
audit.policy decides what they mean at startup.

Examples:
  julie-entrypoint config validate
  julie-entrypoint config validate --config /etc/julie/entrypoint.yaml`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := configPath(cmd)
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	// Built-in checks only; the external audit command needs the server.
	rep := audit.New(cfg.AuditSettings(), nil).Run(cmd.Context())

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", path)
	_, _ = fmt.Fprintln(out, "Validation: OK")

	if len(rep.Findings) > 0 {
		_, _ = fmt.Fprintln(out, "\nDeploy audit:")
		for _, f := range rep.Findings {
			_, _ = fmt.Fprintf(out, "  - %s\n", f)
		}
	}

	database := "not configured"
	if cfg.Database.Host != "" {
		database = fmt.Sprintf("%s:%d/%s", cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)
	}
	_, _ = fmt.Fprintf(out, "\nConfiguration summary:\n")
	_, _ = fmt.Fprintf(out, "  Database:        %s\n", database)
	_, _ = fmt.Fprintf(out, "  Gate probe:      %s\n", cfg.Gate.Probe)
	_, _ = fmt.Fprintf(out, "  Migrations:      %s\n", migrationsSummary(cfg))
	_, _ = fmt.Fprintf(out, "  Audit policy:    %s\n", cfg.Audit.Policy)
	_, _ = fmt.Fprintf(out, "  Handoff mode:    %s\n", cfg.Handoff.Mode)
	_, _ = fmt.Fprintf(out, "  Log level:       %s\n", cfg.Logging.Level)

	return nil
}

func migrationsSummary(cfg *config.Config) string {
	if !cfg.Migrations.Enabled {
		return "disabled"
	}
	return cfg.Migrations.Engine
}
