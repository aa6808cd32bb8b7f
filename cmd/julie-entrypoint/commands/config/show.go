package config

import (
	"github.com/spf13/cobra"

	"github.com/juliehq/julie-entrypoint/internal/cli/output"
	"github.com/juliehq/julie-entrypoint/pkg/config"
)

const redacted = "<redacted>"

var showOutput string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Long: `Display the effective configuration after defaults, file and environment
have been merged. Passwords and the secret key are redacted.

Examples:
  # Show as YAML
  julie-entrypoint config show

  # Show as JSON
  julie-entrypoint config show --output json`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "yaml", "Output format (yaml|json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath(cmd))
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(showOutput)
	if err != nil {
		return err
	}

	cfg = redact(cfg)
	switch format {
	case output.FormatJSON:
		return output.PrintJSON(cmd.OutOrStdout(), cfg)
	default:
		return output.PrintYAML(cmd.OutOrStdout(), cfg)
	}
}

// redact returns a copy of cfg with credentials masked.
func redact(cfg *config.Config) *config.Config {
	c := *cfg
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return redacted
	}
	c.Database.Password = mask(c.Database.Password)
	c.Database.Admin.Password = mask(c.Database.Admin.Password)
	c.Audit.SecretKey = mask(c.Audit.SecretKey)
	return &c
}
