package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/juliehq/julie-entrypoint/internal/cli/output"
	"github.com/juliehq/julie-entrypoint/internal/cli/prompt"
	"github.com/juliehq/julie-entrypoint/pkg/config"
)

// menuAction is one entry of the operator menu.
type menuAction struct {
	Label       string
	Description string
	// Run is nil for the exit entry.
	Run func(ctx context.Context, cfg *config.Config, p *output.Printer) error
}

// selector picks a menu entry; replaced in tests.
var selector = prompt.Select

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Interactive maintenance menu",
	Long: `Pick maintenance tasks from a menu: migrations, database setup, status
and logs. Failed actions are reported and the menu is shown again.`,
	Args: cobra.NoArgs,
	RunE: runMenu,
}

func menuActions() []menuAction {
	return []menuAction{
		{
			Label:       "Apply migrations",
			Description: "Run pending schema migrations",
			Run:         migrateUp,
		},
		{
			Label:       "Roll back migrations",
			Description: "Revert the most recent migrations (migrate engine)",
			Run: func(ctx context.Context, cfg *config.Config, p *output.Printer) error {
				n, err := prompt.InputInt("How many", 1, 1)
				if err != nil {
					return err
				}
				ok, err := prompt.ConfirmDanger(fmt.Sprintf("Roll back %d migration(s)", n), "down")
				if err != nil || !ok {
					return err
				}
				return migrateDown(ctx, cfg, n, p)
			},
		},
		{
			Label:       "Show schema version",
			Description: "Current migration version and dirty flag (migrate engine)",
			Run:         migrateVersion,
		},
		{
			Label:       "Status",
			Description: "Database reachability and liveness marker",
			Run: func(ctx context.Context, cfg *config.Config, p *output.Printer) error {
				return p.Print(collectStatus(ctx, cfg, statusTimeout))
			},
		},
		{
			Label:       "Tail application log",
			Description: "Last 50 lines of the app log",
			Run: func(_ context.Context, cfg *config.Config, p *output.Printer) error {
				path, err := logPath(cfg, "app")
				if err != nil {
					return err
				}
				return showLogs(p.Writer(), path, 50, time.Time{})
			},
		},
		{Label: "Exit"},
	}
}

func runMenu(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}
	p := output.NewPrinter(cmd.OutOrStdout(), output.FormatTable, true)
	return menuLoop(cmd.Context(), cfg, p, menuActions())
}

func menuLoop(ctx context.Context, cfg *config.Config, p *output.Printer, actions []menuAction) error {
	options := make([]prompt.Option, len(actions))
	for i, a := range actions {
		options[i] = prompt.Option{Label: a.Label, Description: a.Description}
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		i, err := selector("julie maintenance", options)
		if prompt.IsAborted(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if actions[i].Run == nil {
			return nil
		}
		if err := actions[i].Run(ctx, cfg, p); err != nil {
			if prompt.IsAborted(err) {
				continue
			}
			p.Error(err.Error())
		}
	}
}
