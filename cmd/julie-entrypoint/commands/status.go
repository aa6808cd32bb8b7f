package commands

import (
	"context"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/juliehq/julie-entrypoint/internal/cli/output"
	"github.com/juliehq/julie-entrypoint/pkg/bootstrap/assets"
	"github.com/juliehq/julie-entrypoint/pkg/bootstrap/gate"
	"github.com/juliehq/julie-entrypoint/pkg/config"
)

var (
	statusOutput  string
	statusTimeout time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show bootstrap status",
	Long: `Report what a bootstrap run would find right now: whether the database
answers, the schema version (migrate engine only) and whether the liveness
marker is present. Exits 0 regardless; use it for diagnosis, not probing.

Examples:
  julie-entrypoint status
  julie-entrypoint status -o json`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json|yaml)")
	statusCmd.Flags().DurationVar(&statusTimeout, "timeout", 2*time.Second, "Database probe timeout")
}

// BootstrapStatus is the status report.
type BootstrapStatus struct {
	Database      string `json:"database" yaml:"database"`
	Reachable     bool   `json:"reachable" yaml:"reachable"`
	Error         string `json:"error,omitempty" yaml:"error,omitempty"`
	SchemaVersion string `json:"schema_version,omitempty" yaml:"schema_version,omitempty"`
	SchemaDirty   bool   `json:"schema_dirty,omitempty" yaml:"schema_dirty,omitempty"`
	Marker        string `json:"marker" yaml:"marker"`
	MarkerPresent bool   `json:"marker_present" yaml:"marker_present"`
}

func (s BootstrapStatus) Headers() []string { return []string{"Check", "Value"} }

func (s BootstrapStatus) Rows() [][]string {
	db := "unreachable"
	if s.Database == "" {
		db = "not configured"
	} else if s.Reachable {
		db = "reachable"
	}
	rows := [][]string{{"Database", s.Database}, {"Database state", db}}
	if s.Error != "" {
		rows = append(rows, []string{"Error", s.Error})
	}
	if s.SchemaVersion != "" {
		rows = append(rows, []string{"Schema version", s.SchemaVersion}, []string{"Schema dirty", strconv.FormatBool(s.SchemaDirty)})
	}
	return append(rows,
		[]string{"Marker", s.Marker},
		[]string{"Marker present", strconv.FormatBool(s.MarkerPresent)},
	)
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOutput)
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

	status := collectStatus(cmd.Context(), cfg, statusTimeout)
	return output.NewPrinter(cmd.OutOrStdout(), format, false).Print(status)
}

func collectStatus(ctx context.Context, cfg *config.Config, timeout time.Duration) BootstrapStatus {
	target := gateTarget(cfg)
	status := BootstrapStatus{
		Marker:        filepath.Join(cfg.Assets.StaticRoot, cfg.Assets.Marker),
		MarkerPresent: assets.New(nil, assetsConfig(cfg)).MarkerPresent(),
	}
	if !target.Declared() {
		return status
	}
	status.Database = target.Address()

	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	prober := &gate.TCPProber{DialTimeout: timeout}
	if err := prober.Probe(pctx, target); err != nil {
		status.Error = err.Error()
		return status
	}
	status.Reachable = true

	if cfg.Migrations.Engine != "migrate" {
		return status
	}
	r, err := openRunner(pctx, cfg)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	defer func() { _ = r.Close() }()
	rep, err := r.Version()
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.SchemaVersion = versionString(rep)
	status.SchemaDirty = rep.Dirty
	return status
}
