package main

import (
	"fmt"
	"os"

	"github.com/juliehq/julie-entrypoint/cmd/julie-entrypoint/commands"
	_ "github.com/juliehq/julie-entrypoint/pkg/metrics/prometheus" // registers Prometheus metrics constructors
)

// Build-time variables injected via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		if commands.Reportable(err) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(commands.ExitCode(err))
	}
}
