package commands

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/juliehq/julie-entrypoint/pkg/bootstrap/handoff"
	"github.com/juliehq/julie-entrypoint/pkg/config"
)

// Exit codes before handoff.
const (
	ExitFailure = 1
	ExitUsage   = 2
)

// ErrUsage marks command line mistakes.
var ErrUsage = errors.New("usage")

func flagError(_ *cobra.Command, err error) error {
	return fmt.Errorf("%w: %w", ErrUsage, err)
}

// ExitStatus carries a supervised server's exit code. It is not an error
// worth reporting.
type ExitStatus int

func (e ExitStatus) Error() string { return "server exited with status " + strconv.Itoa(int(e)) }

// ExitCode maps an Execute error to the process exit code.
func ExitCode(err error) int {
	var status ExitStatus
	switch {
	case err == nil:
		return 0
	case errors.As(err, &status):
		return int(status)
	case errors.Is(err, config.ErrInvalid), errors.Is(err, handoff.ErrEmptyCommand), errors.Is(err, ErrUsage):
		return ExitUsage
	default:
		return ExitFailure
	}
}

// Reportable reports whether err should be printed before exiting.
func Reportable(err error) bool {
	var status ExitStatus
	return err != nil && !errors.As(err, &status)
}
