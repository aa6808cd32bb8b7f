package migrations

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Command runs an external migration engine, e.g. the server's
// `python manage.py migrate --noinput`. It inherits the environment, so the
// engine sees the same DB_* settings as the server.
type Command struct {
	Argv   []string
	Dir    string
	Env    []string // nil inherits os.Environ()
	Stdout io.Writer
	Stderr io.Writer
}

// Run executes the command and waits for it. The applied count is unknown.
func (c *Command) Run(ctx context.Context) (Report, error) {
	if len(c.Argv) == 0 {
		return Report{}, errors.New("migration command is empty")
	}

	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	cmd.Stdin = nil
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Report{Applied: UnknownApplied}, fmt.Errorf("%s exited with code %d", strings.Join(c.Argv, " "), exitErr.ExitCode())
		}
		return Report{Applied: UnknownApplied}, fmt.Errorf("run %s: %w", c.Argv[0], err)
	}
	return Report{Applied: UnknownApplied}, nil
}
