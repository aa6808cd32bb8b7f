// Package handoff starts the server once bootstrap has finished, either by
// replacing the entrypoint process or by supervising it as a child.
package handoff

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/juliehq/julie-entrypoint/internal/logger"
	"github.com/juliehq/julie-entrypoint/internal/telemetry"
	"github.com/juliehq/julie-entrypoint/pkg/bootstrap"
)

// StageName is the name the driver and logs use for this stage.
const StageName = "handoff"

// ErrEmptyCommand is returned when no server command was given.
var ErrEmptyCommand = errors.New("no command to hand off to")

// Mode selects how the server is started.
type Mode string

const (
	// ModeAuto execs where the platform supports it and supervises elsewhere.
	ModeAuto      Mode = "auto"
	ModeExec      Mode = "exec"
	ModeSupervise Mode = "supervise"
)

// Spec is the server command line, taken verbatim from the trailing
// arguments.
type Spec struct {
	Command []string
}

// NewSpec copies args into a Spec.
func NewSpec(args []string) (Spec, error) {
	if len(args) == 0 || args[0] == "" {
		return Spec{}, ErrEmptyCommand
	}
	return Spec{Command: append([]string(nil), args...)}, nil
}

func (s Spec) String() string { return strings.Join(s.Command, " ") }

// Options tune a Handoff.
type Options struct {
	Mode Mode
	// Env is the server environment; nil inherits os.Environ(). The
	// current trace context is added as TRACEPARENT when tracing is on.
	Env []string
	// BeforeStart runs right before the process is replaced or spawned.
	BeforeStart func()

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Handoff is the final bootstrap stage.
type Handoff struct {
	spec Spec
	opts Options

	lookPath func(string) (string, error)
	execve   func(path string, argv, env []string) error
	signals  func() (<-chan os.Signal, func())

	exitCode int
}

// New creates a Handoff for spec.
func New(spec Spec, opts Options) *Handoff {
	if opts.Mode == "" {
		opts.Mode = ModeAuto
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return &Handoff{
		spec:     spec,
		opts:     opts,
		lookPath: exec.LookPath,
		execve:   execve,
		signals:  notifyForwarded,
	}
}

// Name implements bootstrap.Stage.
func (h *Handoff) Name() string { return StageName }

// Run implements bootstrap.Stage.
func (h *Handoff) Run(ctx context.Context) bootstrap.Result {
	if len(h.spec.Command) == 0 {
		return bootstrap.HardFailure("cannot start server", ErrEmptyCommand)
	}
	if err := ctx.Err(); err != nil {
		return bootstrap.HardFailure("interrupted before handoff", err)
	}

	path, err := h.lookPath(h.spec.Command[0])
	if err != nil {
		return bootstrap.HardFailure("cannot start server", err)
	}

	env := h.opts.Env
	if env == nil {
		env = os.Environ()
	}
	env = telemetry.InjectEnv(ctx, env)

	mode := h.resolveMode()
	args := []any{logger.KeyCommand, h.spec.String(), "mode", string(mode)}
	if lc := logger.FromContext(ctx); lc != nil {
		args = append(args, logger.KeyElapsed, lc.Elapsed().Round(time.Millisecond))
	}
	logger.InfoCtx(ctx, "handing off to server", args...)

	if mode == ModeExec {
		if h.opts.BeforeStart != nil {
			h.opts.BeforeStart()
		}
		// Only returns on failure.
		err := h.execve(path, h.spec.Command, env)
		return bootstrap.HardFailure("cannot start server", fmt.Errorf("exec %s: %w", path, err))
	}

	code, err := h.supervise(path, env)
	if err != nil {
		return bootstrap.HardFailure("cannot start server", err)
	}
	h.exitCode = code
	return bootstrap.Success()
}

// ExitCode is the supervised child's exit status once Run has returned.
func (h *Handoff) ExitCode() int { return h.exitCode }

func (h *Handoff) resolveMode() Mode {
	switch h.opts.Mode {
	case ModeSupervise:
		return ModeSupervise
	case ModeExec:
		if !execSupported {
			logger.Warn("exec handoff unsupported on this platform, supervising instead")
			return ModeSupervise
		}
		return ModeExec
	default:
		if execSupported {
			return ModeExec
		}
		return ModeSupervise
	}
}
