package handoff

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/juliehq/julie-entrypoint/internal/logger"
)

// supervise runs the server as a child, relays signals to it and returns
// its exit status. The child is not tied to ctx: termination is the
// server's decision once it has received the forwarded signal.
func (h *Handoff) supervise(path string, env []string) (int, error) {
	cmd := exec.Command(path, h.spec.Command[1:]...)
	cmd.Args = h.spec.Command
	cmd.Env = env
	cmd.Stdin = h.opts.Stdin
	cmd.Stdout = h.opts.Stdout
	cmd.Stderr = h.opts.Stderr

	sigs, stop := h.signals()
	defer stop()

	if h.opts.BeforeStart != nil {
		h.opts.BeforeStart()
	}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", path, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	for {
		select {
		case sig := <-sigs:
			logger.Debug("forwarding signal", "signal", sig.String())
			if err := cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
				logger.Warn("signal not delivered", "signal", sig.String(), logger.Err(err))
			}
		case err := <-done:
			return exitStatus(cmd.ProcessState, err)
		}
	}
}

// exitStatus maps a finished child to the code the entrypoint exits with.
// A child killed by a signal yields 128+signal, as a shell would report.
func exitStatus(state *os.ProcessState, waitErr error) (int, error) {
	if state == nil {
		return 0, waitErr
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal()), nil
	}
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return 0, waitErr
	}
	return state.ExitCode(), nil
}
