//go:build unix

package handoff

import (
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

const execSupported = true

// execve replaces the process image. Caught signals revert to their
// default disposition; stdio and the pid are kept.
func execve(path string, argv, env []string) error {
	return unix.Exec(path, argv, env)
}

// forwardedSignals covers gunicorn's control signals as well as shutdown.
var forwardedSignals = []os.Signal{
	syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP,
	syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGWINCH,
	syscall.SIGTTIN, syscall.SIGTTOU,
}

func notifyForwarded() (<-chan os.Signal, func()) {
	ch := make(chan os.Signal, 8)
	signal.Notify(ch, forwardedSignals...)
	return ch, func() { signal.Stop(ch) }
}
