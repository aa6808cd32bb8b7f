//go:build !unix

package handoff

import (
	"errors"
	"os"
	"os/signal"
)

const execSupported = false

func execve(string, []string, []string) error {
	return errors.New("exec is not supported on this platform")
}

func notifyForwarded() (<-chan os.Signal, func()) {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, os.Interrupt)
	return ch, func() { signal.Stop(ch) }
}
