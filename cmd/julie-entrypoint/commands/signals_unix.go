//go:build unix

package commands

import (
	"os"
	"os/signal"
	"syscall"
)

// ignoreBrokenPipe keeps a closed stdout or stderr from killing the
// entrypoint. The signal is caught rather than ignored so the exec'd server
// starts with the default disposition.
func ignoreBrokenPipe() {
	signal.Notify(make(chan os.Signal, 1), syscall.SIGPIPE)
}
