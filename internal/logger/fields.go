package logger

import (
	"log/slog"
	"strings"
	"time"
)

// Standard field keys for structured logging.
// Use these keys consistently so bootstrap lines can be queried alongside
// the server's own logs.
const (
	KeyBootID  = "boot_id"  // Identifier of one bootstrap run
	KeyStage   = "stage"    // Bootstrap stage name
	KeyTraceID = "trace_id" // OpenTelemetry trace ID
	KeySpanID  = "span_id"  // OpenTelemetry span ID

	KeyTarget   = "target"   // Dependency address (host:port)
	KeyAttempt  = "attempt"  // Poll attempt number
	KeyElapsed  = "elapsed"  // Time spent so far
	KeyDeadline = "deadline" // Configured deadline (0 = unbounded)

	KeyVersion = "version" // Schema version
	KeyApplied = "applied" // Number of migrations applied
	KeyDirty   = "dirty"   // Schema dirty flag

	KeyPath    = "path"    // File or directory path
	KeyCopied  = "copied"  // Files written by the materializer
	KeySkipped = "skipped" // Files already up to date
	KeyRemoved = "removed" // Stale files removed

	KeyCommand  = "command"   // Command line handed off or delegated to
	KeyExitCode = "exit_code" // Exit code of a delegated process

	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyReason     = "reason"      // Human readable failure reason
)

// Stage returns a slog.Attr for a bootstrap stage name
func Stage(name string) slog.Attr {
	return slog.String(KeyStage, name)
}

// Path returns a slog.Attr for file/directory path
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Command returns a slog.Attr for a command vector, space-joined.
func Command(argv []string) slog.Attr {
	return slog.String(KeyCommand, strings.Join(argv, " "))
}

// DurationMs returns a slog.Attr with the milliseconds elapsed since start.
func DurationMs(start time.Time) slog.Attr {
	return slog.Float64(KeyDurationMs, float64(time.Since(start).Microseconds())/1000.0)
}

// Err returns a slog.Attr for an error. Nil errors produce an empty attr
// which handlers drop.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
