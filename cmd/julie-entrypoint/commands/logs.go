package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/juliehq/julie-entrypoint/pkg/config"
)

var (
	logsFollow bool
	logsLines  int
	logsSince  string
)

var logsCmd = &cobra.Command{
	Use:   "logs [NAME]",
	Short: "Tail the server's log files",
	Long: `Display and optionally follow one of the julie server's log files.

NAME is a key of logs.files (app, django, error, security by default) and
is resolved under logs.dir.

Examples:
  # Last 100 lines of the application log
  julie-entrypoint logs

  # Follow the error log
  julie-entrypoint logs error -f

  # Security events since a point in time
  julie-entrypoint logs security --since "2026-01-15T10:00:00Z"`,
	Args: cobra.MaximumNArgs(1),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		cfg, err := config.Load(cfgFile)
		if err != nil || len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return logNames(cfg), cobra.ShellCompDirectiveNoFileComp
	},
	RunE: runLogs,
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output")
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 100, "Number of lines to show")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show logs since timestamp (RFC3339 format)")
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	name := "app"
	if len(args) == 1 {
		name = args[0]
	}
	path, err := logPath(cfg, name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("log file not found: %s\nThe server may not have started yet or is logging elsewhere", path)
	}

	var since time.Time
	if logsSince != "" {
		since, err = time.Parse(time.RFC3339, logsSince)
		if err != nil {
			return fmt.Errorf("%w: invalid --since format (use RFC3339): %w", ErrUsage, err)
		}
	}

	if logsFollow {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return followLogs(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), path, logsLines, since)
	}
	return showLogs(cmd.OutOrStdout(), path, logsLines, since)
}

func logNames(cfg *config.Config) []string {
	names := make([]string, 0, len(cfg.Logs.Files))
	for k := range cfg.Logs.Files {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func logPath(cfg *config.Config, name string) (string, error) {
	file, ok := cfg.Logs.Files[name]
	if !ok {
		return "", fmt.Errorf("%w: unknown log %q (available: %s)", ErrUsage, name, strings.Join(logNames(cfg), ", "))
	}
	if filepath.IsAbs(file) {
		return file, nil
	}
	return filepath.Join(cfg.Logs.Dir, file), nil
}

// showLogs writes the last n lines of logFile that are not older than since.
func showLogs(w io.Writer, logFile string, n int, since time.Time) error {
	file, err := os.Open(logFile)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	lines, err := tailLines(file, n, since)
	if err != nil {
		return fmt.Errorf("error reading log file: %w", err)
	}
	for _, line := range lines {
		_, _ = fmt.Fprintln(w, line)
	}
	return nil
}

// tailLines keeps a ring of the last n matching lines. Lines without a
// recognizable timestamp are continuation lines (tracebacks) and follow the
// decision made for the entry they belong to.
func tailLines(r io.Reader, n int, since time.Time) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	ring := make([]string, 0, n)
	next := 0
	keep := since.IsZero()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !since.IsZero() {
			if ts := extractTimestamp(line); !ts.IsZero() {
				keep = !ts.Before(since)
			}
		}
		if !keep {
			continue
		}
		if len(ring) < n {
			ring = append(ring, line)
			continue
		}
		ring[next] = line
		next = (next + 1) % n
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return append(ring[next:], ring[:next]...), nil
}

// followLogs prints the tail of logFile and then every line appended to it
// until ctx ends.
func followLogs(ctx context.Context, w, status io.Writer, logFile string, initial int, since time.Time) error {
	if err := showLogs(w, logFile, initial, since); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(logFile); err != nil {
		return fmt.Errorf("failed to watch log file: %w", err)
	}

	file, err := os.Open(logFile)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end of log file: %w", err)
	}
	reader := bufio.NewReader(file)

	_, _ = fmt.Fprintf(status, "Following %s (Ctrl+C to stop)...\n", logFile)

	var partial string
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Write == 0 {
				continue
			}
			for {
				chunk, err := reader.ReadString('\n')
				if err != nil {
					partial += chunk
					break
				}
				_, _ = io.WriteString(w, partial+chunk)
				partial = ""
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher error: %w", err)
		}
	}
}

// Django's "[{asctime}]" prefix, with or without milliseconds.
const (
	djangoTime     = "2006-01-02 15:04:05"
	djangoTimeMsec = "2006-01-02 15:04:05,000"
)

// extractTimestamp finds the entry time of a log line: the bracketed Django
// asctime, an RFC3339 prefix, or a JSON "time" field. It returns the zero
// time when there is none.
func extractTimestamp(line string) time.Time {
	if strings.HasPrefix(line, "[") {
		if end := strings.IndexByte(line, ']'); end > 0 {
			stamp := line[1:end]
			for _, layout := range []string{djangoTimeMsec, djangoTime} {
				if t, err := time.ParseInLocation(layout, stamp, time.Local); err == nil {
					return t
				}
			}
		}
	}

	if field, _, _ := strings.Cut(line, " "); len(field) >= 20 {
		if t, err := time.Parse(time.RFC3339Nano, field); err == nil {
			return t
		}
	}

	const timeKey = `"time":"`
	if idx := strings.Index(line, timeKey); idx >= 0 {
		rest := line[idx+len(timeKey):]
		if end := strings.IndexByte(rest, '"'); end > 0 {
			if t, err := time.Parse(time.RFC3339Nano, rest[:end]); err == nil {
				return t
			}
		}
	}

	return time.Time{}
}
