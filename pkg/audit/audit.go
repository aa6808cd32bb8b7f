// Package audit runs advisory deploy readiness checks against the server's
// production settings before the schema is touched.
package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Severity of a finding.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Finding is one failed check.
type Finding struct {
	Check    string
	Severity Severity
	Message  string
}

func (f Finding) String() string {
	return fmt.Sprintf("%s (%s): %s", f.Check, f.Severity, f.Message)
}

// Report collects the findings of one audit run.
type Report struct {
	Findings []Finding
}

// Errors returns the error-severity findings.
func (r Report) Errors() []Finding { return r.filter(SeverityError) }

// Warnings returns the warning-severity findings.
func (r Report) Warnings() []Finding { return r.filter(SeverityWarning) }

func (r Report) filter(s Severity) []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Severity == s {
			out = append(out, f)
		}
	}
	return out
}

// Err summarizes error findings, or returns nil when there are none.
func (r Report) Err() error {
	errs := r.Errors()
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, f := range errs {
		msgs[i] = f.Check + ": " + f.Message
	}
	return errors.New(strings.Join(msgs, "; "))
}

// Settings are the server settings the built-in checks inspect.
type Settings struct {
	SecretKey        string
	Debug            string // raw DEBUG value; the server treats "" as true
	AllowedHosts     []string
	ForceHTTPS       bool
	DatabasePassword string
	SSLMode          string
}

// Runner executes an external audit command and returns its combined
// output and error.
type Runner func(ctx context.Context, argv []string) ([]byte, error)

// Auditor runs the built-in checks and an optional external command.
type Auditor struct {
	settings Settings
	command  []string
	run      Runner
}

// New creates an Auditor. command may be empty.
func New(settings Settings, command []string) *Auditor {
	return &Auditor{settings: settings, command: command, run: execRunner}
}

// WithRunner replaces the command runner; used by tests.
func (a *Auditor) WithRunner(r Runner) *Auditor {
	a.run = r
	return a
}

// Run performs every check. It never returns an error itself: failures are
// findings, and the caller's policy decides what they mean.
func (a *Auditor) Run(ctx context.Context) Report {
	var rep Report
	for _, check := range builtinChecks {
		if f, failed := check(a.settings); failed {
			rep.Findings = append(rep.Findings, f)
		}
	}

	if len(a.command) > 0 {
		out, err := a.run(ctx, a.command)
		if err != nil {
			rep.Findings = append(rep.Findings, Finding{
				Check:    "command",
				Severity: SeverityError,
				Message:  commandMessage(a.command, out, err),
			})
		}
	}
	return rep
}

func commandMessage(argv []string, out []byte, err error) string {
	msg := fmt.Sprintf("%s: %v", strings.Join(argv, " "), err)
	if tail := lastLine(out); tail != "" {
		msg += ": " + tail
	}
	return msg
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func execRunner(ctx context.Context, argv []string) ([]byte, error) {
	var buf bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.Bytes(), err
}
