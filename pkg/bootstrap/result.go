package bootstrap

import "fmt"

// Kind classifies the outcome of a stage.
type Kind int

const (
	// KindSuccess lets the driver proceed.
	KindSuccess Kind = iota
	// KindSoftFailure is logged as a warning; the driver proceeds.
	KindSoftFailure
	// KindHardFailure aborts bootstrap before the server starts.
	KindHardFailure
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindSoftFailure:
		return "soft_failure"
	case KindHardFailure:
		return "hard_failure"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Result is the outcome of one stage. The zero value is a success.
type Result struct {
	Kind   Kind
	Reason string // short, human readable
	Err    error  // underlying cause, may be nil
}

// Success constructs a successful Result.
func Success() Result {
	return Result{Kind: KindSuccess}
}

// SoftFailure constructs a Result the driver warns about and moves past.
func SoftFailure(reason string, err error) Result {
	return Result{Kind: KindSoftFailure, Reason: reason, Err: err}
}

// HardFailure constructs a Result that stops bootstrap.
func HardFailure(reason string, err error) Result {
	return Result{Kind: KindHardFailure, Reason: reason, Err: err}
}

// IsHard reports whether the result stops bootstrap.
func (r Result) IsHard() bool { return r.Kind == KindHardFailure }

// Message joins reason and cause for a single log line.
func (r Result) Message() string {
	switch {
	case r.Err == nil:
		return r.Reason
	case r.Reason == "":
		return r.Err.Error()
	default:
		return r.Reason + ": " + r.Err.Error()
	}
}
