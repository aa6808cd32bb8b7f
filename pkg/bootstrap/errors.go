package bootstrap

// StageError is returned by Driver.Run when a stage fails hard.
type StageError struct {
	Stage  string
	Reason string
	Err    error
}

func (e *StageError) Error() string {
	msg := e.Reason
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg += ": " + e.Err.Error()
		}
	}
	return e.Stage + ": " + msg
}

func (e *StageError) Unwrap() error { return e.Err }
