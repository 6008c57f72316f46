package llm

import (
	"errors"
	"fmt"

	fgerrors "github.com/randalmurphal/casefile/pkg/flowgraph/errors"
)

// WorkerError is returned when a call fails after all attempts.
type WorkerError struct {
	Op       string
	Attempts int
	// ExitCode is the last exit status seen, -1 if the worker never exited.
	ExitCode int
	// Stderr is the last captured diagnostic output.
	Stderr string
	Err    error
}

func newWorkerError(op string, attempts int, err error) *WorkerError {
	we := &WorkerError{Op: op, Attempts: attempts, ExitCode: -1, Err: err}
	var procErr *fgerrors.ProcessError
	if errors.As(err, &procErr) {
		we.ExitCode = procErr.ExitCode
		we.Stderr = procErr.Stderr
	}
	return we
}

// Error implements the error interface.
func (e *WorkerError) Error() string {
	msg := fmt.Sprintf("llm %s failed after %d attempt(s) (exit %d)", e.Op, e.Attempts, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *WorkerError) Unwrap() error {
	return e.Err
}
