package errors

import (
	"fmt"
	"strings"
)

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("HTTP %d at %s: %s", e.StatusCode, e.Endpoint, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// ProcessError reports a worker subprocess that could not be started or
// exited abnormally.
type ProcessError struct {
	// Op is "spawn" or "exit".
	Op string
	// ExitCode is the process exit status, -1 when it never ran or was killed.
	ExitCode int
	// Stderr is the captured diagnostic stream, trimmed.
	Stderr string
	Err    error
}

// Error implements the error interface.
func (e *ProcessError) Error() string {
	msg := fmt.Sprintf("worker %s failed (exit %d)", e.Op, e.ExitCode)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ProcessError) Unwrap() error {
	return e.Err
}

// TimeoutError indicates an operation exceeded its deadline.
type TimeoutError struct {
	Operation string
	Duration  string
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s: %s", e.Duration, e.Operation)
}

// StructuralError reports generated output missing something the next
// stage depends on.
type StructuralError struct {
	Phase  string
	Issues []string
}

// Error implements the error interface.
func (e *StructuralError) Error() string {
	return fmt.Sprintf("%s failed structural checks: %s", e.Phase, strings.Join(e.Issues, "; "))
}

// SchemaViolationError reports generated output that does not match its
// declared schema.
type SchemaViolationError struct {
	Schema string
	Issues []string
}

// Error implements the error interface.
func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("output does not match schema %s: %s", e.Schema, strings.Join(e.Issues, "; "))
}
