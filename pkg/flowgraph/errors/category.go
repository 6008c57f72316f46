// Package errors classifies failures so callers can pick a recovery path:
// retry transient failures, revise output that failed a structural check,
// stop on a broken generation contract, and surface anything else.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Category represents how an error should be handled.
type Category int

const (
	// CategoryTransient indicates retry will likely help.
	// Examples: worker spawn failure, non-zero exit, timeout, rate limit.
	CategoryTransient Category = iota

	// CategoryPermanent indicates retry won't help.
	// Examples: authentication failures, invalid configuration, cancellation.
	CategoryPermanent

	// CategoryRevisable indicates the output can be repaired by a targeted
	// revision pass. Examples: structural check failures.
	CategoryRevisable

	// CategoryContract indicates generated output broke its schema. The
	// affected step stops; revision is not attempted.
	CategoryContract
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	case CategoryRevisable:
		return "revisable"
	case CategoryContract:
		return "contract"
	default:
		return "unknown"
	}
}

// CategorizedError wraps an error with its category and context.
type CategorizedError struct {
	// Err is the underlying error.
	Err error

	// Category indicates how this error should be handled.
	Category Category

	// Retries is the number of attempts that have been made.
	Retries int

	// Context describes what operation was being attempted.
	Context string
}

// Error implements the error interface.
func (e *CategorizedError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (category: %s, attempts: %d)",
			e.Context, e.Err, e.Category, e.Retries)
	}
	return fmt.Sprintf("%s (category: %s, attempts: %d)",
		e.Err, e.Category, e.Retries)
}

// Unwrap returns the underlying error.
func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// NewCategorized creates a new categorized error.
func NewCategorized(err error, category Category, context string) *CategorizedError {
	return &CategorizedError{
		Err:      err,
		Category: category,
		Context:  context,
	}
}

// Transient creates a transient error.
func Transient(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryTransient, context)
}

// Permanent creates a permanent error.
func Permanent(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryPermanent, context)
}

// Revisable creates a revisable error.
func Revisable(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryRevisable, context)
}

// Contract creates a contract-violation error.
func Contract(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryContract, context)
}

// Categorize determines how an error should be handled.
// Unknown errors are permanent.
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category
	}

	if errors.Is(err, context.Canceled) {
		return CategoryPermanent
	}

	var procErr *ProcessError
	if errors.As(err, &procErr) {
		return CategoryTransient
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return CategoryTransient
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == 429, httpErr.StatusCode >= 500:
			return CategoryTransient
		default:
			return CategoryPermanent
		}
	}

	var structErr *StructuralError
	if errors.As(err, &structErr) {
		return CategoryRevisable
	}

	var schemaErr *SchemaViolationError
	if errors.As(err, &schemaErr) {
		return CategoryContract
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTransient
	}

	return CategoryPermanent
}

// IsRetryable reports whether the error should be retried.
func IsRetryable(err error) bool {
	return Categorize(err) == CategoryTransient
}

// IsRevisable reports whether a revision pass might repair the output.
func IsRevisable(err error) bool {
	return Categorize(err) == CategoryRevisable
}

// IsContract reports whether the error is a generation-contract violation.
func IsContract(err error) bool {
	return Categorize(err) == CategoryContract
}
