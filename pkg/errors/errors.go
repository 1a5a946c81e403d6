// Package errors defines the pipeline's error taxonomy: configuration
// errors, validation errors, and I/O errors are fatal with distinct exit
// codes; data-quality gaps are represented as null cells, never as errors.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig marks configuration errors: conflicting mappings,
	// unresolvable renames, malformed recipe files.
	ErrConfig = errors.New("configuration error")
	// ErrValidation marks post-assembly validation failures such as dtype
	// mismatches or non-unique join keys.
	ErrValidation = errors.New("validation error")
	// ErrIO marks source/reference file read and write failures.
	ErrIO = errors.New("io error")
)

// Exit codes by error class.
const (
	ExitIO         = 1
	ExitConfig     = 2
	ExitValidation = 3
)

// AppError wraps a sentinel with a descriptive message.
type AppError struct {
	Err     error
	Message string
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New wraps a sentinel with a message.
func New(sentinel error, message string) *AppError {
	return &AppError{Err: sentinel, Message: message}
}

// Newf wraps a sentinel with a formatted message.
func Newf(sentinel error, format string, args ...any) *AppError {
	return &AppError{Err: sentinel, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a sentinel classification to an underlying error while
// preserving it for errors.Is/As.
func Wrap(sentinel error, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	switch {
	case errors.Is(err, ErrConfig):
		return ExitConfig
	case errors.Is(err, ErrValidation):
		return ExitValidation
	default:
		return ExitIO
	}
}
