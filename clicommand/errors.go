package clicommand

import (
	"errors"
	"fmt"
	"io"

	"github.com/fussgo/fuss/graph"
)

// Exit codes returned by fuss.
const (
	ExitCodeOK       = 0
	ExitCodeError    = 1
	ExitCodeAPIError = 2
)

// ExitError is used to signal that the command should exit with the exit code
// in `code`. It also wraps an error, which can be used to provide more context.
type ExitError struct {
	code  int
	inner error
}

// NewExitError returns ExitError with the given code and wrapped error.
func NewExitError(code int, err error) *ExitError {
	return &ExitError{code: code, inner: err}
}

// Code returns the exit code.
func (e *ExitError) Code() int {
	return e.code
}

// Error prints the message of the wrapped error. It ignores the exit code.
func (e *ExitError) Error() string {
	return e.inner.Error()
}

// Unwrap returns the wrapped error.
func (e *ExitError) Unwrap() error {
	return e.inner
}

// Is will return true if the target is an ExitError with the same code.
func (e *ExitError) Is(target error) bool {
	terr, ok := target.(*ExitError)
	return ok && e.code == terr.code
}

// apiExitError gives errors reported by the Graph API their own exit code.
func apiExitError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *graph.RemoteAPIError
	if errors.As(err, &apiErr) {
		return NewExitError(ExitCodeAPIError, err)
	}
	return err
}

// PrintMessageAndReturnExitCode prints the error message to w, preceded by
// "fuss: fatal: " and returns the exit code for the given error: the code
// of an ExitError, 0 for nil and 1 for anything else.
func PrintMessageAndReturnExitCode(w io.Writer, err error) int {
	if err == nil {
		return ExitCodeOK
	}

	fmt.Fprintf(w, "fuss: fatal: %s\n", err) //nolint:errcheck // nowhere else to report it

	if eerr := new(ExitError); errors.As(err, &eerr) {
		return eerr.Code()
	}

	return ExitCodeError
}
