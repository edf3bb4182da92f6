package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for categorizing errors
const (
	ErrConfig         = "CONFIG"
	ErrSSH            = "SSH"
	ErrExec           = "EXEC"
	ErrServerNotFound = "SERVER_NOT_FOUND"
	ErrAliasTarget    = "ALIAS_TARGET"
	ErrHookConfig     = "HOOK_CONFIG"
	ErrDeploy         = "DEPLOY"
	ErrTimeout        = "TIMEOUT"
	ErrLock           = "LOCK"
)

// Error represents a structured error with code, message, suggestion, and optional cause.
// Error() renders the multi-line CLI form:
//
//	✗ <What failed>
//
//	  <Why it failed - technical details>
//
//	  <How to fix it - actionable steps>
//
// Tool responses use OneLine instead.
type Error struct {
	Code       string
	Message    string
	Suggestion string
	Cause      error
}

// New creates a new structured error with the given code, message, and suggestion.
func New(code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
	}
}

// Wrap wraps an existing error with a message, defaulting to ErrSSH code.
func Wrap(err error, message string) *Error {
	return &Error{
		Code:    ErrSSH,
		Message: message,
		Cause:   err,
	}
}

// WrapWithCode wraps an existing error with a specific code, message, and suggestion.
func WrapWithCode(err error, code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
		Cause:      err,
	}
}

// Error implements the error interface with the multi-line CLI format.
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("✗ %s\n", e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Cause.Error()))
	}

	if e.Suggestion != "" {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Suggestion))
	}

	return b.String()
}

// Unwrap returns the underlying cause for use with errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsCode checks if an error is a structured Error with the given code.
func IsCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var smErr *Error
	if errors.As(err, &smErr) {
		return smErr.Code == code
	}
	return false
}

// CodeOf returns the code of the outermost structured Error in the chain, or "".
func CodeOf(err error) string {
	var smErr *Error
	if errors.As(err, &smErr) {
		return smErr.Code
	}
	return ""
}

// OneLine flattens an error into a single human-readable line.
// Structured errors render as "message: cause"; nested structured causes
// contribute only their message so the ✗ decoration never leaks.
func OneLine(err error) string {
	if err == nil {
		return ""
	}

	var parts []string
	for err != nil {
		var smErr *Error
		if !errors.As(err, &smErr) {
			parts = append(parts, err.Error())
			break
		}
		if smErr.Message != "" {
			parts = append(parts, smErr.Message)
		}
		err = smErr.Cause
	}

	line := strings.Join(parts, ": ")
	line = strings.ReplaceAll(line, "\r", " ")
	line = strings.ReplaceAll(line, "\n", " ")
	return strings.Join(strings.Fields(line), " ")
}

// ExitError carries a non-zero remote exit code out of a CLI command.
type ExitError struct {
	Code int
}

// NewExitError creates an error representing a command exit code.
func NewExitError(code int) *ExitError {
	return &ExitError{Code: code}
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// GetExitCode extracts the exit code from an ExitError in the chain.
func GetExitCode(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}
