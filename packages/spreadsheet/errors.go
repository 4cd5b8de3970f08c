package spreadsheet

import (
	"errors"
	"fmt"
)

var (
	// ErrCircularReference rejects a formula that would read its own cell,
	// directly or through other formulas. The workbook is left unchanged.
	ErrCircularReference = errors.New("circular reference")

	// ErrInvalidState is returned by controller operations called in a mode
	// that does not allow them.
	ErrInvalidState = errors.New("operation not valid in current mode")

	// ErrOutOfBounds is returned when an address lies outside the grid
	// bounds.
	ErrOutOfBounds = errors.New("address outside grid bounds")
)

// AppErrorCode represents gRPC-style error codes for application-level errors.
// codes that make no sense for a local editor (unauthenticated, permission
// denied, ...) are skipped.
type AppErrorCode int

const (
	// OK indicates the operation completed successfully.
	OK AppErrorCode = 0

	// Unknown error.
	Unknown AppErrorCode = 2

	// InvalidArgument indicates the caller passed malformed input, such as
	// address text that does not decode.
	InvalidArgument AppErrorCode = 3

	// FailedPrecondition indicates the operation was rejected because the
	// workbook or controller is not in a state that allows it, e.g. a
	// circular reference or an edit outside edit mode.
	FailedPrecondition AppErrorCode = 9

	// OutOfRange means an address lies past the grid bounds.
	OutOfRange AppErrorCode = 11

	// Internal errors. Means some invariants expected by the engine have
	// been broken.
	Internal AppErrorCode = 13
)

func (c AppErrorCode) String() string {
	switch c {
	case OK:
		return "ok"
	case InvalidArgument:
		return "invalid argument"
	case FailedPrecondition:
		return "failed precondition"
	case OutOfRange:
		return "out of range"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// AppError represents errors at the application level (not formula
// evaluation errors, which live in cells as ErrorValue)
type AppError struct {
	Code    AppErrorCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil && e.Message != "" {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewApplicationError creates a new application error wrapping cause
func NewApplicationError(code AppErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// ErrorCodeOf returns the AppErrorCode carried by err, OK for nil and
// Unknown for errors that carry none.
func ErrorCodeOf(err error) AppErrorCode {
	if err == nil {
		return OK
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return Unknown
}
