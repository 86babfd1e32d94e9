package utils

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures that callers handle differently.
type ErrorKind string

const (
	KindInternal    ErrorKind = "internal"
	KindCorrupt     ErrorKind = "corrupt"
	KindUnavailable ErrorKind = "unavailable"
)

// AppError wraps an operation, its kind, a human-facing message and the
// underlying error.
type AppError struct {
	Op   string
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an internal AppError.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Kind: KindInternal, Msg: msg, Err: err}
}

// CorruptError marks data that could be read but not understood.
func CorruptError(op, msg string, err error) error {
	return &AppError{Op: op, Kind: KindCorrupt, Msg: msg, Err: err}
}

// UnavailableError marks a dependency that could not be reached.
func UnavailableError(op, msg string, err error) error {
	return &AppError{Op: op, Kind: KindUnavailable, Msg: msg, Err: err}
}

// IsKind reports whether any AppError in err's chain has the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var appErr *AppError
	for err != nil {
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Kind == kind {
			return true
		}
		err = appErr.Err
	}
	return false
}
