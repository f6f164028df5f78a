package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the machine-checkable classification carried by every failure.
type ErrorKind string

const (
	ErrKindUnknownAction     ErrorKind = "unknown_action"
	ErrKindUnknownDepartment ErrorKind = "unknown_department"
	ErrKindNotFound          ErrorKind = "not_found"
	ErrKindSchema            ErrorKind = "schema"
	ErrKindStorage           ErrorKind = "storage"
	ErrKindBusy              ErrorKind = "busy"
	ErrKindUnsupportedFormat ErrorKind = "unsupported_format"
	ErrKindCorruptFile       ErrorKind = "corrupt_file"
)

// Error is the typed failure used across the engine and its collaborators.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrUnknownAction     = &Error{Kind: ErrKindUnknownAction}
	ErrUnknownDepartment = &Error{Kind: ErrKindUnknownDepartment}
	ErrNotFound          = &Error{Kind: ErrKindNotFound}
	ErrSchema            = &Error{Kind: ErrKindSchema}
	ErrStorage           = &Error{Kind: ErrKindStorage}
	ErrBusy              = &Error{Kind: ErrKindBusy}
	ErrUnsupportedFormat = &Error{Kind: ErrKindUnsupportedFormat}
	ErrCorruptFile       = &Error{Kind: ErrKindCorruptFile}
)

// Errorf builds a typed error with a formatted message.
func Errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying cause.
func Wrap(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the kind of a typed error, or "" for foreign errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsValidation reports whether err belongs to the validation family, raised
// before any store access.
func IsValidation(err error) bool {
	switch KindOf(err) {
	case ErrKindUnknownAction, ErrKindUnknownDepartment, ErrKindNotFound, ErrKindSchema:
		return true
	}
	return false
}

// IsRetryable reports whether err is an operational failure worth reissuing.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case ErrKindBusy, ErrKindStorage:
		return true
	}
	return false
}
