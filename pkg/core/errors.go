package core

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindRead           ErrorKind = "ReadError"
	KindWrite          ErrorKind = "WriteError"
	KindTransform      ErrorKind = "TransformError"
	KindConfiguration  ErrorKind = "ConfigurationError"
	KindRetryExhausted ErrorKind = "RetryExhausted"
)

// Error is a classified failure. Transient is set by the data-access layer
// for causes that may succeed on a later attempt.
type Error struct {
	Kind      ErrorKind
	Stage     string
	Transient bool
	Err       error
}

func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func TransientError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Transient: true, Err: err}
}

func (e *Error) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Stage, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain. Unclassified
// errors are reported as TransformError since they originate in user code.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransform
}

// IsTransient reports whether err may succeed on retry. Transform and
// configuration errors are never transient.
func IsTransient(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindRead, KindWrite:
		return e.Transient
	default:
		return false
	}
}

func IsConfigurationError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindConfiguration
}
