// Package errs holds the error taxonomy shared by every booking, payment,
// proof, payout and dispute operation.
package errs

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation        Kind = "VALIDATION_ERROR"
	KindDateConflict      Kind = "DATE_CONFLICT"
	KindInvalidTransition Kind = "INVALID_TRANSITION"
	KindPaymentFailure    Kind = "PAYMENT_FAILURE"
	KindPayoutFailure     Kind = "PAYOUT_FAILURE"
	KindRaceLost          Kind = "RACE_LOST"
	KindNotFound          Kind = "NOT_FOUND"
	KindForbidden         Kind = "FORBIDDEN"
)

// Error is a classified domain error. Two errors match under errors.Is when
// their kinds are equal and the target carries no message of its own.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrDateConflict      = &Error{Kind: KindDateConflict}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrPaymentFailure    = &Error{Kind: KindPaymentFailure}
	ErrPayoutFailure     = &Error{Kind: KindPayoutFailure}
	ErrRaceLost          = &Error{Kind: KindRaceLost}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrForbidden         = &Error{Kind: KindForbidden}
)

func newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) *Error {
	return newf(KindValidation, format, args...)
}

func DateConflict(format string, args ...interface{}) *Error {
	return newf(KindDateConflict, format, args...)
}

func InvalidTransition(format string, args ...interface{}) *Error {
	return newf(KindInvalidTransition, format, args...)
}

func PaymentFailure(format string, args ...interface{}) *Error {
	return newf(KindPaymentFailure, format, args...)
}

func PayoutFailure(format string, args ...interface{}) *Error {
	return newf(KindPayoutFailure, format, args...)
}

func RaceLost(format string, args ...interface{}) *Error {
	return newf(KindRaceLost, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return newf(KindNotFound, format, args...)
}

func Forbidden(format string, args ...interface{}) *Error {
	return newf(KindForbidden, format, args...)
}

// Wrap classifies an underlying error without losing it.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first classified error in the chain, or an
// empty kind for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether the caller should re-check and retry the whole
// operation.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRaceLost)
}
