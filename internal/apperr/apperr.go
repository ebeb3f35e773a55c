// Package apperr defines the error taxonomy shared by the booking and
// demand workflows. Conflicts are expected, recoverable outcomes the
// caller may retry; internal errors must propagate unchanged.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	// KindValidation marks malformed or missing input. Fails fast,
	// before any side effect.
	KindValidation Kind = "VALIDATION"

	// KindNotFound marks a referenced entity that does not exist.
	KindNotFound Kind = "NOT_FOUND"

	// KindForbidden marks a caller lacking ownership or role.
	KindForbidden Kind = "FORBIDDEN"

	// KindConflict marks a business-rule violation: insufficient seats,
	// non-open ride/demand, duplicate active request/offer, or a stale
	// version on a concurrent write.
	KindConflict Kind = "CONFLICT"

	// KindInternal marks a persistence or infrastructure failure.
	KindInternal Kind = "INTERNAL"
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind from err, unwrapping as needed. Errors that
// carry no Kind are treated as internal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

func IsValidation(err error) bool { return KindOf(err) == KindValidation }
func IsNotFound(err error) bool   { return KindOf(err) == KindNotFound }
func IsForbidden(err error) bool  { return KindOf(err) == KindForbidden }
func IsConflict(err error) bool   { return KindOf(err) == KindConflict }
