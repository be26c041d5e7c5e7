package errs

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies failures so callers can choose a recovery path.
type Kind string

const (
	KindValidation       Kind = "ERR_VALIDATION"
	KindIntegrity        Kind = "ERR_INTEGRITY"
	KindRiskLimit        Kind = "ERR_RISK_LIMIT"
	KindResource         Kind = "ERR_RESOURCE"
	KindTimeout          Kind = "ERR_TIMEOUT"
	KindInsufficientData Kind = "ERR_INSUFFICIENT_DATA"
)

// Error is a classified error. Op names the failing operation.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error with a message.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, op, format string, a ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, a...)}
}

// Wrap classifies err. Context deadline errors are always reported as KindTimeout.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost classified error in the chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether any classified error in the chain has the given kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}
