package chat

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies errors surfaced to the UI layer.
type Kind string

const (
	// KindTransientIO means storage or realtime is temporarily unreachable.
	KindTransientIO Kind = "TRANSIENT_IO"
	// KindValidation means the request was rejected before any I/O.
	KindValidation Kind = "VALIDATION"
	// KindConflictIgnorable is a duplicate insert that converged anyway.
	KindConflictIgnorable Kind = "CONFLICT_IGNORABLE"
	// KindPermanentWrite means the write was rejected for good.
	KindPermanentWrite Kind = "PERMANENT_WRITE_FAILURE"
)

// Collaborator sentinels. Storage and transport implementations wrap these
// so component boundaries can classify without knowing the backend.
var (
	ErrDuplicate = errors.New("duplicate record")
	ErrRejected  = errors.New("write rejected")
	ErrNotFound  = errors.New("not found")
)

// Error is a classified failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Validation returns a validation error for op.
func Validation(op, reason string) error {
	return &Error{Kind: KindValidation, Op: op, Err: errors.New(reason)}
}

// Classify converts a collaborator error into a classified Error.
// Context cancellation is returned unchanged: it is not a failure of the
// collaborator, and callers discard such results.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	switch {
	case errors.Is(err, ErrDuplicate):
		return &Error{Kind: KindConflictIgnorable, Op: op, Err: err}
	case errors.Is(err, ErrRejected), errors.Is(err, ErrNotFound):
		return &Error{Kind: KindPermanentWrite, Op: op, Err: err}
	default:
		return &Error{Kind: KindTransientIO, Op: op, Err: err}
	}
}

// KindOf returns the kind of a classified error, or "" for other errors.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// IsTransient reports whether err is a TransientIO error.
func IsTransient(err error) bool { return KindOf(err) == KindTransientIO }

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsConflict reports whether err is an ignorable conflict.
func IsConflict(err error) bool { return KindOf(err) == KindConflictIgnorable }

// IsPermanent reports whether err is a permanent write failure.
func IsPermanent(err error) bool { return KindOf(err) == KindPermanentWrite }
