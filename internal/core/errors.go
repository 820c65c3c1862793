package core

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the core. The HTTP layer maps NotFound to 404,
// Invalid to 400 and Conflict to 409. Invalid errors are never retried;
// Conflict callers may retry after refetching.

// ErrKind tags a core error with its dispatch class.
type ErrKind int

const (
	KindNotFound ErrKind = iota + 1
	KindInvalid
	KindConflict
)

func (k ErrKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalid:
		return "invalid"
	case KindConflict:
		return "conflict"
	}
	return "unknown"
}

// Error is the core error type. Match with errors.As or KindOf.
type Error struct {
	Kind ErrKind
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

// NotFound builds a NotFound error.
func NotFound(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// Invalid builds an Invalid (precondition violated) error.
func Invalid(format string, args ...interface{}) error {
	return &Error{Kind: KindInvalid, Msg: fmt.Sprintf(format, args...)}
}

// Conflict builds a Conflict (concurrent modification) error.
func Conflict(format string, args ...interface{}) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the error kind, or 0 when err is not a core error.
func KindOf(err error) ErrKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return 0
}

// IsNotFound reports whether err is a NotFound core error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsInvalid reports whether err is an Invalid core error.
func IsInvalid(err error) bool { return KindOf(err) == KindInvalid }

// IsConflict reports whether err is a Conflict core error.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }
