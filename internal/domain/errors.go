package domain

import (
	"errors"
	"fmt"
)

// ErrKind classifies a domain error without carrying a distinct Go type per
// kind, mirroring the kinds-not-types taxonomy the resolution pipeline is
// specified against.
type ErrKind int

const (
	KindInvalidArgument ErrKind = iota
	KindInvalidHandle
	KindDbAccess
	KindHashTableTooSmall
	KindStreamCorrupt
	KindFetchError
	KindEvaluationTimeout
	KindPoisoned
	KindNotAvailable
)

func (k ErrKind) String() string {
	switch k {
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindInvalidHandle:
		return "InvalidHandle"
	case KindDbAccess:
		return "DbAccess"
	case KindHashTableTooSmall:
		return "HashTableTooSmall"
	case KindStreamCorrupt:
		return "StreamCorrupt"
	case KindFetchError:
		return "FetchError"
	case KindEvaluationTimeout:
		return "EvaluationTimeout"
	case KindPoisoned:
		return "Poisoned"
	case KindNotAvailable:
		return "NotAvailable"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying error with the operation it occurred in and its
// taxonomy kind, so callers can branch with errors.Is against the sentinels
// below while still getting a useful message and %w chain.
type Error struct {
	Kind ErrKind
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

// Is supports errors.Is(err, domain.ErrPoisoned) style checks against the
// sentinel values declared below, by comparing kinds.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewError builds an Error for the given operation and kind, optionally
// wrapping a cause.
func NewError(op string, kind ErrKind, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Sentinel values usable with errors.Is; their Op is intentionally empty so
// equality only checks Kind (see Error.Is).
var (
	ErrInvalidArgument  = &Error{Kind: KindInvalidArgument}
	ErrInvalidHandle    = &Error{Kind: KindInvalidHandle}
	ErrDbAccess         = &Error{Kind: KindDbAccess}
	ErrHashTableTooSmall = &Error{Kind: KindHashTableTooSmall}
	ErrStreamCorrupt    = &Error{Kind: KindStreamCorrupt}
	ErrFetchError       = &Error{Kind: KindFetchError}
	ErrEvaluationTimeout = &Error{Kind: KindEvaluationTimeout}
	ErrPoisoned         = &Error{Kind: KindPoisoned}
	ErrNotAvailable     = &Error{Kind: KindNotAvailable}
)

// KindOf extracts the ErrKind from err if it (or something it wraps) is a
// *Error, reporting ok=false otherwise.
func KindOf(err error) (ErrKind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return 0, false
}
