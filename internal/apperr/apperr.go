// Package apperr defines the error taxonomy shared by the lifecycle services.
//
// Validation and precondition errors are resolved locally and carry no ledger
// side effects; ledger and persistence errors wrap the underlying transport
// detail while presenting a human-readable message of their own.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and HTTP mapping decisions.
type Kind int

const (
	// KindValidation marks malformed input, caught before any ledger call.
	KindValidation Kind = iota + 1
	// KindNotFound marks a missing record.
	KindNotFound
	// KindConflict marks state that has already advanced incompatibly.
	KindConflict
	// KindPrecondition marks a failed guard: not yet releasable, already
	// finalized, insufficient balance, nothing to claim.
	KindPrecondition
	// KindLedger marks a submission or confirmation failure.
	KindLedger
	// KindPersistence marks an unreachable or failing durable store.
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindPrecondition:
		return "precondition"
	case KindLedger:
		return "ledger"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// Error is a classified error with a user-facing message. The wrapped cause,
// if any, keeps the raw transport detail available to operators without
// leaking it into the message itself.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets sentinel errors created with New match wrapped copies of themselves
// by kind and message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// New creates a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a classified error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind from an error chain, or 0 when unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsKind reports whether the error chain contains the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
