// Package fault defines the coded domain errors shared by the permit
// ledger, the lifecycle state machine and the closeout engine. Callers
// match on the kind with KindOf or Is rather than on message text.
package fault

import (
	"errors"
	"fmt"
)

// Kind identifies a class of domain failure.
type Kind string

const (
	// NotFound means the referenced permit, closeout or signature does
	// not exist in the ledger.
	NotFound Kind = "not_found"

	// AlreadyExists means a create collided with an existing record.
	AlreadyExists Kind = "already_exists"

	// InvalidInput covers malformed or out-of-enum request data,
	// including unknown review lanes and unrecognised statuses.
	InvalidInput Kind = "invalid_input"

	// InvalidStateTransition means the requested status is not
	// reachable from the record's current status.
	InvalidStateTransition Kind = "invalid_state_transition"

	// AlreadyPaid guards the single-payment invariant on permit fees.
	AlreadyPaid Kind = "already_paid"

	// AlreadyVerified means a document or signature has already passed
	// verification and cannot be replaced.
	AlreadyVerified Kind = "already_verified"

	// DocumentTypeNotRequired means an upload named a document type the
	// closeout's risk profile does not ask for.
	DocumentTypeNotRequired Kind = "document_type_not_required"

	// InspectionNotApproved means closeout was initiated from a failed
	// final inspection.
	InspectionNotApproved Kind = "inspection_not_approved"

	// Conflict means an optimistic write lost the race: the record
	// changed between the read and the put. The caller re-reads and
	// retries.
	Conflict Kind = "conflict"

	// CollaboratorUnavailable wraps infrastructure failures from the
	// document, signature, notification, archive or AI collaborators.
	CollaboratorUnavailable Kind = "collaborator_unavailable"

	// CannotClose means the closure gate failed; Details lists what is
	// missing.
	CannotClose Kind = "cannot_close"
)

// Error is a domain error with a matchable kind and an optional list of
// detail strings (used by CannotClose to enumerate missing items).
type Error struct {
	Kind    Kind
	Msg     string
	Details []string
	wrapped error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.wrapped)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.wrapped }

// Is makes errors.Is(err, &Error{Kind: k}) match on kind alone.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// New builds a domain error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error, preserving the chain.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), wrapped: err}
}

// WithDetails returns a copy of e carrying the detail list.
func (e *Error) WithDetails(details ...string) *Error {
	c := *e
	c.Details = append([]string(nil), details...)
	return &c
}

// KindOf extracts the kind from an error chain, or "" when the chain
// carries no domain error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return IsKind(err, NotFound)
}

// DetailsOf returns the detail list from the first domain error in the
// chain, or nil.
func DetailsOf(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}
