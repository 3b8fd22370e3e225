package core

import (
	"errors"
	"fmt"
)

// Kind classifies a punch failure so the API layer can map it to a status
// code and the client knows whether a retry can help.
type Kind int

const (
	// KindValidation covers malformed or missing request fields. Not retryable.
	KindValidation Kind = iota
	// KindBusiness covers rejections by the state machine or the pre-flight
	// gates (duplicate punch, outside geofence, face not matched). Not
	// retryable; the message carries the specific reason.
	KindBusiness
	// KindNotFound covers lookups against records that do not exist.
	KindNotFound
	// KindTransient covers infrastructure failures (database, upstream face
	// process, network). Safe to retry: nothing was committed.
	KindTransient
)

// Domains keep identity-proof and persistence failures distinguishable in
// surfaced messages. A failed punch write must never read as "face not
// recognized".
const (
	DomainAttendance = "attendance"
	DomainIdentity   = "identity"
	DomainLocation   = "location"
)

// Error is the typed failure the punch path returns.
type Error struct {
	Kind    Kind
	Domain  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Domain, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Domain, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrValidation constructs a validation error in the attendance domain.
func ErrValidation(msg string) *Error {
	return &Error{Kind: KindValidation, Domain: DomainAttendance, Message: msg}
}

// ErrBusiness constructs a business rejection with its originating domain.
func ErrBusiness(domain, msg string) *Error {
	return &Error{Kind: KindBusiness, Domain: domain, Message: msg}
}

// ErrNotFound constructs a not-found error.
func ErrNotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Domain: DomainAttendance, Message: msg}
}

// ErrTransient wraps an infrastructure failure that is safe to retry.
func ErrTransient(domain, msg string, err error) *Error {
	return &Error{Kind: KindTransient, Domain: domain, Message: msg, Err: err}
}

// KindOf extracts the Kind from an error chain, defaulting to transient so
// unknown failures stay retryable rather than being surfaced as final.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindTransient
}

// MessageOf extracts the human-readable reason from an error chain.
func MessageOf(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Message
	}
	return "internal error"
}
