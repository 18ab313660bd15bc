package domain

import "errors"

var (
	// ErrNotFound covers unknown QR codes, sessions, and owner contacts.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists signals a session ID collision on create. IDs are
	// generated from UUIDs, so hitting this is an invariant violation.
	ErrAlreadyExists = errors.New("already exists")
	// ErrForbidden signals a responder that is not the session's owner.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidState signals a transition that is not legal from the
	// session's current status, including double responses.
	ErrInvalidState = errors.New("invalid state")
)
