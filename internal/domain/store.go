package domain

import (
	"context"
	"time"
)

// Store is the persistence contract over the three doorbell maps: QR codes,
// sessions, and owner contacts. Every method is a single atomic operation;
// callers never compose a read with a later write to enforce an invariant -
// that is what TransitionSession is for.
//
// The in-memory implementation lives in internal/store; a Redis-backed
// implementation lives in internal/redis.
type Store interface {
	// QR codes

	CreateQRCode(ctx context.Context, qr QRCode) error
	GetQRCode(ctx context.Context, id string) (QRCode, error)
	// RecordScan increments the code's scan count and stamps last_scanned.
	RecordScan(ctx context.Context, id string, at time.Time) error

	// Sessions

	// CreateSession fails with ErrAlreadyExists on an ID collision.
	CreateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	// UpdateSession merges the patch field-wise and returns the new
	// snapshot, or ErrNotFound.
	UpdateSession(ctx context.Context, id string, patch SessionPatch) (Session, error)
	// TransitionSession applies the patch only if the session's status
	// equals from, returning ErrInvalidState otherwise. This is the sole
	// serialization point for status changes: concurrent callers racing on
	// the same session see exactly one winner.
	TransitionSession(ctx context.Context, id string, from SessionStatus, patch SessionPatch) (Session, error)
	// ListSessionsByStatus returns snapshots of all sessions currently in
	// the given status, in no particular order.
	ListSessionsByStatus(ctx context.Context, status SessionStatus) ([]Session, error)

	// Owner contacts

	UpsertOwnerContact(ctx context.Context, c OwnerContact) error
	GetOwnerContact(ctx context.Context, ownerID string) (OwnerContact, error)
}

// Sink is the narrow capability the dispatcher holds for a connected
// owner's live push channel. Implementations must be safe for concurrent
// Send calls.
type Sink interface {
	Send(payload []byte) error
	Close() error
}

// SinkRegistry tracks at most one live notification sink per owner.
// Registering replaces the previous sink; the replaced sink is not closed
// by the registry - tearing down the transport is the caller's job.
type SinkRegistry interface {
	Register(ownerID string, sink Sink) (replaced Sink)
	// Unregister removes the owner's sink only if it is still the given
	// one, so a stale connection cannot evict its replacement.
	Unregister(ownerID string, sink Sink)
	Get(ownerID string) (Sink, bool)
}
