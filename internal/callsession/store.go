// Package callsession keeps the pending order of each call between the order
// step and the caller's confirmation.
//
// Sessions are keyed by the telephony call id. A session exists only while a
// call is awaiting confirmation: it is created when an order is recognised
// and deleted on every terminal outcome, or by the [Reaper] once the caller
// has gone quiet for longer than the configured TTL.
package callsession

import (
	"context"
	"errors"
	"time"

	"github.com/MrWong99/callorder/internal/order"
)

// ErrNotFound is returned by [Store.Get] when no session exists for a call id.
var ErrNotFound = errors.New("callsession: session not found")

// Session is the state held for one call awaiting confirmation.
type Session struct {
	// CallID is the telephony call identifier.
	CallID string

	// Order is the assembled order read back to the caller.
	Order order.Order

	// RawUtterance is the caller's original order text, forwarded to the
	// kitchen for context.
	RawUtterance string

	// CreatedAt is when the order was first stored.
	CreatedAt time.Time

	// ConfirmAttempts counts unrecognised confirmation replies so far.
	ConfirmAttempts int
}

// Store persists sessions. Implementations must be safe for concurrent use,
// and operations on distinct call ids must not observe each other.
type Store interface {
	// Put creates or replaces the session for s.CallID.
	Put(ctx context.Context, s Session) error

	// Get returns the session for callID or [ErrNotFound].
	Get(ctx context.Context, callID string) (Session, error)

	// Delete removes the session for callID. Deleting an absent session is
	// not an error.
	Delete(ctx context.Context, callID string) error

	// Take atomically removes and returns the session for callID, or returns
	// [ErrNotFound]. Of two concurrent Takes for the same call exactly one
	// succeeds.
	Take(ctx context.Context, callID string) (Session, error)

	// Update applies fn to the session for callID and stores the result in
	// one atomic step, returning the updated session. It returns
	// [ErrNotFound] when no session exists, so a session removed by a
	// concurrent Take is never brought back. An error from fn leaves the
	// session unchanged and is returned as is.
	Update(ctx context.Context, callID string, fn func(*Session) error) (Session, error)

	// Len returns the number of stored sessions.
	Len() int
}

// Expirer is implemented by stores that can drop stale sessions in bulk.
type Expirer interface {
	// DeleteOlderThan removes every session created before cutoff and
	// returns how many were removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}
