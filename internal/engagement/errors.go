// Package engagement is the client-side half of the reaction, pin, and
// read-tracking protocols. Every mutation is applied to the local cache
// first, then pushed to the remote store; a remote failure rolls the cache
// back to its pre-mutation state. Reconciliation replaces cached state one
// entity at a time, keyed by id, so it can never clobber an in-flight
// optimistic update on an unrelated entity.
package engagement

import "errors"

var (
	// ErrRateLimited means the local abuse guard refused the attempt before
	// any remote call was made.
	ErrRateLimited = errors.New("too many attempts, slow down")

	// ErrToggleInFlight means a toggle for the same (message, user, emoji)
	// key has not completed yet. Same-key toggles are serialized locally.
	ErrToggleInFlight = errors.New("toggle already in flight")

	// ErrPermissionDenied mirrors the server-side check so the UI can refuse
	// before a round trip.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrAlreadyExists and ErrNotFound are returned by remotes when another
	// actor won a toggle race. The engine treats both as acceptable
	// outcomes, not failures.
	ErrAlreadyExists = errors.New("already exists")
	ErrNotFound      = errors.New("not found")
)
