// ABOUTME: Package documentation for the session layer.
// ABOUTME: Describes session ownership, ordering and store invariants.

// Package session tracks the client connections of the gateway.
//
// A Session wraps one Channel and serializes writes to it, so messages
// arrive at the client in the order Send was called. Closing a session
// releases its channel first and then removes it from the Store; sends on a
// closed session fail with ErrChannelClosed instead of blocking.
//
// The Store is the single source of truth for which sessions are alive. Its
// id index and creation-order list are updated together under one lock, and
// ResolveImplicit uses the creation order to pick a target for legacy
// message posts that carry no session id.
package session
