// Package session maintains the duplex connection between the desk and the
// conversation backend.
//
// # Lifecycle
//
// A Channel moves through a small set of states:
//
//	idle -> connecting -> authenticating -> open
//	                           |               |
//	                        failed        backing_off -> connecting ...
//
// Every connection attempt dials a fresh transport, mints a fresh credential,
// and performs the auth handshake before any conversational frame moves.
// After the backend acknowledges auth, the channel replays the latest routing
// preferences and flushes any frames buffered while disconnected, in the
// order they were submitted.
//
// # Reconnect policy
//
// Transport failures trigger reconnection with exponential backoff (doubling
// from a base delay up to a cap, plus jitter). A successful open resets the
// schedule. Credential rejection does not retry: the channel enters the
// terminal failed state, since re-presenting the same identity would only be
// rejected again.
//
// # Buffering
//
// The send buffer is bounded. When it fills, the oldest frame that is not a
// user message is evicted first; user messages are only dropped once the
// buffer holds nothing else. Close discards the buffer outright.
//
// Inbound frames fan out to subscribers in receipt order. A subscriber that
// stops draining its channel loses frames rather than stalling delivery to
// the others.
package session
