// Package handoff records transitions of the responding agent within one
// conversation.
//
// A Tracker keeps the "current responder" cursor and emits an AgentHandoff
// whenever a newly arrived agent response names a different responder. In
// multi routing mode there is one cursor per agent stream, because parallel
// responses to the same query are independent first responders, not handoffs
// from each other.
//
// The cursor is deliberately re-derivable: Replay rebuilds it from a
// thread's message list, so crash or reload recovery never needs separate
// cursor persistence.
package handoff
