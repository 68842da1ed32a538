// Package protocol defines the shared vocabulary of the conversation engine.
//
// # Overview
//
// Every component speaks in terms of this package: the session channel
// encodes and decodes Frames, the router reasons about AgentIdentity values,
// and the store persists Messages and AgentHandoffs.
//
// # Kinds
//
// Conversational kinds flow into threads:
//
//	user_message, agent_response, ai_response, typing, system
//
// Wire-only kinds are session plumbing and never reach a thread:
//
//	auth, auth_ack, preferences
//
// typing is ephemeral: it drives transient UI state and is never persisted.
//
// # Wire format
//
// Frames are flat JSON objects with a "type" discriminator:
//
//	{"type": "user_message", "id": "...", "timestamp": "...", "content": "..."}
//	{"type": "auth", "token": "<short-lived credential>"}
//	{"type": "preferences", "routingMode": "auto", "selectedAgents": [...]}
//
// DecodeFrame returns ErrUnknownKind for unrecognized discriminators; the
// session channel drops such frames and logs a protocol violation rather
// than crashing.
//
// # Metadata ordinals
//
// Confidence (low/medium/high) and Complexity (simple/moderate/complex) are
// ordinal strings. Confidence.Score gives the numeric encoding (1..3) used
// when the store averages confidence per agent. All AgentMetadata fields are
// optional: absence means unknown, never zero.
package protocol
