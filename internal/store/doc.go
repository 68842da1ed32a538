// Package store owns the working set of conversation threads.
//
// # Overview
//
// Two layers:
//
//   - Index: the in-memory working set. Append, search, stats, and the
//     pin/archive/rate setters are synchronous operations over in-memory
//     state. The Index is the single owner of thread mutation; the router
//     and handoff tracker only produce events consumed here.
//
//   - SQLiteStore: the persistence boundary. Threads, messages, and
//     handoffs are written as they happen and the working set is rebuilt on
//     load by replaying each thread's messages, so derived fields are
//     always recomputed rather than trusted from disk.
//
// # Ordering
//
// Within a thread, messages are stored sorted by timestamp, not arrival
// order, to tolerate reconnect-induced reordering. Inserting any
// permutation of a message set yields the same stored order. Re-delivered
// message ids (reconnect replay) are ignored.
//
// # Derived fields
//
// message_count, participating_agents, primary_agent, per-agent usage
// stats, and last_message_preview are maintained incrementally on append.
// Typing messages update only the transient indicator and are never
// persisted. Stats aggregates over whatever subset the caller passes
// (typically a search result), so displayed statistics always match the
// displayed list.
package store
