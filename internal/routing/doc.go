// Package routing decides which agents answer each user query.
//
// # Overview
//
// Two pieces work together:
//
//   - Preferences: the validated routing policy (mode, selection,
//     context-awareness). Invariants are enforced at the setter, never
//     silently corrected: single keeps exactly one agent, multi refuses to
//     drop the last agent, auto forces the full known set.
//
//   - Router: for single/multi it returns the explicit target set (failing
//     synchronously on an empty selection); for auto it returns only an
//     advisory Suggestion for the processing indicator. The authoritative
//     responder in auto mode is whatever identity arrives on the inbound
//     response — the hint never blocks or alters delivery.
//
// # Rules
//
// Auto-mode hints come from Rules: per-agent keyword tables and dashboard
// context suggestions, overridable from a TOML rules file:
//
//	[keywords]
//	sales = ["budget", "revenue", "pipeline"]
//
//	[contexts]
//	"talent-discovery" = ["talent"]
package routing
