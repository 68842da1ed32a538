// ABOUTME: AgentIdentity enumeration and display metadata lookup
// ABOUTME: Three built-in responder kinds; the type stays open for new agents

package protocol

// AgentIdentity names a specialized responder category. It is a comparable
// string type rather than an int enum so that wire payloads stay readable and
// new responders can be introduced without renumbering.
type AgentIdentity string

// Built-in responder identities.
const (
	AgentSales     AgentIdentity = "sales"
	AgentTalent    AgentIdentity = "talent"
	AgentAnalytics AgentIdentity = "analytics"
)

// KnownAgents returns the full set of built-in responder identities.
// The slice is freshly allocated; callers may modify it.
func KnownAgents() []AgentIdentity {
	return []AgentIdentity{AgentSales, AgentTalent, AgentAnalytics}
}

// Known reports whether the identity is one of the built-in responders.
func (a AgentIdentity) Known() bool {
	switch a {
	case AgentSales, AgentTalent, AgentAnalytics:
		return true
	}
	return false
}

// AgentInfo holds display metadata for a responder identity.
type AgentInfo struct {
	Identity    AgentIdentity
	DisplayName string
	Description string
}

// Info returns display metadata for the identity. Unknown identities get a
// generic entry keyed by their raw value, so callers never hit a map miss.
func (a AgentIdentity) Info() AgentInfo {
	switch a {
	case AgentSales:
		return AgentInfo{Identity: a, DisplayName: "Sales", Description: "Revenue, pipeline, and deal questions"}
	case AgentTalent:
		return AgentInfo{Identity: a, DisplayName: "Talent", Description: "Team, hiring, and resourcing questions"}
	case AgentAnalytics:
		return AgentInfo{Identity: a, DisplayName: "Analytics", Description: "Metrics, performance, and reporting questions"}
	}
	return AgentInfo{Identity: a, DisplayName: string(a), Description: "External responder"}
}
