package domain

// AgentID uniquely names a registered agent.
type AgentID string

// RoutingDecision selects the primary agent and its collaborators for an
// objective. The primary is never also listed as a collaborator, and the
// collaborator list carries no duplicates.
type RoutingDecision struct {
	Primary       AgentID   `json:"primary"`
	Collaborators []AgentID `json:"collaborators,omitempty"`
	Rationale     string    `json:"rationale"`
}

// HasCollaborator reports whether id is among the collaborators.
func (d RoutingDecision) HasCollaborator(id AgentID) bool {
	for _, c := range d.Collaborators {
		if c == id {
			return true
		}
	}
	return false
}
