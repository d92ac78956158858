package domain

// CoordinationMode describes how a step relates to its siblings.
type CoordinationMode string

const (
	CoordinationSequential    CoordinationMode = "sequential"
	CoordinationParallel      CoordinationMode = "parallel"
	CoordinationCollaborative CoordinationMode = "collaborative"
)

// Step is a single unit of work inside an ExecutionPlan.
type Step struct {
	ID          int              `json:"id"`
	AgentID     AgentID          `json:"agent_id"`
	Description string           `json:"description"`
	DependsOn   []int            `json:"depends_on,omitempty"`
	Mode        CoordinationMode `json:"coordination_mode"`
}

// ExecutionPlan is the ordered, dependency-graphed sequence of steps derived
// from a routing decision. The dependency graph is acyclic and every agent it
// references exists in the registry at build time.
type ExecutionPlan struct {
	Steps []Step `json:"steps"`
}

// Step returns the step with the given ID, or nil.
func (p ExecutionPlan) Step(id int) *Step {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}

// Leaves returns the IDs of steps no other step depends on.
func (p ExecutionPlan) Leaves() []int {
	depended := make(map[int]bool)
	for _, s := range p.Steps {
		for _, d := range s.DependsOn {
			depended[d] = true
		}
	}
	var leaves []int
	for _, s := range p.Steps {
		if !depended[s.ID] {
			leaves = append(leaves, s.ID)
		}
	}
	return leaves
}
