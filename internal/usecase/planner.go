package usecase

import (
	"fmt"
	"log/slog"
	"strings"

	"conductor/internal/domain"
)

// Step descriptions used by every plan.
const (
	stepAnalyzeRequest     = "analyze_request"
	stepSynthesizeResponse = "synthesize_response"
)

// parallelismHints mark objectives whose collaborator steps may run
// concurrently instead of chained.
var parallelismHints = []string{"in parallel", "concurrently"}

// Planner expands routing decisions into ordered, dependency-graphed plans.
type Planner struct {
	registry *Registry
	logger   *slog.Logger
}

// NewPlanner creates a Planner.
func NewPlanner(registry *Registry, logger *slog.Logger) *Planner {
	return &Planner{registry: registry, logger: logger}
}

// BuildPlan expands a routing decision into an ExecutionPlan. Step 1 is always
// analyze_request on the primary agent; collaborator steps chain sequentially
// unless the objective carries a parallelism hint, in which case they all
// depend on step 1 and run in parallel; the final synthesize_response step on
// the primary depends on every prior leaf. Invalid plans are rejected, never
// silently repaired.
func (p *Planner) BuildPlan(text string, score domain.ComplexityScore, routing domain.RoutingDecision) (domain.ExecutionPlan, error) {
	parallel := containsAny(strings.ToLower(text), parallelismHints)

	plan := domain.ExecutionPlan{}
	plan.Steps = append(plan.Steps, domain.Step{
		ID:          1,
		AgentID:     routing.Primary,
		Description: stepAnalyzeRequest,
		Mode:        domain.CoordinationSequential,
	})

	prev := 1
	for i, collab := range routing.Collaborators {
		step := domain.Step{
			ID:          i + 2,
			AgentID:     collab,
			Description: fmt.Sprintf("collaborate_%s", collab),
		}
		if parallel {
			step.DependsOn = []int{1}
			step.Mode = domain.CoordinationParallel
		} else {
			step.DependsOn = []int{prev}
			step.Mode = domain.CoordinationSequential
		}
		plan.Steps = append(plan.Steps, step)
		prev = step.ID
	}

	final := domain.Step{
		ID:          len(plan.Steps) + 1,
		AgentID:     routing.Primary,
		Description: stepSynthesizeResponse,
		DependsOn:   plan.Leaves(),
		Mode:        domain.CoordinationSequential,
	}
	plan.Steps = append(plan.Steps, final)

	if err := p.Validate(plan); err != nil {
		return domain.ExecutionPlan{}, err
	}

	p.logger.Debug("plan built",
		"steps", len(plan.Steps),
		"parallel", parallel,
		"complexity", score.Level,
	)
	return plan, nil
}

// Validate rejects plans with cyclic dependencies, references to undefined
// steps, or agents missing from the registry.
func (p *Planner) Validate(plan domain.ExecutionPlan) error {
	ids := make(map[int]bool, len(plan.Steps))
	for _, s := range plan.Steps {
		if ids[s.ID] {
			return domain.NewDomainError("Planner.Validate", domain.ErrPlanInvalid,
				fmt.Sprintf("duplicate step id %d", s.ID))
		}
		ids[s.ID] = true
	}

	for _, s := range plan.Steps {
		if !p.registry.Has(s.AgentID) {
			return domain.NewDomainError("Planner.Validate", domain.ErrAgentNotFound,
				fmt.Sprintf("step %d references agent %q", s.ID, s.AgentID))
		}
		for _, dep := range s.DependsOn {
			if !ids[dep] {
				return domain.NewDomainError("Planner.Validate", domain.ErrPlanInvalid,
					fmt.Sprintf("step %d depends on undefined step %d", s.ID, dep))
			}
		}
	}

	if hasCycle(plan) {
		return domain.WrapOp("Planner.Validate", domain.ErrPlanCyclic)
	}
	return nil
}

// hasCycle runs Kahn's algorithm over the dependency graph.
func hasCycle(plan domain.ExecutionPlan) bool {
	indegree := make(map[int]int, len(plan.Steps))
	dependents := make(map[int][]int)
	for _, s := range plan.Steps {
		indegree[s.ID] += 0
		for _, dep := range s.DependsOn {
			indegree[s.ID]++
			dependents[dep] = append(dependents[dep], s.ID)
		}
	}

	var ready []int
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}

	visited := 0
	for len(ready) > 0 {
		id := ready[len(ready)-1]
		ready = ready[:len(ready)-1]
		visited++
		for _, dep := range dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}
	return visited != len(plan.Steps)
}
