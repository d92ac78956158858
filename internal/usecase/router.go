package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"conductor/internal/domain"
)

// routingRule maps objective keywords to a primary capability and collaborators.
// Rules are evaluated in order; the first match wins.
type routingRule struct {
	keywords      []string
	primary       string
	collaborators []string
	rationale     string
}

var routingRules = []routingRule{
	{
		keywords:      []string{"research", "find", "search"},
		primary:       domain.CapabilityResearch,
		collaborators: []string{domain.CapabilityAnalysis},
		rationale:     "research request",
	},
	{
		keywords:      []string{"create", "write", "generate"},
		primary:       domain.CapabilityCreative,
		collaborators: []string{domain.CapabilityResearch},
		rationale:     "creation request",
	},
	{
		keywords:      []string{"code", "program", "develop"},
		primary:       domain.CapabilityDevelopment,
		collaborators: []string{domain.CapabilityResearch, domain.CapabilityQA},
		rationale:     "development request",
	},
	{
		keywords:      []string{"analyze", "analyse", "data", "statistics"},
		primary:       domain.CapabilityAnalysis,
		collaborators: []string{domain.CapabilityResearch},
		rationale:     "analysis request",
	},
	{
		keywords:      []string{"plan", "strategy", "schedule"},
		primary:       domain.CapabilityPlanning,
		collaborators: []string{domain.CapabilityResearch, domain.CapabilityAnalysis},
		rationale:     "planning request",
	},
}

// Router maps an objective and its complexity score to a primary agent and an
// ordered set of collaborators. The keyword pass is authoritative; the LLM
// tie-break is best-effort and its failure never surfaces to the caller.
type Router struct {
	registry  *Registry
	completer domain.Completer // optional; nil disables the tie-break
	logger    *slog.Logger
}

// NewRouter creates a Router. completer may be nil.
func NewRouter(registry *Registry, completer domain.Completer, logger *slog.Logger) *Router {
	return &Router{registry: registry, completer: completer, logger: logger}
}

// Route selects agents for the objective text. It returns an error only when
// no agent in the registry can serve the chosen capability.
func (r *Router) Route(ctx context.Context, text string, score domain.ComplexityScore) (domain.RoutingDecision, error) {
	lower := strings.ToLower(text)

	matched := matchRules(lower)

	var rule routingRule
	switch len(matched) {
	case 0:
		rule = routingRule{
			primary:   domain.CapabilityGeneral,
			rationale: "no keyword match, defaulting to general-purpose agent",
		}
	case 1:
		rule = matched[0]
	default:
		// Ambiguous keyword match: let the LLM pick, keyword winner on failure.
		rule = r.breakTie(ctx, text, matched)
	}

	primary, err := r.registry.FindByCapability(rule.primary)
	if err != nil {
		return domain.RoutingDecision{}, domain.WrapOp("Router.Route", err)
	}

	decision := domain.RoutingDecision{
		Primary:   primary.Descriptor.ID,
		Rationale: rule.rationale,
	}

	collabCaps := rule.collaborators
	// High-complexity objectives get a QA pass appended when absent.
	if score.Level == domain.ComplexityHigh || score.Level == domain.ComplexityVeryHigh {
		if !containsString(collabCaps, domain.CapabilityQA) {
			collabCaps = append(collabCaps, domain.CapabilityQA)
		}
	}

	for _, capability := range collabCaps {
		agent, err := r.registry.FindByCapability(capability)
		if err != nil {
			r.logger.Warn("collaborator capability unavailable, skipping",
				"capability", capability, "error", err)
			continue
		}
		id := agent.Descriptor.ID
		if id == decision.Primary || decision.HasCollaborator(id) {
			continue
		}
		decision.Collaborators = append(decision.Collaborators, id)
	}

	r.logger.Debug("objective routed",
		"primary", decision.Primary,
		"collaborators", decision.Collaborators,
		"rationale", decision.Rationale,
	)
	return decision, nil
}

// matchRules returns every rule whose keywords appear in the lowered text.
func matchRules(lower string) []routingRule {
	var matched []routingRule
	for _, rule := range routingRules {
		if containsAny(lower, rule.keywords) {
			matched = append(matched, rule)
		}
	}
	return matched
}

// breakTie asks the completer to choose among ambiguous rule matches. Any
// failure or unrecognized answer falls back to the first keyword match.
func (r *Router) breakTie(ctx context.Context, text string, matched []routingRule) routingRule {
	fallback := matched[0]
	if r.completer == nil {
		return fallback
	}

	var caps []string
	for _, m := range matched {
		caps = append(caps, m.primary)
	}
	prompt := fmt.Sprintf(
		"An objective matches several agent capabilities: %s.\nObjective: %s\nAnswer with the single best capability name.",
		strings.Join(caps, ", "), text,
	)

	answer, err := r.completer.Complete(ctx, prompt, domain.CompleteOptions{MaxTokens: 16})
	if err != nil {
		r.logger.Warn("routing tie-break failed, using keyword result", "error", err)
		return fallback
	}

	lowerAnswer := strings.ToLower(answer)
	for _, m := range matched {
		if strings.Contains(lowerAnswer, m.primary) {
			m.rationale += " (llm tie-break)"
			return m
		}
	}
	return fallback
}

func containsString(ss []string, want string) bool {
	for _, s := range ss {
		if s == want {
			return true
		}
	}
	return false
}
