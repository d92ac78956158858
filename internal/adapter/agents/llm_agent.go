// Package agents provides AgentExecutor implementations backed by an LLM
// completer, plus registration of the default fleet.
package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"conductor/internal/domain"
	"conductor/internal/infra/tracer"
	"conductor/internal/usecase"
)

// LLMAgent is an AgentExecutor that delegates its task to a completer with a
// role-specific system preamble.
type LLMAgent struct {
	descriptor domain.AgentDescriptor
	preamble   string
	completer  domain.Completer
	logger     *slog.Logger
}

// NewLLMAgent creates an executor for the given descriptor. The preamble
// frames every prompt with the agent's specialty.
func NewLLMAgent(descriptor domain.AgentDescriptor, preamble string, completer domain.Completer, logger *slog.Logger) *LLMAgent {
	return &LLMAgent{
		descriptor: descriptor,
		preamble:   preamble,
		completer:  completer,
		logger:     logger,
	}
}

// Descriptor returns the agent's capability descriptor.
func (a *LLMAgent) Descriptor() domain.AgentDescriptor { return a.descriptor }

// Execute implements domain.AgentExecutor.
func (a *LLMAgent) Execute(ctx context.Context, task domain.AgentTask) (*domain.AgentResult, error) {
	ctx, span := tracer.StartSpan(ctx, "agent.execute",
		trace.WithAttributes(
			tracer.StringAttr("agent.id", string(a.descriptor.ID)),
			tracer.StringAttr("orchestration.id", task.OrchestrationID),
		),
	)
	defer span.End()

	prompt := a.preamble + "\n\nTask:\n" + task.Task

	out, err := a.completer.Complete(ctx, prompt, domain.CompleteOptions{})
	if err != nil {
		tracer.RecordError(span, err)
		a.logger.Warn("agent execution failed",
			"agent", a.descriptor.ID, "error", err)
		return &domain.AgentResult{
			Status: domain.TaskStatusError,
			Error:  err.Error(),
		}, err
	}

	tracer.SetOK(span)
	return &domain.AgentResult{
		Status:          domain.TaskStatusCompleted,
		Result:          strings.TrimSpace(out),
		ConfidenceScore: 0.8,
		ReasoningTrace:  []string{fmt.Sprintf("completed by %s via %s", a.descriptor.ID, a.completer.Name())},
	}, nil
}

// fleetSpec declares one default agent.
type fleetSpec struct {
	id           domain.AgentID
	capabilities []string
	agentDomain  string
	preamble     string
}

var defaultFleet = []fleetSpec{
	{
		id:           "research_agent",
		capabilities: []string{domain.CapabilityResearch, domain.CapabilityGeneral},
		agentDomain:  "research",
		preamble:     "You are a research specialist. Gather the relevant facts and cite what you relied on.",
	},
	{
		id:           "analysis_agent",
		capabilities: []string{domain.CapabilityAnalysis, domain.CapabilityGeneral},
		agentDomain:  "analysis",
		preamble:     "You are a data analyst. Break the problem down and reason about the evidence.",
	},
	{
		id:           "creative_agent",
		capabilities: []string{domain.CapabilityCreative, domain.CapabilityGeneral},
		agentDomain:  "creative",
		preamble:     "You are a creative writer. Produce original, well-structured content.",
	},
	{
		id:           "development_agent",
		capabilities: []string{domain.CapabilityDevelopment, domain.CapabilityGeneral},
		agentDomain:  "development",
		preamble:     "You are a software engineer. Write clear, correct code and explain trade-offs.",
	},
	{
		id:           "planning_agent",
		capabilities: []string{domain.CapabilityPlanning, domain.CapabilityGeneral},
		agentDomain:  "planning",
		preamble:     "You are a project planner. Lay out concrete, ordered steps with owners.",
	},
	{
		id:           "qa_agent",
		capabilities: []string{domain.CapabilityQA, domain.CapabilityGeneral},
		agentDomain:  "qa",
		preamble:     "You are a quality reviewer. Check the work for gaps, errors, and unsupported claims.",
	},
	{
		id:           "general_agent",
		capabilities: []string{domain.CapabilityGeneral},
		agentDomain:  "general",
		preamble:     "You are a capable generalist assistant. Handle the task directly.",
	},
}

// RegisterDefaultFleet registers the built-in agents and seals the registry.
func RegisterDefaultFleet(registry *usecase.Registry, completer domain.Completer, logger *slog.Logger) error {
	for _, spec := range defaultFleet {
		descriptor := domain.AgentDescriptor{
			ID:           spec.id,
			Capabilities: spec.capabilities,
			Domain:       spec.agentDomain,
		}
		agent := NewLLMAgent(descriptor, spec.preamble, completer, logger)
		if err := registry.Register(descriptor, agent); err != nil {
			return fmt.Errorf("register %s: %w", spec.id, err)
		}
	}
	registry.Seal()
	return nil
}

// Compile-time interface check.
var _ domain.AgentExecutor = (*LLMAgent)(nil)
