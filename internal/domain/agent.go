package domain

import "context"

// Well-known agent capabilities. Agents may carry additional free-form tags.
const (
	CapabilityResearch    = "research"
	CapabilityAnalysis    = "analysis"
	CapabilityCreative    = "creative"
	CapabilityDevelopment = "development"
	CapabilityPlanning    = "planning"
	CapabilityQA          = "qa"
	CapabilityGeneral     = "general"
)

// AgentDescriptor describes a registered agent. Descriptors are owned by the
// registry and read-only to the rest of the system.
type AgentDescriptor struct {
	ID           AgentID  `json:"id"`
	Capabilities []string `json:"capabilities"`
	Domain       string   `json:"domain"`
}

// HasCapability reports whether the descriptor carries the given tag.
func (d AgentDescriptor) HasCapability(capability string) bool {
	for _, c := range d.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// Task statuses reported by agent executors.
const (
	TaskStatusCompleted = "completed"
	TaskStatusError     = "error"
)

// AgentTask is the input handed to an agent executor.
type AgentTask struct {
	SessionID       string `json:"session_id"`
	OrchestrationID string `json:"orchestration_id"`
	Task            string `json:"task"`
}

// AgentResult is the outcome of one agent invocation. A result with an empty
// Status is a shape deviation and must be treated as a failure by the caller.
type AgentResult struct {
	Status          string   `json:"status"`
	Result          string   `json:"result,omitempty"`
	Error           string   `json:"error,omitempty"`
	ConfidenceScore float64  `json:"confidence_score,omitempty"`
	ReasoningTrace  []string `json:"reasoning_trace,omitempty"`
}

// AgentExecutor is the single capability every agent exposes. Dispatch happens
// via a lookup table from AgentID to this interface.
type AgentExecutor interface {
	Execute(ctx context.Context, task AgentTask) (*AgentResult, error)
}
