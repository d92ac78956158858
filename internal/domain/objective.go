package domain

import "time"

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is a single entry in an objective's conversation history.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Objective is the natural-language task submitted by a caller.
// It is immutable once created.
type Objective struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id"`
	History   []Turn `json:"history,omitempty"`
}

// ComplexityLevel buckets a complexity score.
type ComplexityLevel string

const (
	ComplexityLow      ComplexityLevel = "low"
	ComplexityMedium   ComplexityLevel = "medium"
	ComplexityHigh     ComplexityLevel = "high"
	ComplexityVeryHigh ComplexityLevel = "very_high"
)

// ComplexityScore is the derived difficulty of an objective.
// It is recomputed per objective and never mutated afterward.
type ComplexityScore struct {
	Value   float64         `json:"value"`
	Level   ComplexityLevel `json:"level"`
	Factors []string        `json:"factors,omitempty"`
}

// OrchestrationStatus is the terminal status of one orchestration.
type OrchestrationStatus string

const (
	StatusCompleted OrchestrationStatus = "completed"
	StatusFailed    OrchestrationStatus = "failed"
	StatusTimeout   OrchestrationStatus = "timeout"
)

// OrchestrationResult is the response shape exposed to callers.
type OrchestrationResult struct {
	OrchestrationID string              `json:"orchestration_id"`
	SessionID       string              `json:"session_id"`
	Plan            ExecutionPlan       `json:"plan"`
	Routing         RoutingDecision     `json:"routing"`
	Complexity      ComplexityScore     `json:"complexity"`
	Status          OrchestrationStatus `json:"status"`
	RecoveryStats   RecoveryStats       `json:"recovery_stats"`
	Output          string              `json:"output,omitempty"`
	Error           string              `json:"error,omitempty"`
	StartedAt       time.Time           `json:"started_at"`
	FinishedAt      time.Time           `json:"finished_at"`
}
