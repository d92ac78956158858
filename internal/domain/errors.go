package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrDuplicate    = fmt.Errorf("duplicate")
	ErrTimeout      = fmt.Errorf("operation timed out")
	ErrInvalidInput = fmt.Errorf("invalid input")

	ErrAgentNotFound     = fmt.Errorf("agent not found")
	ErrAgentDuplicate    = fmt.Errorf("agent already registered")
	ErrRegistrySealed    = fmt.Errorf("registry sealed")
	ErrPlanInvalid       = fmt.Errorf("execution plan invalid")
	ErrPlanCyclic        = fmt.Errorf("execution plan dependency cycle")
	ErrKnowledgeStore    = fmt.Errorf("knowledge store operation failed")
	ErrProviderError     = fmt.Errorf("llm provider error")
	ErrQueueFull         = fmt.Errorf("task queue full")
	ErrQueueClosed       = fmt.Errorf("task queue closed")
	ErrRecoveryExhausted = fmt.Errorf("recovery budget exhausted")

	// Resilience sentinels.
	ErrAuthInvalid = fmt.Errorf("authentication failed")
	ErrRateLimit   = fmt.Errorf("rate limit exceeded")
)

// DomainError wraps a sentinel error with operation context.
type DomainError struct {
	Op     string // operation name (e.g., "Planner.BuildPlan")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error. Returns nil if err is nil,
// enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category for monitoring.
type ErrorCode string

const (
	CodeUnknown           ErrorCode = "UNKNOWN"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeDuplicate         ErrorCode = "DUPLICATE"
	CodeTimeout           ErrorCode = "TIMEOUT"
	CodeInvalidInput      ErrorCode = "INVALID_INPUT"
	CodeAgentNotFound     ErrorCode = "AGENT_NOT_FOUND"
	CodeAgentDuplicate    ErrorCode = "AGENT_DUPLICATE"
	CodeRegistrySealed    ErrorCode = "REGISTRY_SEALED"
	CodePlanInvalid       ErrorCode = "PLAN_INVALID"
	CodePlanCyclic        ErrorCode = "PLAN_CYCLIC"
	CodeKnowledgeStore    ErrorCode = "KNOWLEDGE_STORE"
	CodeProviderError     ErrorCode = "PROVIDER_ERROR"
	CodeQueueFull         ErrorCode = "QUEUE_FULL"
	CodeQueueClosed       ErrorCode = "QUEUE_CLOSED"
	CodeRecoveryExhausted ErrorCode = "RECOVERY_EXHAUSTED"
	CodeAuthInvalid       ErrorCode = "AUTH_INVALID"
	CodeRateLimit         ErrorCode = "RATE_LIMIT"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:          CodeNotFound,
	ErrDuplicate:         CodeDuplicate,
	ErrTimeout:           CodeTimeout,
	ErrInvalidInput:      CodeInvalidInput,
	ErrAgentNotFound:     CodeAgentNotFound,
	ErrAgentDuplicate:    CodeAgentDuplicate,
	ErrRegistrySealed:    CodeRegistrySealed,
	ErrPlanInvalid:       CodePlanInvalid,
	ErrPlanCyclic:        CodePlanCyclic,
	ErrKnowledgeStore:    CodeKnowledgeStore,
	ErrProviderError:     CodeProviderError,
	ErrQueueFull:         CodeQueueFull,
	ErrQueueClosed:       CodeQueueClosed,
	ErrRecoveryExhausted: CodeRecoveryExhausted,
	ErrAuthInvalid:       CodeAuthInvalid,
	ErrRateLimit:         CodeRateLimit,
}

// ErrorCodeOf returns the machine-parseable code for the given error.
// It unwraps DomainError and walks the chain with errors.Is.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	if code, ok := errorCodeMap[err]; ok {
		return code
	}
	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeUnknown
}
