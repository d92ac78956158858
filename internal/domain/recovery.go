package domain

// ErrorKind is the failure taxonomy driving recovery decisions.
type ErrorKind string

const (
	ErrorKindCritical    ErrorKind = "critical"    // non-retryable: auth/permission failures
	ErrorKindTransient   ErrorKind = "transient"   // retryable with backoff: timeouts, rate limits
	ErrorKindRecoverable ErrorKind = "recoverable" // retryable via replanning
)

// RecoveryAction is the behavior implied by an error kind.
type RecoveryAction string

const (
	ActionFailFast      RecoveryAction = "fail_fast"
	ActionRetry         RecoveryAction = "retry"
	ActionRetryOrReplan RecoveryAction = "retry_or_replan"
)

// ErrorClassification is derived per error instance and consumed within one
// recovery attempt; it is never persisted.
type ErrorClassification struct {
	Kind       ErrorKind      `json:"kind"`
	Action     RecoveryAction `json:"action"`
	ReplanHint *ReplanContext `json:"replan_hint,omitempty"`
}

// ReplanContext carries the minimum failure detail a replanning request needs.
type ReplanContext struct {
	FailedAgent  AgentID `json:"failed_agent"`
	FailedStep   string  `json:"failed_step"`
	ErrorMessage string  `json:"error_message"`
}

// RecoveryStats counts the work done by one execution attempt. Counters only
// increase and are local to a single ExecuteWithRecovery call.
type RecoveryStats struct {
	TotalAttempts int `json:"total_attempts"`
	Retries       int `json:"retries"`
	Replans       int `json:"replans"`
}

// BackoffStrategy names a retry delay schedule.
type BackoffStrategy string

const (
	BackoffExponential BackoffStrategy = "exponential_backoff"
	BackoffLinear      BackoffStrategy = "linear_backoff"
	BackoffImmediate   BackoffStrategy = "immediate"
)

// CoordinationDecision is a coordination mode extracted from free-form
// recovery-plan text. ErrorRecoveryMode marks that the decision originated
// from a replan rather than the original plan.
type CoordinationDecision struct {
	Mode              CoordinationMode `json:"mode"`
	ErrorRecoveryMode bool             `json:"error_recovery_mode"`
}
