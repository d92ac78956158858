package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"conductor/internal/domain"
)

// Terminal error types reported by ExecuteWithRecovery.
const (
	ErrorTypeCritical  = "critical"
	ErrorTypeExhausted = "recovery_exhausted"
	ErrorTypeCancelled = "cancelled"
)

// Operation is a unit of work wrapped by the recovery engine. The payload is
// opaque to the engine; replanning substitutes a new one.
type Operation func(ctx context.Context, payload any) (any, error)

// Replanner produces a replacement payload after a recoverable failure.
type Replanner interface {
	Replan(ctx context.Context, rc domain.ReplanContext, payload any) (any, error)
}

// RecoveryOptions bound the retry and replan budgets of one execution.
type RecoveryOptions struct {
	MaxRetries int
	MaxReplans int
	Strategy   domain.BackoffStrategy
}

// RecoveryResult is the structured outcome of ExecuteWithRecovery. It is
// always returned, never panicked, with Stats populated even on failure.
type RecoveryResult struct {
	Success   bool
	Result    any
	Err       error
	ErrorType string // empty on success
	Stats     domain.RecoveryStats
}

// StepError attaches the failed step's identity to its cause so replanning
// context can be extracted from it.
type StepError struct {
	Agent domain.AgentID
	Step  string
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q (agent %s): %v", e.Step, e.Agent, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// RecoveryEngine wraps execution of any operation with error classification,
// backoff-delayed retry, and replanning when retries are exhausted.
//
// The loop is an explicit state machine:
//
//	Running -> Success
//	Running -> Retrying   -> Running   (transient, retry budget left)
//	Running -> Replanning -> Running   (recoverable, replan budget left)
//	Running -> Failed                  (critical, budgets exhausted, or cancelled)
type RecoveryEngine struct {
	replanner Replanner
	bus       domain.EventBus
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error // injected for tests
}

// NewRecoveryEngine creates an engine. replanner and bus may be nil; a nil
// replanner disables the replanning path.
func NewRecoveryEngine(replanner Replanner, bus domain.EventBus, logger *slog.Logger) *RecoveryEngine {
	return &RecoveryEngine{
		replanner: replanner,
		bus:       bus,
		logger:    logger,
		sleep:     sleepCtx,
	}
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExecuteWithRecovery runs op under the engine's state machine. Counters are
// local to this call; nothing is shared across concurrent executions.
func (e *RecoveryEngine) ExecuteWithRecovery(ctx context.Context, op Operation, payload any, opts RecoveryOptions) RecoveryResult {
	var stats domain.RecoveryStats
	retries := 0

	for {
		stats.TotalAttempts++
		result, err := op(ctx, payload)
		if err == nil {
			return RecoveryResult{Success: true, Result: result, Stats: stats}
		}

		// Cancellation is a distinct terminal state, never classified.
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return RecoveryResult{Err: err, ErrorType: ErrorTypeCancelled, Stats: stats}
		}

		cls := ClassifyError(err)

		switch cls.Kind {
		case domain.ErrorKindCritical:
			e.logger.Error("critical failure, failing fast",
				"error", err, "attempts", stats.TotalAttempts)
			return RecoveryResult{Err: err, ErrorType: ErrorTypeCritical, Stats: stats}

		case domain.ErrorKindTransient:
			if retries < opts.MaxRetries {
				retries++
				stats.Retries++
				delay := BackoffDelay(retries, opts.Strategy)
				e.publish(ctx, domain.EventRetryScheduled, map[string]any{
					"attempt": retries, "delay_ms": delay.Milliseconds(), "error": err.Error(),
				})
				e.logger.Warn("transient failure, retrying",
					"retry", retries, "max_retries", opts.MaxRetries, "delay", delay, "error", err)
				if serr := e.sleep(ctx, delay); serr != nil {
					return RecoveryResult{Err: serr, ErrorType: ErrorTypeCancelled, Stats: stats}
				}
				continue
			}
			// Retries exhausted: fall through to the replanning path.
		}

		if stats.Replans < opts.MaxReplans && e.replanner != nil {
			stats.Replans++
			retries = 0 // fresh retry budget for the new plan
			rc := replanContextFrom(err)
			e.publish(ctx, domain.EventReplanRequested, rc)
			e.logger.Warn("requesting replan",
				"replan", stats.Replans, "max_replans", opts.MaxReplans,
				"failed_agent", rc.FailedAgent, "failed_step", rc.FailedStep)

			newPayload, rerr := e.replanner.Replan(ctx, rc, payload)
			if rerr != nil {
				if ctx.Err() != nil {
					return RecoveryResult{Err: rerr, ErrorType: ErrorTypeCancelled, Stats: stats}
				}
				e.logger.Error("replanning failed", "error", rerr)
				return RecoveryResult{
					Err:       fmt.Errorf("%w: replan: %v", domain.ErrRecoveryExhausted, rerr),
					ErrorType: ErrorTypeExhausted,
					Stats:     stats,
				}
			}
			payload = newPayload
			continue
		}

		return RecoveryResult{
			Err:       fmt.Errorf("%w: %v", domain.ErrRecoveryExhausted, err),
			ErrorType: ErrorTypeExhausted,
			Stats:     stats,
		}
	}
}

func (e *RecoveryEngine) publish(ctx context.Context, t domain.EventType, payload any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(ctx, domain.Event{Type: t, Timestamp: time.Now(), Payload: payload})
}

// replanContextFrom extracts the failed agent and step from a StepError in
// the chain; the error message is always carried.
func replanContextFrom(err error) domain.ReplanContext {
	rc := domain.ReplanContext{ErrorMessage: err.Error()}
	var se *StepError
	if errors.As(err, &se) {
		rc.FailedAgent = se.Agent
		rc.FailedStep = se.Step
		rc.ErrorMessage = se.Err.Error()
	}
	return rc
}

// Error message patterns for classification. Matching is case-insensitive
// substring search; first taxonomy that matches wins.
var (
	criticalPatterns  = []string{"auth", "permission", "api key"}
	transientPatterns = []string{"timeout", "connection", "rate limit", "network"}
)

// ClassifyError maps any error to exactly one taxonomy kind. It is a total
// function: unmatched messages default to recoverable.
func ClassifyError(err error) domain.ErrorClassification {
	lower := strings.ToLower(err.Error())

	if containsAny(lower, criticalPatterns) {
		return domain.ErrorClassification{
			Kind:   domain.ErrorKindCritical,
			Action: domain.ActionFailFast,
		}
	}
	if containsAny(lower, transientPatterns) {
		return domain.ErrorClassification{
			Kind:   domain.ErrorKindTransient,
			Action: domain.ActionRetry,
		}
	}
	rc := replanContextFrom(err)
	return domain.ErrorClassification{
		Kind:       domain.ErrorKindRecoverable,
		Action:     domain.ActionRetryOrReplan,
		ReplanHint: &rc,
	}
}

// BackoffDelay computes the wait before retry attemptNumber (1-based) under
// the given strategy. Pure; independently testable.
func BackoffDelay(attemptNumber int, strategy domain.BackoffStrategy) time.Duration {
	if attemptNumber < 1 {
		attemptNumber = 1
	}
	switch strategy {
	case domain.BackoffLinear:
		return time.Duration(attemptNumber) * time.Second
	case domain.BackoffImmediate:
		return 0
	default: // exponential_backoff
		return time.Duration(1<<(attemptNumber-1)) * time.Second
	}
}

// ExtractAgentMentions scans free-form recovery-plan text for known agent
// capability names, returning them de-duplicated in order of first mention.
// It returns nil when nothing is found, distinct from an explicitly empty
// list. Best-effort heuristic: the extraction is neither complete nor precise.
func ExtractAgentMentions(text string, known []string) []string {
	lower := strings.ToLower(text)
	type hit struct {
		name string
		pos  int
	}
	var hits []hit
	seen := make(map[string]bool)
	for _, name := range known {
		if name == "" || seen[name] {
			continue
		}
		if pos := strings.Index(lower, strings.ToLower(name)); pos >= 0 {
			hits = append(hits, hit{name: name, pos: pos})
			seen[name] = true
		}
	}
	if len(hits) == 0 {
		return nil
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })
	found := make([]string, len(hits))
	for i, h := range hits {
		found[i] = h.name
	}
	return found
}

// ExtractCoordination derives a coordination mode from free-form plan text.
// Decisions extracted here always carry ErrorRecoveryMode because they
// originate from a replan, not the original plan.
func ExtractCoordination(text string) domain.CoordinationDecision {
	lower := strings.ToLower(text)
	mode := domain.CoordinationSequential
	switch {
	case strings.Contains(lower, "parallel") || strings.Contains(lower, "concurrent"):
		mode = domain.CoordinationParallel
	case strings.Contains(lower, "collaborative") || strings.Contains(lower, "iterative"):
		mode = domain.CoordinationCollaborative
	}
	return domain.CoordinationDecision{Mode: mode, ErrorRecoveryMode: true}
}
