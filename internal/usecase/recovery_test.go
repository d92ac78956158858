package usecase

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"conductor/internal/domain"
	"conductor/internal/infra/logger"
)

// noSleepEngine returns an engine whose sleeps complete instantly, recording
// the requested delays.
func noSleepEngine(replanner Replanner, delays *[]time.Duration) *RecoveryEngine {
	e := NewRecoveryEngine(replanner, nil, logger.Discard())
	e.sleep = func(ctx context.Context, d time.Duration) error {
		if delays != nil {
			*delays = append(*delays, d)
		}
		return ctx.Err()
	}
	return e
}

func TestClassifyError(t *testing.T) {
	cases := []struct {
		msg  string
		kind domain.ErrorKind
	}{
		{"invalid API key provided", domain.ErrorKindCritical},
		{"permission denied on resource", domain.ErrorKindCritical},
		{"authentication failed", domain.ErrorKindCritical},
		{"request timeout after 30s", domain.ErrorKindTransient},
		{"connection refused", domain.ErrorKindTransient},
		{"rate limit exceeded", domain.ErrorKindTransient},
		{"network unreachable", domain.ErrorKindTransient},
		{"agent produced malformed output", domain.ErrorKindRecoverable},
		{"something else entirely", domain.ErrorKindRecoverable},
	}
	for _, tc := range cases {
		cls := ClassifyError(errors.New(tc.msg))
		if cls.Kind != tc.kind {
			t.Errorf("ClassifyError(%q).Kind = %v, want %v", tc.msg, cls.Kind, tc.kind)
		}
	}
}

func TestClassifyErrorRecoverableCarriesReplanHint(t *testing.T) {
	err := &StepError{Agent: "analysis_agent", Step: "collaborate_analysis_agent", Err: errors.New("bad output")}
	cls := ClassifyError(err)
	if cls.Kind != domain.ErrorKindRecoverable {
		t.Fatalf("Kind = %v, want recoverable", cls.Kind)
	}
	if cls.ReplanHint == nil {
		t.Fatal("ReplanHint is nil")
	}
	if cls.ReplanHint.FailedAgent != "analysis_agent" {
		t.Errorf("FailedAgent = %s, want analysis_agent", cls.ReplanHint.FailedAgent)
	}
	if cls.ReplanHint.ErrorMessage != "bad output" {
		t.Errorf("ErrorMessage = %q, want underlying cause", cls.ReplanHint.ErrorMessage)
	}
}

func TestBackoffDelay(t *testing.T) {
	cases := []struct {
		attempt  int
		strategy domain.BackoffStrategy
		want     time.Duration
	}{
		{1, domain.BackoffExponential, time.Second},
		{2, domain.BackoffExponential, 2 * time.Second},
		{3, domain.BackoffExponential, 4 * time.Second},
		{1, domain.BackoffLinear, time.Second},
		{2, domain.BackoffLinear, 2 * time.Second},
		{3, domain.BackoffLinear, 3 * time.Second},
		{1, domain.BackoffImmediate, 0},
		{5, domain.BackoffImmediate, 0},
		{0, domain.BackoffExponential, time.Second}, // clamped to attempt 1
	}
	for _, tc := range cases {
		if got := BackoffDelay(tc.attempt, tc.strategy); got != tc.want {
			t.Errorf("BackoffDelay(%d, %s) = %v, want %v", tc.attempt, tc.strategy, got, tc.want)
		}
	}
}

func TestExecuteWithRecoveryTransientThenSuccess(t *testing.T) {
	var delays []time.Duration
	e := noSleepEngine(nil, &delays)

	calls := 0
	op := func(ctx context.Context, payload any) (any, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("connection reset by peer")
		}
		return "done", nil
	}

	res := e.ExecuteWithRecovery(context.Background(), op, nil, RecoveryOptions{
		MaxRetries: 3, MaxReplans: 1, Strategy: domain.BackoffExponential,
	})

	if !res.Success {
		t.Fatalf("Success = false, err = %v", res.Err)
	}
	if res.Result != "done" {
		t.Errorf("Result = %v, want done", res.Result)
	}
	if res.Stats.TotalAttempts != 2 || res.Stats.Retries != 1 || res.Stats.Replans != 0 {
		t.Errorf("Stats = %+v, want attempts=2 retries=1 replans=0", res.Stats)
	}
	if !reflect.DeepEqual(delays, []time.Duration{time.Second}) {
		t.Errorf("delays = %v, want [1s]", delays)
	}
}

func TestExecuteWithRecoveryCriticalFailsFast(t *testing.T) {
	e := noSleepEngine(nil, nil)

	calls := 0
	op := func(ctx context.Context, payload any) (any, error) {
		calls++
		return nil, errors.New("invalid api key")
	}

	res := e.ExecuteWithRecovery(context.Background(), op, nil, RecoveryOptions{
		MaxRetries: 5, MaxReplans: 5, Strategy: domain.BackoffExponential,
	})

	if res.Success {
		t.Fatal("Success = true, want failure")
	}
	if res.ErrorType != ErrorTypeCritical {
		t.Errorf("ErrorType = %s, want critical", res.ErrorType)
	}
	if calls != 1 || res.Stats.TotalAttempts != 1 {
		t.Errorf("calls = %d, attempts = %d, want 1 each", calls, res.Stats.TotalAttempts)
	}
}

func TestExecuteWithRecoveryExhaustsTransientBudget(t *testing.T) {
	var delays []time.Duration
	e := noSleepEngine(nil, &delays)

	calls := 0
	op := func(ctx context.Context, payload any) (any, error) {
		calls++
		return nil, errors.New("gateway timeout")
	}

	res := e.ExecuteWithRecovery(context.Background(), op, nil, RecoveryOptions{
		MaxRetries: 2, MaxReplans: 0, Strategy: domain.BackoffExponential,
	})

	if res.Success {
		t.Fatal("Success = true, want failure")
	}
	// Initial attempt plus two retries.
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if res.ErrorType != ErrorTypeExhausted {
		t.Errorf("ErrorType = %s, want recovery_exhausted", res.ErrorType)
	}
	if !errors.Is(res.Err, domain.ErrRecoveryExhausted) {
		t.Errorf("Err = %v, want ErrRecoveryExhausted in chain", res.Err)
	}
	if !reflect.DeepEqual(delays, []time.Duration{time.Second, 2 * time.Second}) {
		t.Errorf("delays = %v, want [1s 2s]", delays)
	}
}

func TestExecuteWithRecoveryCancellationDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	e := NewRecoveryEngine(nil, nil, logger.Discard())
	e.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	op := func(ctx context.Context, payload any) (any, error) {
		return nil, errors.New("connection refused")
	}

	res := e.ExecuteWithRecovery(ctx, op, nil, RecoveryOptions{
		MaxRetries: 3, Strategy: domain.BackoffExponential,
	})

	if res.ErrorType != ErrorTypeCancelled {
		t.Errorf("ErrorType = %s, want cancelled", res.ErrorType)
	}
	if res.Stats.Retries != 1 {
		t.Errorf("Retries = %d, want 1 (the attempt that was interrupted)", res.Stats.Retries)
	}
}

func TestExecuteWithRecoveryCancelledContextIsTerminal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := noSleepEngine(nil, nil)
	op := func(ctx context.Context, payload any) (any, error) {
		return nil, ctx.Err()
	}

	res := e.ExecuteWithRecovery(ctx, op, nil, RecoveryOptions{MaxRetries: 3})
	if res.ErrorType != ErrorTypeCancelled {
		t.Errorf("ErrorType = %s, want cancelled", res.ErrorType)
	}
	if res.Stats.TotalAttempts != 1 {
		t.Errorf("TotalAttempts = %d, want 1", res.Stats.TotalAttempts)
	}
}

// fnReplanner adapts a function to the Replanner interface.
type fnReplanner func(ctx context.Context, rc domain.ReplanContext, payload any) (any, error)

func (f fnReplanner) Replan(ctx context.Context, rc domain.ReplanContext, payload any) (any, error) {
	return f(ctx, rc, payload)
}

func TestExecuteWithRecoveryReplansRecoverableFailure(t *testing.T) {
	replanner := fnReplanner(func(ctx context.Context, rc domain.ReplanContext, payload any) (any, error) {
		if rc.FailedAgent != "creative_agent" {
			return nil, fmt.Errorf("unexpected replan context: %+v", rc)
		}
		return "fixed", nil
	})
	e := noSleepEngine(replanner, nil)

	op := func(ctx context.Context, payload any) (any, error) {
		if payload == "fixed" {
			return "result", nil
		}
		return nil, &StepError{Agent: "creative_agent", Step: "collaborate_creative_agent", Err: errors.New("malformed response")}
	}

	res := e.ExecuteWithRecovery(context.Background(), op, "original", RecoveryOptions{
		MaxRetries: 1, MaxReplans: 1, Strategy: domain.BackoffImmediate,
	})

	if !res.Success {
		t.Fatalf("Success = false, err = %v", res.Err)
	}
	if res.Stats.Replans != 1 {
		t.Errorf("Replans = %d, want 1", res.Stats.Replans)
	}
	if res.Stats.TotalAttempts != 2 {
		t.Errorf("TotalAttempts = %d, want 2", res.Stats.TotalAttempts)
	}
}

func TestExecuteWithRecoveryReplanFailureExhausts(t *testing.T) {
	replanner := fnReplanner(func(ctx context.Context, rc domain.ReplanContext, payload any) (any, error) {
		return nil, errors.New("no alternative plan")
	})
	e := noSleepEngine(replanner, nil)

	op := func(ctx context.Context, payload any) (any, error) {
		return nil, errors.New("unexpected agent output")
	}

	res := e.ExecuteWithRecovery(context.Background(), op, nil, RecoveryOptions{
		MaxReplans: 2, Strategy: domain.BackoffImmediate,
	})

	if res.ErrorType != ErrorTypeExhausted {
		t.Errorf("ErrorType = %s, want recovery_exhausted", res.ErrorType)
	}
	if !errors.Is(res.Err, domain.ErrRecoveryExhausted) {
		t.Errorf("Err = %v, want ErrRecoveryExhausted in chain", res.Err)
	}
}

func TestExecuteWithRecoveryRetryBudgetResetsAfterReplan(t *testing.T) {
	replanner := fnReplanner(func(ctx context.Context, rc domain.ReplanContext, payload any) (any, error) {
		return "plan-b", nil
	})
	var delays []time.Duration
	e := noSleepEngine(replanner, &delays)

	calls := 0
	op := func(ctx context.Context, payload any) (any, error) {
		calls++
		switch {
		case payload == "plan-b" && calls >= 4:
			return "ok", nil
		case payload == "plan-b":
			return nil, errors.New("timeout waiting for agent")
		default:
			return nil, errors.New("timeout waiting for agent")
		}
	}

	// MaxRetries 1: plan A burns its retry (attempts 1, 2), replans to plan B,
	// which gets a fresh retry budget (attempts 3, 4).
	res := e.ExecuteWithRecovery(context.Background(), op, "plan-a", RecoveryOptions{
		MaxRetries: 1, MaxReplans: 1, Strategy: domain.BackoffExponential,
	})

	if !res.Success {
		t.Fatalf("Success = false, err = %v", res.Err)
	}
	if res.Stats.Retries != 2 {
		t.Errorf("Retries = %d, want 2 (one per plan)", res.Stats.Retries)
	}
	// Backoff restarts at 1s for the new plan.
	if !reflect.DeepEqual(delays, []time.Duration{time.Second, time.Second}) {
		t.Errorf("delays = %v, want [1s 1s]", delays)
	}
}

func TestExtractAgentMentions(t *testing.T) {
	known := []string{"research", "analysis", "creative", "development", "planning", "qa", "general"}

	got := ExtractAgentMentions("Use the analysis agent first, then research to verify analysis.", known)
	want := []string{"analysis", "research"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("mentions = %v, want %v (first-mention order, deduplicated)", got, want)
	}

	if got := ExtractAgentMentions("no capability names here", known); got != nil {
		t.Errorf("mentions = %v, want nil for no matches", got)
	}
}

func TestExtractCoordination(t *testing.T) {
	cases := []struct {
		text string
		mode domain.CoordinationMode
	}{
		{"run them in parallel", domain.CoordinationParallel},
		{"execute concurrently", domain.CoordinationParallel},
		{"work collaboratively on this", domain.CoordinationCollaborative},
		{"an iterative refinement loop", domain.CoordinationCollaborative},
		{"just do it step by step", domain.CoordinationSequential},
		{"", domain.CoordinationSequential},
	}
	for _, tc := range cases {
		decision := ExtractCoordination(tc.text)
		if decision.Mode != tc.mode {
			t.Errorf("ExtractCoordination(%q).Mode = %v, want %v", tc.text, decision.Mode, tc.mode)
		}
		if !decision.ErrorRecoveryMode {
			t.Errorf("ExtractCoordination(%q).ErrorRecoveryMode = false, want true", tc.text)
		}
	}
}
