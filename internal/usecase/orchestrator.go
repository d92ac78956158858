package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"conductor/internal/domain"
	"conductor/internal/infra/tracer"
)

// OrchestratorConfig holds the recovery budgets and scheduling knobs for
// objective handling.
type OrchestratorConfig struct {
	MaxRetries       int
	MaxReplans       int
	MaxParallelSteps int
	Strategy         domain.BackoffStrategy
	ObjectiveTimeout time.Duration // 0 = no timeout
}

// planPayload is the per-objective execution state handed to the recovery
// engine. Replanning substitutes a fresh payload; nothing here outlives the
// request.
type planPayload struct {
	objective domain.Objective
	score     domain.ComplexityScore
	routing   domain.RoutingDecision
	plan      domain.ExecutionPlan
	knowledge domain.KnowledgeContext
}

// Orchestrator composes the analyzer, router, planner, recovery engine and
// knowledge cache into the top-level objective flow. Each objective is one
// independent flow of control; concurrent objectives share only the sealed
// registry and the knowledge cache.
type Orchestrator struct {
	analyzer  *ComplexityAnalyzer
	router    *Router
	planner   *Planner
	registry  *Registry
	knowledge *KnowledgeCache
	completer domain.Completer // optional; used for replanning hints
	recovery  *RecoveryEngine
	bus       domain.EventBus
	logger    *slog.Logger
	cfg       OrchestratorConfig
	newID     func() string
}

// NewOrchestrator wires the orchestration pipeline. completer and bus may be
// nil; the recovery engine is constructed internally with the orchestrator as
// its replanner.
func NewOrchestrator(
	registry *Registry,
	knowledge *KnowledgeCache,
	completer domain.Completer,
	bus domain.EventBus,
	logger *slog.Logger,
	cfg OrchestratorConfig,
) *Orchestrator {
	o := &Orchestrator{
		analyzer:  NewComplexityAnalyzer(),
		router:    NewRouter(registry, completer, logger),
		planner:   NewPlanner(registry, logger),
		registry:  registry,
		knowledge: knowledge,
		completer: completer,
		bus:       bus,
		logger:    logger,
		cfg:       cfg,
		newID:     NewID,
	}
	o.recovery = NewRecoveryEngine(o, bus, logger)
	return o
}

// HandleObjective runs one objective end to end: score, route, plan, execute
// under recovery, aggregate, and persist insights. It always returns a
// structured result, never panics or propagates an unhandled error.
func (o *Orchestrator) HandleObjective(ctx context.Context, obj domain.Objective) domain.OrchestrationResult {
	id := o.newID()
	started := time.Now()

	if o.cfg.ObjectiveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.ObjectiveTimeout)
		defer cancel()
	}

	ctx, span := tracer.StartSpan(ctx, "orchestrator.handle_objective",
		trace.WithAttributes(
			tracer.StringAttr("orchestration.id", id),
			tracer.StringAttr("session.id", obj.SessionID),
		),
	)
	defer span.End()

	o.publish(ctx, domain.EventObjectiveReceived, id, obj.Text)

	result := domain.OrchestrationResult{
		OrchestrationID: id,
		SessionID:       obj.SessionID,
		StartedAt:       started,
	}

	score := o.analyzer.Score(obj.Text, obj.History)
	result.Complexity = score

	routing, err := o.router.Route(ctx, obj.Text, score)
	if err != nil {
		return o.fail(ctx, span, result, err)
	}
	result.Routing = routing

	plan, err := o.planner.BuildPlan(obj.Text, score, routing)
	if err != nil {
		return o.fail(ctx, span, result, err)
	}
	result.Plan = plan

	kctx := o.knowledge.Retrieve(ctx, obj.Text, "", RetrieveOptions{Complexity: score.Level})

	payload := &planPayload{
		objective: obj,
		score:     score,
		routing:   routing,
		plan:      plan,
		knowledge: kctx,
	}

	// The recovery engine may substitute the payload on replan; track the
	// one actually executed so the response reflects the final plan.
	var last *planPayload
	op := func(ctx context.Context, p any) (any, error) {
		pp := p.(*planPayload)
		last = pp
		return o.executePlan(ctx, id, pp)
	}

	rres := o.recovery.ExecuteWithRecovery(ctx, op, payload, RecoveryOptions{
		MaxRetries: o.cfg.MaxRetries,
		MaxReplans: o.cfg.MaxReplans,
		Strategy:   o.cfg.Strategy,
	})

	if last != nil {
		result.Routing = last.routing
		result.Plan = last.plan
	}
	result.RecoveryStats = rres.Stats
	result.FinishedAt = time.Now()

	if rres.Success {
		output, _ := rres.Result.(string)
		result.Status = domain.StatusCompleted
		result.Output = output
		o.knowledge.Store(ctx, obj.Text, output, obj.SessionID)
		o.publish(ctx, domain.EventObjectiveCompleted, id, rres.Stats)
		tracer.SetOK(span)
		o.logger.Info("objective completed",
			"orchestration_id", id,
			"attempts", rres.Stats.TotalAttempts,
			"retries", rres.Stats.Retries,
			"replans", rres.Stats.Replans,
		)
		return result
	}

	result.Status = domain.StatusFailed
	if rres.ErrorType == ErrorTypeCancelled && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		result.Status = domain.StatusTimeout
	}
	result.Error = fmt.Sprintf("%s: %v", rres.ErrorType, rres.Err)
	tracer.RecordError(span, rres.Err)
	o.publish(ctx, domain.EventObjectiveFailed, id, result.Error)
	o.logger.Error("objective failed",
		"orchestration_id", id,
		"error_type", rres.ErrorType,
		"attempts", rres.Stats.TotalAttempts,
		"error", rres.Err,
	)
	return result
}

// fail finalizes a result for errors raised before execution started.
func (o *Orchestrator) fail(ctx context.Context, span trace.Span, result domain.OrchestrationResult, err error) domain.OrchestrationResult {
	result.Status = domain.StatusFailed
	result.Error = err.Error()
	result.FinishedAt = time.Now()
	tracer.RecordError(span, err)
	o.publish(ctx, domain.EventObjectiveFailed, result.OrchestrationID, err.Error())
	return result
}

// executePlan runs the plan's steps respecting dependency order. Steps whose
// dependencies are all complete become runnable; runnable parallel-mode steps
// run concurrently under a bounded group, everything else runs in step-ID
// order. The synthesize step's output is the plan's result.
func (o *Orchestrator) executePlan(ctx context.Context, orchestrationID string, pp *planPayload) (string, error) {
	results := make(map[int]string, len(pp.plan.Steps))
	var mu sync.Mutex

	done := func(id int) bool {
		mu.Lock()
		defer mu.Unlock()
		_, ok := results[id]
		return ok
	}

	remaining := make(map[int]domain.Step, len(pp.plan.Steps))
	for _, s := range pp.plan.Steps {
		remaining[s.ID] = s
	}

	var lastOutput string
	for len(remaining) > 0 {
		runnable := runnableSteps(remaining, done)
		if len(runnable) == 0 {
			// Validation guarantees acyclicity; this is a defensive stop.
			return "", domain.WrapOp("Orchestrator.executePlan", domain.ErrPlanCyclic)
		}

		parallel, sequential := partitionByMode(runnable)

		if len(parallel) > 1 {
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(o.cfg.MaxParallelSteps)
			for _, step := range parallel {
				step := step
				g.Go(func() error {
					out, err := o.executeStep(gctx, orchestrationID, pp, step, results, &mu)
					if err != nil {
						return err
					}
					mu.Lock()
					results[step.ID] = out
					mu.Unlock()
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return "", err
			}
			for _, step := range parallel {
				delete(remaining, step.ID)
			}
			continue
		}

		// Run one step at a time: parallel singletons join the sequential path.
		sequential = append(sequential, parallel...)
		sort.Slice(sequential, func(i, j int) bool { return sequential[i].ID < sequential[j].ID })
		step := sequential[0]
		out, err := o.executeStep(ctx, orchestrationID, pp, step, results, &mu)
		if err != nil {
			return "", err
		}
		mu.Lock()
		results[step.ID] = out
		mu.Unlock()
		delete(remaining, step.ID)
		lastOutput = out
	}

	return lastOutput, nil
}

// runnableSteps returns the steps whose dependencies are all complete.
func runnableSteps(remaining map[int]domain.Step, done func(int) bool) []domain.Step {
	var runnable []domain.Step
	for _, s := range remaining {
		ready := true
		for _, dep := range s.DependsOn {
			if !done(dep) {
				ready = false
				break
			}
		}
		if ready {
			runnable = append(runnable, s)
		}
	}
	return runnable
}

func partitionByMode(steps []domain.Step) (parallel, sequential []domain.Step) {
	for _, s := range steps {
		if s.Mode == domain.CoordinationParallel {
			parallel = append(parallel, s)
		} else {
			sequential = append(sequential, s)
		}
	}
	return parallel, sequential
}

// executeStep invokes one step's agent. Any shape deviation in the agent
// result (missing status) is treated as an error-classified failure. Step
// failures are wrapped in StepError so replanning context can be extracted.
func (o *Orchestrator) executeStep(
	ctx context.Context,
	orchestrationID string,
	pp *planPayload,
	step domain.Step,
	results map[int]string,
	mu *sync.Mutex,
) (string, error) {
	ctx, span := tracer.StartSpan(ctx, "orchestrator.step",
		trace.WithAttributes(
			tracer.IntAttr("step.id", step.ID),
			tracer.StringAttr("step.agent", string(step.AgentID)),
			tracer.StringAttr("step.description", step.Description),
		),
	)
	defer span.End()

	agent, err := o.registry.Get(step.AgentID)
	if err != nil {
		tracer.RecordError(span, err)
		return "", &StepError{Agent: step.AgentID, Step: step.Description, Err: err}
	}

	o.publish(ctx, domain.EventStepStarted, orchestrationID, step)

	task := domain.AgentTask{
		SessionID:       pp.objective.SessionID,
		OrchestrationID: orchestrationID,
		Task:            buildTaskPrompt(pp, step, results, mu),
	}

	res, err := agent.Executor.Execute(ctx, task)
	if err != nil {
		tracer.RecordError(span, err)
		o.publish(ctx, domain.EventStepFailed, orchestrationID, step)
		return "", &StepError{Agent: step.AgentID, Step: step.Description, Err: err}
	}
	if res == nil || res.Status == "" {
		err := domain.NewDomainError("Orchestrator.executeStep", domain.ErrInvalidInput,
			"agent result missing status")
		tracer.RecordError(span, err)
		o.publish(ctx, domain.EventStepFailed, orchestrationID, step)
		return "", &StepError{Agent: step.AgentID, Step: step.Description, Err: err}
	}
	if res.Status != domain.TaskStatusCompleted {
		err := fmt.Errorf("agent reported failure: %s", res.Error)
		tracer.RecordError(span, err)
		o.publish(ctx, domain.EventStepFailed, orchestrationID, step)
		return "", &StepError{Agent: step.AgentID, Step: step.Description, Err: err}
	}

	o.publish(ctx, domain.EventStepCompleted, orchestrationID, step)
	tracer.SetOK(span)
	return res.Result, nil
}

// buildTaskPrompt assembles the step's task text from the objective, the
// completed dependency outputs, and retrieved knowledge context.
func buildTaskPrompt(pp *planPayload, step domain.Step, results map[int]string, mu *sync.Mutex) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\nObjective: %s\n", step.Description, pp.objective.Text)

	if len(pp.knowledge.SimilarResults) > 0 {
		b.WriteString("\nPrior insights:\n")
		for _, e := range pp.knowledge.SimilarResults {
			fmt.Fprintf(&b, "- %s\n", e.Content)
		}
	}

	mu.Lock()
	deps := make([]int, len(step.DependsOn))
	copy(deps, step.DependsOn)
	sort.Ints(deps)
	for _, dep := range deps {
		if out, ok := results[dep]; ok && out != "" {
			fmt.Fprintf(&b, "\nResult of step %d:\n%s\n", dep, out)
		}
	}
	mu.Unlock()

	return b.String()
}

// Replan implements Replanner. It consults the completer for a best-effort
// recovery suggestion, extracts agent mentions and coordination from the
// free-form answer, re-routes away from the failed agent, and builds a fresh
// plan. A completer failure degrades to the heuristic re-route.
func (o *Orchestrator) Replan(ctx context.Context, rc domain.ReplanContext, payload any) (any, error) {
	pp, ok := payload.(*planPayload)
	if !ok {
		return nil, domain.NewDomainError("Orchestrator.Replan", domain.ErrInvalidInput, "unexpected payload type")
	}

	var hint string
	if o.completer != nil {
		prompt := fmt.Sprintf(
			"A step %q on agent %q failed with: %s.\nObjective: %s\nSuggest which agent capabilities (%s) should handle it and whether they should work sequentially, in parallel, or collaboratively.",
			rc.FailedStep, rc.FailedAgent, rc.ErrorMessage, pp.objective.Text,
			strings.Join(o.knownCapabilities(), ", "),
		)
		answer, err := o.completer.Complete(ctx, prompt, domain.CompleteOptions{MaxTokens: 128})
		if err != nil {
			o.logger.Warn("replan suggestion unavailable, using heuristic re-route", "error", err)
		} else {
			hint = answer
		}
	}

	mentions := ExtractAgentMentions(hint, o.knownCapabilities())
	coord := ExtractCoordination(hint)

	routing := o.reroute(pp.routing, rc.FailedAgent, mentions)

	plan, err := o.planner.BuildPlan(pp.objective.Text, pp.score, routing)
	if err != nil {
		return nil, domain.WrapOp("Orchestrator.Replan", err)
	}
	if coord.ErrorRecoveryMode && coord.Mode != domain.CoordinationSequential {
		applyCoordination(&plan, coord.Mode)
	}

	o.logger.Info("plan rebuilt after failure",
		"failed_agent", rc.FailedAgent,
		"primary", routing.Primary,
		"coordination", coord.Mode,
	)

	return &planPayload{
		objective: pp.objective,
		score:     pp.score,
		routing:   routing,
		plan:      plan,
		knowledge: pp.knowledge,
	}, nil
}

// knownCapabilities returns the distinct capability tags across the registry.
func (o *Orchestrator) knownCapabilities() []string {
	var caps []string
	seen := make(map[string]bool)
	for _, d := range o.registry.List() {
		for _, c := range d.Capabilities {
			if !seen[c] {
				caps = append(caps, c)
				seen[c] = true
			}
		}
	}
	return caps
}

// reroute builds a routing decision that avoids the failed agent. Extracted
// capability mentions re-target the plan when present (nil means no guidance,
// not explicitly zero agents).
func (o *Orchestrator) reroute(prev domain.RoutingDecision, failed domain.AgentID, mentions []string) domain.RoutingDecision {
	routing := domain.RoutingDecision{
		Primary:   prev.Primary,
		Rationale: "replanned after failure of " + string(failed),
	}

	if mentions != nil {
		if agent, err := o.registry.FindByCapability(mentions[0]); err == nil && agent.Descriptor.ID != failed {
			routing.Primary = agent.Descriptor.ID
		}
		for _, capability := range mentions[1:] {
			agent, err := o.registry.FindByCapability(capability)
			if err != nil || agent.Descriptor.ID == failed || agent.Descriptor.ID == routing.Primary {
				continue
			}
			if !routing.HasCollaborator(agent.Descriptor.ID) {
				routing.Collaborators = append(routing.Collaborators, agent.Descriptor.ID)
			}
		}
	} else {
		for _, c := range prev.Collaborators {
			if c != failed && c != routing.Primary {
				routing.Collaborators = append(routing.Collaborators, c)
			}
		}
	}

	// A failed primary falls back to a general-purpose agent other than the
	// failed one.
	if routing.Primary == failed {
		for _, d := range o.registry.List() {
			if d.ID != failed && d.HasCapability(domain.CapabilityGeneral) {
				routing.Primary = d.ID
				break
			}
		}
		var kept []domain.AgentID
		for _, c := range routing.Collaborators {
			if c != routing.Primary {
				kept = append(kept, c)
			}
		}
		routing.Collaborators = kept
	}

	return routing
}

// applyCoordination re-marks collaborator steps with the extracted mode.
// Parallel collaborators all depend on the first step.
func applyCoordination(plan *domain.ExecutionPlan, mode domain.CoordinationMode) {
	for i := range plan.Steps {
		s := &plan.Steps[i]
		if s.Description == stepAnalyzeRequest || s.Description == stepSynthesizeResponse {
			continue
		}
		s.Mode = mode
		if mode == domain.CoordinationParallel {
			s.DependsOn = []int{1}
		}
	}
	// Recompute the synthesis step's dependencies over the new leaves.
	for i := range plan.Steps {
		if plan.Steps[i].Description == stepSynthesizeResponse {
			saved := plan.Steps[i]
			rest := domain.ExecutionPlan{Steps: append([]domain.Step{}, plan.Steps[:i]...)}
			saved.DependsOn = rest.Leaves()
			plan.Steps[i] = saved
		}
	}
}

func (o *Orchestrator) publish(ctx context.Context, t domain.EventType, orchestrationID string, payload any) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(ctx, domain.Event{
		Type:            t,
		OrchestrationID: orchestrationID,
		Timestamp:       time.Now(),
		Payload:         payload,
	})
}
