// Command conductor runs the multi-agent objective engine. With -objective it
// handles a single objective and prints the result as JSON; otherwise it reads
// one objective per line from stdin and processes them through the task queue.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"conductor/internal/adapter/agents"
	"conductor/internal/adapter/knowledge"
	"conductor/internal/adapter/llm"
	"conductor/internal/domain"
	"conductor/internal/infra/config"
	"conductor/internal/infra/logger"
	"conductor/internal/infra/tracer"
	"conductor/internal/usecase"
	"conductor/internal/usecase/eventbus"
	"conductor/internal/usecase/scheduling"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "conductor:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		objective  = flag.String("objective", "", "handle a single objective and exit")
		session    = flag.String("session", "", "session identifier for the objective")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownTracer(shutdownCtx)
	}()

	store, err := knowledge.New(cfg.Knowledge.Path, log)
	if err != nil {
		return err
	}
	defer store.Close()

	completer, err := buildCompleter(cfg.LLM, log)
	if err != nil {
		return err
	}

	bus := eventbus.New(log)
	defer bus.Close()

	registry := usecase.NewRegistry(log)
	if err := agents.RegisterDefaultFleet(registry, completer, log); err != nil {
		return err
	}

	cache := usecase.NewKnowledgeCache(store, bus, log)

	timeout, err := cfg.ObjectiveTimeout()
	if err != nil {
		return err
	}
	orchestrator := usecase.NewOrchestrator(registry, cache, completer, bus, log, usecase.OrchestratorConfig{
		MaxRetries:       cfg.Orchestrator.MaxRetries,
		MaxReplans:       cfg.Orchestrator.MaxReplans,
		MaxParallelSteps: cfg.Orchestrator.MaxParallelSteps,
		Strategy:         domain.BackoffStrategy(cfg.Orchestrator.BackoffStrategy),
		ObjectiveTimeout: timeout,
	})

	sweeper := scheduling.NewSweeper(store,
		time.Duration(cfg.Knowledge.RetentionDays)*24*time.Hour, log)
	if err := sweeper.Start(ctx, cfg.Knowledge.SweepSchedule); err != nil {
		return err
	}
	defer sweeper.Stop()

	if *objective != "" {
		result := orchestrator.HandleObjective(ctx, domain.Objective{
			Text:      *objective,
			SessionID: *session,
		})
		return printResult(result)
	}

	return consumeQueue(ctx, cfg.Queue, orchestrator, log)
}

// buildCompleter constructs the configured provider and stacks the rate
// limiter and circuit breaker decorators around it.
func buildCompleter(cfg config.LLMConfig, log *slog.Logger) (domain.Completer, error) {
	var base domain.Completer
	switch cfg.Provider {
	case "bedrock":
		b, err := llm.NewBedrockCompleter(cfg, log)
		if err != nil {
			return nil, err
		}
		base = b
	case "static", "":
		base = llm.NewStaticCompleter("")
	default:
		return nil, fmt.Errorf("llm.provider %q unknown", cfg.Provider)
	}

	if cfg.RequestsPerMin > 0 {
		base = llm.NewRateLimitedCompleter(base, cfg.RequestsPerMin, cfg.BurstSize, log)
	}

	return llm.NewCircuitBreakerCompleter(base, llm.CircuitBreakerConfig{
		MaxFailures: cfg.Breaker.MaxFailures,
		Timeout:     cfg.Breaker.BreakerTimeout(),
		Interval:    cfg.Breaker.BreakerInterval(),
	}, log), nil
}

// consumeQueue feeds stdin lines through the task queue and a single worker.
// Failed objectives are nacked for redelivery up to the configured budget.
func consumeQueue(ctx context.Context, qcfg config.QueueConfig, orchestrator *usecase.Orchestrator, log *slog.Logger) error {
	queue := usecase.NewTaskQueue(qcfg.Capacity, qcfg.MaxRedelivery)

	go func() {
		defer queue.Close()
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			text := strings.TrimSpace(scanner.Text())
			if text == "" {
				continue
			}
			if err := queue.Enqueue(domain.Objective{Text: text}); err != nil {
				log.Warn("objective rejected", "error", err)
			}
		}
	}()

	for {
		delivery, ok, err := queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if !ok {
			return nil
		}

		result := orchestrator.HandleObjective(ctx, delivery.Objective)
		if err := printResult(result); err != nil {
			return err
		}
		if result.Status == domain.StatusFailed {
			if err := queue.Nack(delivery); err != nil {
				log.Warn("redelivery rejected", "error", err)
			}
		}
	}
}

func printResult(result domain.OrchestrationResult) error {
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
