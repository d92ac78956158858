package agents

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/internal/domain"
	"conductor/internal/usecase"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeCompleter struct {
	answer string
	err    error
	prompt string
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string, opts domain.CompleteOptions) (string, error) {
	f.prompt = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeCompleter) Name() string { return "fake" }

func TestLLMAgentExecute(t *testing.T) {
	completer := &fakeCompleter{answer: "  the findings  "}
	agent := NewLLMAgent(domain.AgentDescriptor{
		ID:           "research_agent",
		Capabilities: []string{domain.CapabilityResearch},
	}, "You are a researcher.", completer, discard())

	res, err := agent.Execute(context.Background(), domain.AgentTask{
		OrchestrationID: "o1",
		Task:            "find the facts",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, res.Status)
	assert.Equal(t, "the findings", res.Result)
	assert.NotEmpty(t, res.ReasoningTrace)

	// The preamble and task both reach the completer.
	assert.Contains(t, completer.prompt, "You are a researcher.")
	assert.Contains(t, completer.prompt, "find the facts")
}

func TestLLMAgentExecuteFailure(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("provider down")}
	agent := NewLLMAgent(domain.AgentDescriptor{ID: "a"}, "p", completer, discard())

	res, err := agent.Execute(context.Background(), domain.AgentTask{Task: "x"})
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, domain.TaskStatusError, res.Status)
	assert.NotEmpty(t, res.Error)
}

func TestRegisterDefaultFleet(t *testing.T) {
	registry := usecase.NewRegistry(discard())
	require.NoError(t, RegisterDefaultFleet(registry, &fakeCompleter{answer: "ok"}, discard()))

	descs := registry.List()
	assert.Len(t, descs, 7)

	// Every routing capability must be served.
	for _, capability := range []string{
		domain.CapabilityResearch, domain.CapabilityAnalysis, domain.CapabilityCreative,
		domain.CapabilityDevelopment, domain.CapabilityPlanning, domain.CapabilityQA,
		domain.CapabilityGeneral,
	} {
		_, err := registry.FindByCapability(capability)
		assert.NoError(t, err, "capability %s unserved", capability)
	}

	// The fleet seals the registry.
	err := registry.Register(domain.AgentDescriptor{ID: "late"}, nil)
	assert.ErrorIs(t, err, domain.ErrRegistrySealed)
}
