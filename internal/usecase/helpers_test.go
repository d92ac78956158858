package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"conductor/internal/domain"
	"conductor/internal/infra/logger"
)

// stubExecutor is an AgentExecutor driven by a function.
type stubExecutor struct {
	fn func(ctx context.Context, task domain.AgentTask) (*domain.AgentResult, error)
}

func (s *stubExecutor) Execute(ctx context.Context, task domain.AgentTask) (*domain.AgentResult, error) {
	if s.fn == nil {
		return &domain.AgentResult{Status: domain.TaskStatusCompleted, Result: "ok"}, nil
	}
	return s.fn(ctx, task)
}

// okExecutor always completes with the given output.
func okExecutor(output string) *stubExecutor {
	return &stubExecutor{fn: func(ctx context.Context, task domain.AgentTask) (*domain.AgentResult, error) {
		return &domain.AgentResult{Status: domain.TaskStatusCompleted, Result: output}, nil
	}}
}

// newTestRegistry builds a sealed registry mirroring the default fleet.
func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(logger.Discard())
	fleet := []struct {
		id   domain.AgentID
		caps []string
	}{
		{"research_agent", []string{domain.CapabilityResearch, domain.CapabilityGeneral}},
		{"analysis_agent", []string{domain.CapabilityAnalysis, domain.CapabilityGeneral}},
		{"creative_agent", []string{domain.CapabilityCreative, domain.CapabilityGeneral}},
		{"development_agent", []string{domain.CapabilityDevelopment, domain.CapabilityGeneral}},
		{"planning_agent", []string{domain.CapabilityPlanning, domain.CapabilityGeneral}},
		{"qa_agent", []string{domain.CapabilityQA, domain.CapabilityGeneral}},
		{"general_agent", []string{domain.CapabilityGeneral}},
	}
	for _, f := range fleet {
		desc := domain.AgentDescriptor{ID: f.id, Capabilities: f.caps, Domain: f.caps[0]}
		if err := r.Register(desc, okExecutor(string(f.id)+" output")); err != nil {
			t.Fatalf("register %s: %v", f.id, err)
		}
	}
	r.Seal()
	return r
}

// fakeCompleter returns a fixed answer or error.
type fakeCompleter struct {
	answer string
	err    error
	calls  int
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string, opts domain.CompleteOptions) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeCompleter) Name() string { return "fake" }

// memStore is an in-memory KnowledgeStore with injectable failures.
type memStore struct {
	mu         sync.Mutex
	entries    []domain.KnowledgeEntry
	writeErr   error
	searchErr  error
	lastDomain string
}

func (m *memStore) Write(ctx context.Context, entry domain.KnowledgeEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	for _, e := range m.entries {
		if e.QueryHash == entry.QueryHash && e.Content == entry.Content {
			return nil
		}
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memStore) Search(ctx context.Context, query, knowledgeDomain string, limit int) ([]domain.KnowledgeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastDomain = knowledgeDomain
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	var out []domain.KnowledgeEntry
	for _, e := range m.entries {
		if knowledgeDomain == "" || e.Domain == knowledgeDomain {
			out = append(out, e)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.entries[:0]
	pruned := 0
	for _, e := range m.entries {
		if e.CreatedAt.Before(cutoff) {
			pruned++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return pruned, nil
}

func (m *memStore) Close() error { return nil }

// recordingBus captures published events without dispatching.
type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBus) Publish(ctx context.Context, event domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	return func() {}
}

func (b *recordingBus) count(t domain.EventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.Type == t {
			n++
		}
	}
	return n
}
