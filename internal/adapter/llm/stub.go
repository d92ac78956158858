// Package llm provides Completer implementations and resilience decorators.
package llm

import (
	"context"

	"conductor/internal/domain"
)

// StaticCompleter returns a canned completion for every prompt. It backs the
// "static" provider so the engine can run offline and in tests.
type StaticCompleter struct {
	name     string
	response string
}

// NewStaticCompleter creates a completer that always answers with response.
func NewStaticCompleter(response string) *StaticCompleter {
	if response == "" {
		response = "Task handled with the available context."
	}
	return &StaticCompleter{name: "static", response: response}
}

// Complete implements domain.Completer.
func (s *StaticCompleter) Complete(ctx context.Context, prompt string, opts domain.CompleteOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.response, nil
}

// Name implements domain.Completer.
func (s *StaticCompleter) Name() string { return s.name }

// Compile-time interface check.
var _ domain.Completer = (*StaticCompleter)(nil)
