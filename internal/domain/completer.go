package domain

import "context"

// CompleteOptions tune a single completion request. Zero values mean
// provider defaults.
type CompleteOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Model       string  `json:"model,omitempty"`
}

// Completer is the opaque LLM completion capability. Callers treat it as
// best-effort: its failure must never be classified as a routing failure.
type Completer interface {
	// Complete sends a prompt and returns the model's text.
	Complete(ctx context.Context, prompt string, opts CompleteOptions) (string, error)
	// Name returns the provider's identifier (e.g., "bedrock").
	Name() string
}
