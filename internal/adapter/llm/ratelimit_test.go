package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/internal/domain"
)

func TestRateLimitPassesThroughWithinBudget(t *testing.T) {
	inner := &flakyCompleter{}
	rl := NewRateLimitedCompleter(inner, 6000, 10, discard())

	for i := 0; i < 5; i++ {
		out, err := rl.Complete(context.Background(), "x", domain.CompleteOptions{})
		require.NoError(t, err)
		assert.Equal(t, "answer", out)
	}
	assert.Equal(t, 5, inner.calls)
	assert.Equal(t, "flaky", rl.Name())
}

func TestRateLimitBlocksUntilContextEnds(t *testing.T) {
	inner := &flakyCompleter{}
	// 1 request/min with burst 1: the second call has no token available.
	rl := NewRateLimitedCompleter(inner, 1, 1, discard())

	_, err := rl.Complete(context.Background(), "x", domain.CompleteOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = rl.Complete(ctx, "x", domain.CompleteOptions{})
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}
