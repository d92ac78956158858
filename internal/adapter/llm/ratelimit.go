package llm

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"

	"conductor/internal/domain"
)

// RateLimitedCompleter throttles calls to the wrapped completer with a token
// bucket. Callers block until a token is available or their context ends.
type RateLimitedCompleter struct {
	inner   domain.Completer
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewRateLimitedCompleter wraps inner with a limiter allowing requestsPerMin
// sustained calls and bursts of up to burst.
func NewRateLimitedCompleter(inner domain.Completer, requestsPerMin float64, burst int, logger *slog.Logger) *RateLimitedCompleter {
	if requestsPerMin <= 0 {
		requestsPerMin = 60
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedCompleter{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(requestsPerMin/60.0), burst),
		logger:  logger,
	}
}

// Complete implements domain.Completer.
func (c *RateLimitedCompleter) Complete(ctx context.Context, prompt string, opts domain.CompleteOptions) (string, error) {
	if !c.limiter.Allow() {
		c.logger.Debug("completer throttled, waiting for token", "completer", c.inner.Name())
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	return c.inner.Complete(ctx, prompt, opts)
}

// Name implements domain.Completer.
func (c *RateLimitedCompleter) Name() string { return c.inner.Name() }

// Compile-time interface check.
var _ domain.Completer = (*RateLimitedCompleter)(nil)
