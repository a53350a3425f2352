package provider

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/wyhe/prism/internal/core"
)

// Config carries the per-provider settings an adapter needs at build time.
type Config struct {
	APIKey string
	// RateLimit is the outbound request budget in requests per second;
	// zero keeps the adapter's default.
	RateLimit float64
	Burst     int
}

// NewLimiter builds the outbound limiter for an adapter, falling back to
// the provider default when the config leaves the budget unset.
func NewLimiter(cfg Config, defaultPerSec float64, defaultBurst int) *rate.Limiter {
	perSec := cfg.RateLimit
	if perSec <= 0 {
		perSec = defaultPerSec
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	return rate.NewLimiter(rate.Limit(perSec), burst)
}

// WaitLimiter blocks until the limiter grants a slot or the context ends.
// A context cut short while throttled surfaces as provider-unavailable so
// the caller falls through to the next adapter instead of hanging.
func WaitLimiter(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return nil
	}
	if err := l.Wait(ctx); err != nil {
		return core.WrapError(core.ErrProviderUnavailable, fmt.Errorf("rate limited: %w", err))
	}
	return nil
}

// HTTPError maps an unexpected HTTP status to the unavailable error kind.
func HTTPError(id string, status int) error {
	return core.WrapError(core.ErrProviderUnavailable,
		fmt.Errorf("%s: unexpected status %d", id, status))
}

// Unsupported is the error for a capability the adapter does not serve.
// The router never places such adapters in a chain, so seeing this error
// means a wiring bug, not a provider outage.
func Unsupported(id string, kind core.DataKind) error {
	return core.WrapError(core.ErrProviderUnavailable,
		fmt.Errorf("%s does not support %s", id, kind))
}
