package resilience

import (
	"context"
	"time"

	"github.com/sells-group/arbitrage-cli/internal/config"
)

// Guard wraps external service calls with a per-service circuit breaker and
// the configured retry policy.
type Guard struct {
	breakers *ServiceBreakers
	retry    RetryConfig
}

// NewGuard creates a Guard. A zero RetryConfig means a single attempt.
func NewGuard(breakers *ServiceBreakers, retry RetryConfig) *Guard {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	return &Guard{breakers: breakers, retry: retry}
}

// FromConfig builds a Guard from the resilience config section.
func FromConfig(cfg config.ResilienceConfig) *Guard {
	retry := DefaultRetryConfig()
	retry.MaxAttempts = 1
	if cfg.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialBackoffMs > 0 {
		retry.InitialBackoff = time.Duration(cfg.InitialBackoffMs) * time.Millisecond
	}
	if cfg.MaxBackoffMs > 0 {
		retry.MaxBackoff = time.Duration(cfg.MaxBackoffMs) * time.Millisecond
	}
	if cfg.Multiplier > 0 {
		retry.Multiplier = cfg.Multiplier
	}
	if cfg.JitterFraction >= 0 {
		retry.JitterFraction = cfg.JitterFraction
	}

	cb := DefaultCircuitBreakerConfig()
	if cfg.FailureThreshold > 0 {
		cb.FailureThreshold = cfg.FailureThreshold
	}
	if cfg.ResetTimeoutSecs > 0 {
		cb.ResetTimeout = time.Duration(cfg.ResetTimeoutSecs) * time.Second
	}
	return NewGuard(NewServiceBreakers(cb), retry)
}

// Breakers exposes the breaker registry for status reporting.
func (g *Guard) Breakers() *ServiceBreakers { return g.breakers }

// Call runs fn for service through its breaker, retrying transient failures.
// An open circuit is never retried. A nil Guard calls fn directly.
func Call[T any](ctx context.Context, g *Guard, service string, fn func(ctx context.Context) (T, error)) (T, error) {
	if g == nil {
		return fn(ctx)
	}
	cb := g.breakers.Get(service)
	retry := g.retry
	retry.OnRetry = RetryLogger(service, "call")
	return DoVal(ctx, retry, func(ctx context.Context) (T, error) {
		return ExecuteVal(ctx, cb, fn)
	})
}
