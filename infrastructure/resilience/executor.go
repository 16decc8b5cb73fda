// Package resilience provides resilient execution patterns using fortify.
package resilience

import (
	"context"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"

	"github.com/felixgeelhaar/ruleup/domain/config"
	"github.com/felixgeelhaar/ruleup/domain/pack"
	"github.com/felixgeelhaar/ruleup/domain/rule"
)

// Executor runs calls with timeout, circuit breaker and retry applied.
type Executor[T any] struct {
	breaker circuitbreaker.CircuitBreaker[T]
	retry   retry.Retry[T]
	timeout time.Duration
}

// ExecutorConfig configures the resilient executor.
type ExecutorConfig struct {
	// CircuitBreakerThreshold is the number of consecutive failures before
	// opening. Zero disables the breaker.
	CircuitBreakerThreshold int

	// CircuitBreakerTimeout is how long the circuit stays open.
	CircuitBreakerTimeout time.Duration

	// RetryMaxAttempts is the maximum number of attempts, including the
	// first. Values below one mean a single attempt.
	RetryMaxAttempts int

	// RetryInitialDelay is the initial delay between retries.
	RetryInitialDelay time.Duration

	// RetryBackoffMultiplier is the exponential backoff multiplier.
	RetryBackoffMultiplier float64

	// Timeout bounds a single call, retries included. Zero means no limit.
	Timeout time.Duration

	// NonRetryableErrors are returned immediately.
	NonRetryableErrors []error
}

// DefaultExecutorConfig returns a configuration with sensible defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   30 * time.Second,
		RetryMaxAttempts:        3,
		RetryInitialDelay:       100 * time.Millisecond,
		RetryBackoffMultiplier:  2.0,
		Timeout:                 30 * time.Second,
		NonRetryableErrors: []error{
			pack.ErrPackNotFound,
			pack.ErrInvalidPack,
			pack.ErrUnsupportedFormat,
			rule.ErrInvalidAsset,
		},
	}
}

// FromConfig converts the resilience section of a ruleup configuration.
func FromConfig(cfg config.ResilienceConfig) ExecutorConfig {
	out := DefaultExecutorConfig()
	out.Timeout = time.Duration(cfg.Timeout)

	out.RetryMaxAttempts = 1
	if cfg.Retry.Enabled {
		out.RetryMaxAttempts = cfg.Retry.MaxAttempts
		out.RetryInitialDelay = time.Duration(cfg.Retry.InitialDelay)
		out.RetryBackoffMultiplier = cfg.Retry.Multiplier
	}

	out.CircuitBreakerThreshold = 0
	if cfg.CircuitBreaker.Enabled {
		out.CircuitBreakerThreshold = cfg.CircuitBreaker.Threshold
		if d := time.Duration(cfg.CircuitBreaker.Timeout); d > 0 {
			out.CircuitBreakerTimeout = d
		}
	}
	return out
}

// NewExecutor creates a new resilient executor.
func NewExecutor[T any](config ExecutorConfig) *Executor[T] {
	attempts := config.RetryMaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	multiplier := config.RetryBackoffMultiplier
	if multiplier < 1 {
		multiplier = 1
	}

	e := &Executor[T]{
		retry: retry.New[T](retry.Config{
			MaxAttempts:        attempts,
			InitialDelay:       config.RetryInitialDelay,
			BackoffPolicy:      retry.BackoffExponential,
			Multiplier:         multiplier,
			NonRetryableErrors: config.NonRetryableErrors,
		}),
		timeout: config.Timeout,
	}

	if threshold := config.CircuitBreakerThreshold; threshold > 0 {
		e.breaker = circuitbreaker.New[T](circuitbreaker.Config{
			MaxRequests: 1,
			Interval:    config.CircuitBreakerTimeout,
			Timeout:     config.CircuitBreakerTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(threshold) // #nosec G115 -- threshold is positive
			},
		})
	}
	return e
}

// Do runs fn. Composition order: Timeout → Circuit Breaker → Retry.
func (e *Executor[T]) Do(ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	attempt := func(ctx context.Context) (T, error) {
		return e.retry.Do(ctx, fn)
	}
	if e.breaker == nil {
		return attempt(ctx)
	}
	return e.breaker.Execute(ctx, attempt)
}

// CircuitBreakerState returns the breaker state, or "disabled".
func (e *Executor[T]) CircuitBreakerState() string {
	if e.breaker == nil {
		return "disabled"
	}
	return e.breaker.State().String()
}
