package resilience

import "time"

// Option configures the executor.
type Option func(*ExecutorConfig)

// WithCircuitBreakerThreshold sets the failure threshold for circuit breaker.
func WithCircuitBreakerThreshold(n int) Option {
	return func(c *ExecutorConfig) {
		c.CircuitBreakerThreshold = n
	}
}

// WithCircuitBreakerTimeout sets the circuit breaker open duration.
func WithCircuitBreakerTimeout(d time.Duration) Option {
	return func(c *ExecutorConfig) {
		c.CircuitBreakerTimeout = d
	}
}

// WithRetryAttempts sets the maximum retry attempts.
func WithRetryAttempts(n int) Option {
	return func(c *ExecutorConfig) {
		c.RetryMaxAttempts = n
	}
}

// WithRetryDelay sets the initial retry delay.
func WithRetryDelay(d time.Duration) Option {
	return func(c *ExecutorConfig) {
		c.RetryInitialDelay = d
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *ExecutorConfig) {
		c.Timeout = d
	}
}

// WithNonRetryable adds errors that are never retried.
func WithNonRetryable(errs ...error) Option {
	return func(c *ExecutorConfig) {
		c.NonRetryableErrors = append(c.NonRetryableErrors, errs...)
	}
}

// NewExecutorWithOptions creates an executor with the given options.
func NewExecutorWithOptions[T any](opts ...Option) *Executor[T] {
	config := DefaultExecutorConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return NewExecutor[T](config)
}
