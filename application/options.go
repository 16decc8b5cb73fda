package application

import (
	"time"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/felixgeelhaar/ruleup/domain/rule"
	"github.com/felixgeelhaar/ruleup/domain/telemetry"
	"github.com/felixgeelhaar/ruleup/domain/upgrade"
)

// Option configures the engine.
type Option func(*EngineConfig)

// WithRuleStore sets the installed rule store.
func WithRuleStore(s rule.Store) Option {
	return func(c *EngineConfig) {
		c.Rules = s
	}
}

// WithAssetStore sets the prebuilt asset store.
func WithAssetStore(s rule.AssetStore) Option {
	return func(c *EngineConfig) {
		c.Assets = s
	}
}

// WithInvalidator sets the cache invalidated after package updates.
func WithInvalidator(i Invalidator) Option {
	return func(c *EngineConfig) {
		c.Invalidator = i
	}
}

// WithLogger sets the logger.
func WithLogger(l *bolt.Logger) Option {
	return func(c *EngineConfig) {
		c.Logger = l
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m Metrics) Option {
	return func(c *EngineConfig) {
		c.Metrics = m
	}
}

// WithTracer sets the tracer.
func WithTracer(t telemetry.Tracer) Option {
	return func(c *EngineConfig) {
		c.Tracer = t
	}
}

// WithConcurrency bounds how many rules are processed at once.
func WithConcurrency(n int) Option {
	return func(c *EngineConfig) {
		c.Concurrency = n
	}
}

// WithDefaultPickVersion sets the pick version used when a request names none.
func WithDefaultPickVersion(p upgrade.PickVersion) Option {
	return func(c *EngineConfig) {
		c.DefaultPickVersion = p
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(c *EngineConfig) {
		c.Clock = now
	}
}

// WithIDGenerator sets the generator of installed rule IDs.
func WithIDGenerator(gen func() string) Option {
	return func(c *EngineConfig) {
		c.IDGenerator = gen
	}
}

// NewEngineWithOptions creates an engine with functional options.
func NewEngineWithOptions(opts ...Option) (*Engine, error) {
	config := EngineConfig{}
	for _, opt := range opts {
		opt(&config)
	}
	return NewEngine(config)
}
