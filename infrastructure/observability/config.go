// Package observability provides OpenTelemetry tracing for the upgrade engine.
package observability

import (
	"io"
	"time"

	"github.com/felixgeelhaar/ruleup"
	domainconfig "github.com/felixgeelhaar/ruleup/domain/config"
)

// Config configures the observability infrastructure.
type Config struct {
	// ServiceName is the name of the service for telemetry.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// Environment is the deployment environment (e.g., "production", "staging").
	Environment string

	// Tracing configures distributed tracing.
	Tracing TracingConfig
}

// TracingConfig configures distributed tracing.
type TracingConfig struct {
	// Exporter specifies the trace exporter type.
	Exporter ExporterType

	// Endpoint is the OTLP endpoint (e.g., "localhost:4317").
	Endpoint string

	// Insecure disables TLS for the exporter connection.
	Insecure bool

	// SampleRate is the sampling rate (0.0-1.0, default: 1.0).
	SampleRate float64

	// BatchTimeout is the batch export timeout.
	BatchTimeout time.Duration

	// MaxExportBatchSize is the maximum batch size.
	MaxExportBatchSize int

	// Writer receives stdout exporter output; nil means os.Stdout.
	Writer io.Writer
}

// ExporterType specifies the telemetry exporter.
type ExporterType string

const (
	// ExporterOTLP exports to OTLP endpoint (e.g., Jaeger, Tempo, Grafana).
	ExporterOTLP ExporterType = "otlp"

	// ExporterStdout exports to stdout (useful for development).
	ExporterStdout ExporterType = "stdout"

	// ExporterNoop disables export (no-op).
	ExporterNoop ExporterType = "noop"
)

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "ruleup",
		ServiceVersion: ruleup.Version,
		Environment:    "development",
		Tracing: TracingConfig{
			Exporter:           ExporterNoop,
			SampleRate:         1.0,
			BatchTimeout:       5 * time.Second,
			MaxExportBatchSize: 512,
		},
	}
}

// Option configures the observability infrastructure.
type Option func(*Config)

// WithServiceName sets the service name.
func WithServiceName(name string) Option {
	return func(c *Config) {
		c.ServiceName = name
	}
}

// WithEnvironment sets the environment.
func WithEnvironment(env string) Option {
	return func(c *Config) {
		c.Environment = env
	}
}

// WithTracing enables tracing with the specified exporter.
func WithTracing(exporter ExporterType, endpoint string) Option {
	return func(c *Config) {
		c.Tracing.Exporter = exporter
		c.Tracing.Endpoint = endpoint
	}
}

// WithTracingInsecure disables TLS for tracing.
func WithTracingInsecure() Option {
	return func(c *Config) {
		c.Tracing.Insecure = true
	}
}

// WithSampleRate sets the trace sampling rate.
func WithSampleRate(rate float64) Option {
	return func(c *Config) {
		c.Tracing.SampleRate = rate
	}
}

// WithStdoutTracing enables stdout tracing into w (for development).
func WithStdoutTracing(w io.Writer) Option {
	return func(c *Config) {
		c.Tracing.Exporter = ExporterStdout
		c.Tracing.Writer = w
	}
}

// FromConfig converts the telemetry section of a ruleup configuration.
func FromConfig(cfg domainconfig.TelemetryConfig) []Option {
	opts := []Option{
		WithTracing(ExporterType(cfg.Tracing), cfg.Endpoint),
		WithSampleRate(cfg.SampleRate),
	}
	if cfg.Insecure {
		opts = append(opts, WithTracingInsecure())
	}
	return opts
}
