package observability

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/felixgeelhaar/ruleup/domain/telemetry"
)

// Provider owns the trace pipeline of a ruleup process.
type Provider struct {
	config   Config
	tracer   telemetry.Tracer
	shutdown []func(context.Context) error
}

// New creates a provider. The noop exporter yields a telemetry.NoopTracer
// without starting an SDK pipeline.
func New(opts ...Option) (*Provider, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &Provider{config: cfg, tracer: telemetry.NoopTracer{}}

	exporter, err := newExporter(context.Background(), cfg.Tracing)
	if err != nil {
		return nil, err
	}
	if exporter == nil {
		return p, nil
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(cfg.Tracing.BatchTimeout),
			sdktrace.WithMaxExportBatchSize(cfg.Tracing.MaxExportBatchSize),
		),
		// Merging with resource.Default() would conflict on schema URL.
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		)),
		sdktrace.WithSampler(sampler(cfg.Tracing.SampleRate)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	p.tracer = newTracer(tp.Tracer(cfg.ServiceName))
	p.shutdown = append(p.shutdown, tp.Shutdown)
	return p, nil
}

// newExporter returns nil for the noop exporter.
func newExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case ExporterNoop, "":
		return nil, nil
	case ExporterOTLP:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts,
				otlptracegrpc.WithInsecure(),
				otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
			)
		}
		return otlptracegrpc.New(ctx, opts...)
	case ExporterStdout:
		opts := []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
		if cfg.Writer != nil {
			opts = append(opts, stdouttrace.WithWriter(cfg.Writer))
		}
		return stdouttrace.New(opts...)
	default:
		return nil, fmt.Errorf("%w: %s", telemetry.ErrUnknownExporter, cfg.Exporter)
	}
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Tracer returns the tracer.
func (p *Provider) Tracer() telemetry.Tracer {
	return p.tracer
}

// Shutdown flushes pending spans and shuts down exporters.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range p.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", telemetry.ErrShutdownFailed, errors.Join(errs...))
	}
	return nil
}

// NewNoopProvider creates a provider with a no-op tracer.
func NewNoopProvider() *Provider {
	return &Provider{config: DefaultConfig(), tracer: telemetry.NoopTracer{}}
}
