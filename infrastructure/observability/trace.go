package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/ruleup/domain/telemetry"
)

// tracer adapts an OpenTelemetry tracer to telemetry.Tracer. Engine spans
// are internal: they wrap batch and per-rule work, never remote calls.
type tracer struct {
	otel trace.Tracer
}

func newTracer(t trace.Tracer) *tracer {
	return &tracer{otel: t}
}

func (t *tracer) StartSpan(ctx context.Context, name string, attrs ...telemetry.Attribute) (context.Context, telemetry.Span) {
	ctx, s := t.otel.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(convertAttributes(attrs)...),
	)
	return ctx, span{s}
}

type span struct {
	trace.Span
}

func (s span) End() {
	s.Span.End()
}

func (s span) SetAttributes(attrs ...telemetry.Attribute) {
	s.Span.SetAttributes(convertAttributes(attrs)...)
}

// RecordError tags the event with the Go error type, which separates
// revision mismatches from resolution failures in the exported trace.
func (s span) RecordError(err error) {
	s.Span.RecordError(err, trace.WithAttributes(attribute.String("error.type", fmt.Sprintf("%T", err))))
}

func (s span) SetStatus(code telemetry.StatusCode, description string) {
	s.Span.SetStatus(convertStatusCode(code), description)
}

func (s span) AddEvent(name string, attrs ...telemetry.Attribute) {
	s.Span.AddEvent(name, trace.WithAttributes(convertAttributes(attrs)...))
}

var (
	_ telemetry.Tracer = (*tracer)(nil)
	_ telemetry.Span   = span{}
)

// convertAttributes maps attribute values onto OTel types. Unsupported
// types are dropped.
func convertAttributes(attrs []telemetry.Attribute) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, a := range attrs {
		var kv attribute.KeyValue
		switch v := a.Value.(type) {
		case string:
			kv = attribute.String(a.Key, v)
		case int:
			kv = attribute.Int(a.Key, v)
		case int64:
			kv = attribute.Int64(a.Key, v)
		case float64:
			kv = attribute.Float64(a.Key, v)
		case bool:
			kv = attribute.Bool(a.Key, v)
		case []string:
			kv = attribute.StringSlice(a.Key, v)
		case []int:
			kv = attribute.IntSlice(a.Key, v)
		default:
			continue
		}
		out = append(out, kv)
	}
	return out
}

func convertStatusCode(code telemetry.StatusCode) codes.Code {
	switch code {
	case telemetry.StatusCodeOK:
		return codes.Ok
	case telemetry.StatusCodeError:
		return codes.Error
	default:
		return codes.Unset
	}
}
