// Package telemetry defines the tracing interface used by the rule engine.
package telemetry

import (
	"context"
)

// Tracer creates spans for distributed tracing.
type Tracer interface {
	// StartSpan starts a new span and returns a new context containing the span.
	StartSpan(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Span represents a unit of work in a trace.
type Span interface {
	End()
	SetAttributes(attrs ...Attribute)
	RecordError(err error)
	SetStatus(code StatusCode, description string)
	AddEvent(name string, attrs ...Attribute)
}

// StatusCode represents the status of a span.
type StatusCode int

const (
	StatusCodeUnset StatusCode = iota
	StatusCodeOK
	StatusCodeError
)

// Attribute represents a key-value pair.
type Attribute struct {
	Key   string
	Value any
}

// String creates a string attribute.
func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

// Int creates an integer attribute.
func Int(key string, value int) Attribute {
	return Attribute{Key: key, Value: value}
}

// Bool creates a boolean attribute.
func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

// Strings creates a string slice attribute.
func Strings(key string, value []string) Attribute {
	return Attribute{Key: key, Value: value}
}

// NoopTracer discards every span.
type NoopTracer struct{}

// StartSpan implements Tracer.
func (NoopTracer) StartSpan(ctx context.Context, _ string, _ ...Attribute) (context.Context, Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End()                          {}
func (noopSpan) SetAttributes(...Attribute)    {}
func (noopSpan) RecordError(error)             {}
func (noopSpan) SetStatus(StatusCode, string)  {}
func (noopSpan) AddEvent(string, ...Attribute) {}

var _ Tracer = NoopTracer{}

// Finish records err on span, if any, and ends it.
func Finish(span Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(StatusCodeError, err.Error())
	} else {
		span.SetStatus(StatusCodeOK, "")
	}
	span.End()
}
