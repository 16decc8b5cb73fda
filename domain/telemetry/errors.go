package telemetry

import "errors"

var (
	// ErrUnknownExporter indicates an unsupported trace exporter.
	ErrUnknownExporter = errors.New("unknown trace exporter")

	// ErrShutdownFailed indicates shutdown failed.
	ErrShutdownFailed = errors.New("shutdown failed")
)
