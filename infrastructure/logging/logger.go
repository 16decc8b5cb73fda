// Package logging provides structured logging using bolt.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/felixgeelhaar/bolt/v3"
)

// Config configures the logger.
type Config struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string

	// Format is the output format (json or console).
	Format string

	// NoColor disables color output for console format.
	NoColor bool

	// Output is the output destination.
	Output io.Writer
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "console",
		Output: os.Stderr,
	}
}

// ProductionConfig returns a production-ready configuration.
func ProductionConfig() Config {
	return Config{
		Level:  "info",
		Format: "json",
		Output: os.Stderr,
	}
}

// parseLevel converts a string level to bolt.Level.
func parseLevel(s string) bolt.Level {
	switch s {
	case "trace":
		return bolt.TRACE
	case "debug":
		return bolt.DEBUG
	case "info":
		return bolt.INFO
	case "warn":
		return bolt.WARN
	case "error":
		return bolt.ERROR
	default:
		return bolt.INFO
	}
}

// New creates a logger from the given configuration.
func New(config Config) *bolt.Logger {
	output := config.Output
	if output == nil {
		output = os.Stderr
	}

	var handler bolt.Handler
	if config.Format == "json" {
		handler = bolt.NewJSONHandler(output)
	} else {
		handler = bolt.NewConsoleHandler(output)
	}

	return bolt.New(handler).SetLevel(parseLevel(config.Level))
}

// Nop returns a logger that discards everything.
func Nop() *bolt.Logger {
	return bolt.New(bolt.NewJSONHandler(io.Discard)).SetLevel(bolt.ERROR)
}

// Default returns the console logger used when an engine is built without
// one.
func Default() *bolt.Logger {
	return New(DefaultConfig())
}

// LogEvent wraps a bolt.Event so Fields and rule-scoped helpers can be
// chained on it.
type LogEvent struct {
	event *bolt.Event
}

// NewEvent wraps a bolt.Event for field application.
func NewEvent(e *bolt.Event) *LogEvent {
	return &LogEvent{event: e}
}

// Add applies a field to the event and returns the wrapper for chaining.
func (l *LogEvent) Add(f Field) *LogEvent {
	l.event = f(l.event)
	return l
}

// Rule identifies an installed rule at a revision.
func (l *LogEvent) Rule(ruleID string, revision int) *LogEvent {
	return l.Add(RuleID(ruleID)).Add(Revision(revision))
}

// Asset identifies a rule asset version.
func (l *LogEvent) Asset(ruleID string, version int) *LogEvent {
	return l.Add(RuleID(ruleID)).Add(Version(version))
}

// Transition describes an upgrade lifecycle step. An empty reason is omitted.
func (l *LogEvent) Transition(ruleID, from, to, reason string) *LogEvent {
	l.Add(RuleID(ruleID)).Add(FromState(from)).Add(ToState(to))
	if reason != "" {
		l.Add(Reason(reason))
	}
	return l
}

// Batch describes a bulk operation over n rules.
func (l *LogEvent) Batch(op string, n int, d time.Duration) *LogEvent {
	return l.Add(Operation(op)).Add(Count("rules", n)).Add(Duration(d))
}

// Failed attaches err when it is non-nil.
func (l *LogEvent) Failed(err error) *LogEvent {
	return l.Add(ErrorField(err))
}

// Msg sends the log event with a message.
func (l *LogEvent) Msg(msg string) {
	l.event.Msg(msg)
}

// Send sends the log event without a message.
func (l *LogEvent) Send() {
	l.event.Send()
}
