package logging

import (
	"time"

	"github.com/felixgeelhaar/bolt/v3"
)

// Field is a function that applies structured data to a log event.
type Field func(*bolt.Event) *bolt.Event

// Common field constructors for rule engine logging.

// RuleID adds a rule_id field.
func RuleID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("rule_id", id)
	}
}

// Version adds a rule asset version field.
func Version(v int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("version", v)
	}
}

// TargetVersion adds the version a rule is upgraded to.
func TargetVersion(v int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("target_version", v)
	}
}

// Revision adds an installed rule revision field.
func Revision(r int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("revision", r)
	}
}

// PickVersion adds a pick_version field.
func PickVersion(p string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("pick_version", p)
	}
}

// FieldName adds the name of a rule field.
func FieldName(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("field", name)
	}
}

// Mode adds a request mode field.
func Mode(m string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("mode", m)
	}
}

// Count adds a named count field.
func Count(key string, n int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int(key, n)
	}
}

// FromState adds a from_state field for transitions.
func FromState(s string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("from_state", s)
	}
}

// ToState adds a to_state field for transitions.
func ToState(s string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("to_state", s)
	}
}

// Source adds a package source field.
func Source(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("source", name)
	}
}

// Duration adds a duration field in milliseconds.
func Duration(d time.Duration) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64("duration_ms", d.Milliseconds())
	}
}

// DryRun adds a dry_run field.
func DryRun(dry bool) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Bool("dry_run", dry)
	}
}

// ErrorField adds an error field.
func ErrorField(err error) Field {
	return func(e *bolt.Event) *bolt.Event {
		if err == nil {
			return e
		}
		return e.Err(err)
	}
}

// Reason adds a reason field.
func Reason(reason string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("reason", reason)
	}
}

// Component adds a component field for categorization.
func Component(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("component", name)
	}
}

// Operation adds an operation field.
func Operation(op string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("operation", op)
	}
}

// Str adds a string field with custom key.
func Str(key, value string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str(key, value)
	}
}
