package statemachine

import (
	"github.com/felixgeelhaar/statekit"
)

// guardHasError allows FAIL only when it carries a cause. Guards receive the
// context by value, which here is *Context.
func guardHasError(_ *Context, event statekit.Event) bool {
	payload, ok := event.Payload.(TransitionPayload)
	return ok && payload.Err != nil
}

// stateFromEventType derives the target state from an event type.
func stateFromEventType(eventType statekit.EventType) State {
	switch eventType {
	case EventDiff:
		return StateDiffed
	case EventResolve:
		return StateResolved
	case EventApply:
		return StateApplied
	case EventSkip:
		return StateSkipped
	case EventFail:
		return StateFailed
	default:
		return State(eventType)
	}
}
