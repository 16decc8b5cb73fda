package statemachine

import (
	"github.com/felixgeelhaar/statekit"
)

// TransitionPayload carries additional data with a transition event.
type TransitionPayload struct {
	ToState State
	Reason  string
	Err     error
}

// recordTransition appends the transition to the history. Actions receive
// **Context because the machine context is itself a pointer.
func recordTransition(ctx **Context, event statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	c := *ctx

	t := Transition{From: c.Current, To: stateFromEventType(event.Type)}
	if payload, ok := event.Payload.(TransitionPayload); ok {
		if payload.ToState != "" {
			t.To = payload.ToState
		}
		t.Reason = payload.Reason
	}

	c.Current = t.To
	c.History = append(c.History, t)
	if c.OnTransition != nil {
		c.OnTransition(t)
	}
}

// recordFailure stores the failure cause, then records the transition.
func recordFailure(ctx **Context, event statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	if payload, ok := event.Payload.(TransitionPayload); ok {
		(*ctx).Err = payload.Err
		if payload.Reason == "" && payload.Err != nil {
			payload.Reason = payload.Err.Error()
			event.Payload = payload
		}
	}
	recordTransition(ctx, event)
}
