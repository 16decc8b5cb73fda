package statemachine

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// ErrInvalidTransition is returned when the machine rejects a transition.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// Interpreter runs one rule's lifecycle.
type Interpreter struct {
	interp *statekit.Interpreter[*Context]
	ctx    *Context
}

// NewInterpreter creates an interpreter over machine for ctx.
func NewInterpreter(machine *statekit.MachineConfig[*Context], ctx *Context) *Interpreter {
	interp := statekit.NewInterpreter(machine)
	interp.UpdateContext(func(c **Context) {
		*c = ctx
	})
	return &Interpreter{interp: interp, ctx: ctx}
}

// Start enters the initial state.
func (i *Interpreter) Start() {
	i.interp.Start()
	i.ctx.Current = State(i.interp.State().Value)
}

// Stop stops the interpreter.
func (i *Interpreter) Stop() {
	i.interp.Stop()
}

// State returns the current state.
func (i *Interpreter) State() State {
	return State(i.interp.State().Value)
}

// Transition moves the rule to the target state.
func (i *Interpreter) Transition(to State, reason string) error {
	return i.send(TransitionPayload{ToState: to, Reason: reason})
}

// Diffed marks the three-way diff as calculated.
func (i *Interpreter) Diffed() error {
	return i.Transition(StateDiffed, "")
}

// Resolved marks the merged rule as built.
func (i *Interpreter) Resolved() error {
	return i.Transition(StateResolved, "")
}

// Applied marks the upgraded rule as persisted.
func (i *Interpreter) Applied() error {
	return i.Transition(StateApplied, "")
}

// Skip ends the lifecycle without an upgrade.
func (i *Interpreter) Skip(reason string) error {
	return i.Transition(StateSkipped, reason)
}

// Fail ends the lifecycle with err, which must be non-nil.
func (i *Interpreter) Fail(err error) error {
	return i.send(TransitionPayload{ToState: StateFailed, Err: err})
}

// CanTransition reports whether the machine defines a transition to s from
// the current state.
func (i *Interpreter) CanTransition(to State) bool {
	for _, next := range allowedTransitions[i.State()] {
		if next == to {
			return true
		}
	}
	return false
}

func (i *Interpreter) send(payload TransitionPayload) error {
	from := i.State()
	if !i.CanTransition(payload.ToState) {
		return fmt.Errorf("%w: %s to %s for rule %s", ErrInvalidTransition, from, payload.ToState, i.ctx.RuleID)
	}
	i.interp.Send(statekit.Event{
		Type:    EventForTransition(payload.ToState),
		Payload: payload,
	})
	if to := i.State(); to != payload.ToState {
		return fmt.Errorf("%w: %s to %s for rule %s", ErrInvalidTransition, from, payload.ToState, i.ctx.RuleID)
	}
	return nil
}

// IsTerminal returns true if the interpreter is in a final state.
func (i *Interpreter) IsTerminal() bool {
	return i.interp.Done()
}

// Matches checks if the current state matches s.
func (i *Interpreter) Matches(s State) bool {
	return i.interp.Matches(statekit.StateID(s))
}

// Context returns the interpreter context.
func (i *Interpreter) Context() *Context {
	return i.ctx
}

// Err returns the failure cause, if any.
func (i *Interpreter) Err() error {
	return i.ctx.Err
}
