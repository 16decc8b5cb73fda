// Package statemachine drives the per-rule upgrade lifecycle with statekit.
//
// Every rule in a perform request walks pending → diffed → resolved →
// applied, or leaves early to skipped or failed.
package statemachine

import (
	"github.com/felixgeelhaar/statekit"
)

// State is a lifecycle stage of one rule upgrade.
type State string

// Lifecycle states.
const (
	StatePending  State = "pending"
	StateDiffed   State = "diffed"
	StateResolved State = "resolved"
	StateApplied  State = "applied"
	StateSkipped  State = "skipped"
	StateFailed   State = "failed"
)

// IsTerminal reports whether s is a final state.
func (s State) IsTerminal() bool {
	return s == StateApplied || s == StateSkipped || s == StateFailed
}

// Transition records one step of the lifecycle.
type Transition struct {
	From   State
	To     State
	Reason string
}

// Context carries one rule's lifecycle through the machine.
type Context struct {
	RuleID string

	// Current mirrors the machine state.
	Current State

	// Err is set when the rule failed.
	Err error

	// History lists every transition taken.
	History []Transition

	// OnTransition, if set, is called after every transition.
	OnTransition func(Transition)
}

// NewContext creates a lifecycle context for ruleID.
func NewContext(ruleID string) *Context {
	return &Context{RuleID: ruleID, Current: StatePending}
}

const (
	statePending  = statekit.StateID(StatePending)
	stateDiffed   = statekit.StateID(StateDiffed)
	stateResolved = statekit.StateID(StateResolved)
	stateApplied  = statekit.StateID(StateApplied)
	stateSkipped  = statekit.StateID(StateSkipped)
	stateFailed   = statekit.StateID(StateFailed)
)

// Event types.
const (
	EventDiff    statekit.EventType = "DIFF"
	EventResolve statekit.EventType = "RESOLVE"
	EventApply   statekit.EventType = "APPLY"
	EventSkip    statekit.EventType = "SKIP"
	EventFail    statekit.EventType = "FAIL"
)

// allowedTransitions mirrors the statechart below.
var allowedTransitions = map[State][]State{
	StatePending:  {StateDiffed, StateSkipped, StateFailed},
	StateDiffed:   {StateResolved, StateFailed},
	StateResolved: {StateApplied, StateFailed},
}

// NewUpgradeMachine creates the rule upgrade statechart. The returned config
// is immutable and may be shared by many interpreters.
func NewUpgradeMachine() (*statekit.MachineConfig[*Context], error) {
	return statekit.NewMachine[*Context]("rule-upgrade").
		WithInitial(statePending).
		WithContext(&Context{}).
		WithAction("recordTransition", recordTransition).
		WithAction("recordFailure", recordFailure).
		WithGuard("hasError", guardHasError).
		State(statePending).
			On(EventDiff).Target(stateDiffed).Do("recordTransition").
			On(EventSkip).Target(stateSkipped).Do("recordTransition").
			On(EventFail).Target(stateFailed).Guard("hasError").Do("recordFailure").
			Done().
		State(stateDiffed).
			On(EventResolve).Target(stateResolved).Do("recordTransition").
			On(EventFail).Target(stateFailed).Guard("hasError").Do("recordFailure").
			Done().
		State(stateResolved).
			On(EventApply).Target(stateApplied).Do("recordTransition").
			On(EventFail).Target(stateFailed).Guard("hasError").Do("recordFailure").
			Done().
		State(stateApplied).
			Final().
			Done().
		State(stateSkipped).
			Final().
			Done().
		State(stateFailed).
			Final().
			Done().
		Build()
}

// EventForTransition returns the event that moves a rule into to.
func EventForTransition(to State) statekit.EventType {
	switch to {
	case StateDiffed:
		return EventDiff
	case StateResolved:
		return EventResolve
	case StateApplied:
		return EventApply
	case StateSkipped:
		return EventSkip
	case StateFailed:
		return EventFail
	default:
		return statekit.EventType(to)
	}
}
