package logic

// GateState is the state of a single lane's gate.
// PreviousIsOpen holds the result of the prior evaluation and exists only to
// detect the closed-to-open edge.
type GateState struct {
	Lane           Lane
	IsOpen         bool
	PreviousIsOpen bool
}

// GateStateMachine converts a proximity signal and a permission predicate into
// an open/closed gate, reporting rising edges.
type GateStateMachine struct {
	state GateState
}

// NewGateStateMachine creates a closed gate for the given lane.
func NewGateStateMachine(lane Lane) *GateStateMachine {
	return &GateStateMachine{state: GateState{Lane: lane}}
}

// Evaluate applies one reading. The gate is open iff the object is proximate
// and the lane is permitted; it closes in the same step when either stops
// holding. rising is true only on a closed-to-open transition.
func (g *GateStateMachine) Evaluate(proximate, permitted bool) (open, rising bool) {
	open = proximate && permitted
	rising = open && !g.state.IsOpen
	g.state.PreviousIsOpen = g.state.IsOpen
	g.state.IsOpen = open
	return open, rising
}

// Revert restores the state from before the last Evaluate call. Used when the
// side effect of a rising edge could not be committed, so the next proximate
// reading is seen as a fresh edge.
func (g *GateStateMachine) Revert() {
	g.state.IsOpen = g.state.PreviousIsOpen
}

// State returns a copy of the current gate state.
func (g *GateStateMachine) State() GateState {
	return g.state
}

// IsOpen returns whether the gate is currently open.
func (g *GateStateMachine) IsOpen() bool {
	return g.state.IsOpen
}
