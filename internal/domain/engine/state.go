package engine

import "fmt"

// State is the lifecycle position of a Context.
type State int32

const (
	StateCreated State = iota
	StatePreparing
	StateEvaluating
	StateCompleted
	StateTimedOut
	StateFailed
	StateDisposed
)

var stateNames = [...]string{"created", "preparing", "evaluating", "completed", "timed_out", "failed", "disposed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Terminal reports whether s ends the evaluation.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateTimedOut || s == StateFailed || s == StateDisposed
}
