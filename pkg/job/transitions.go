package job

import "fmt"

// legalTransitions encodes the state machine from spec.md §4.1. A same-state
// entry is always legal (refreshes LastUpdatedAt only).
var legalTransitions = map[Status]map[Status]bool{
	StatusQueued: {
		StatusInProgress: true,
		StatusScheduled:  true,
		StatusCompleted:  true,
		StatusFailed:     true,
		StatusCanceled:   true,
	},
	StatusScheduled: {
		StatusQueued:   true,
		StatusCanceled: true,
	},
	StatusInProgress: {
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCanceled:  true,
	},
	StatusFailed: {
		StatusQueued:    true,
		StatusScheduled: true,
		StatusCanceled:  true,
	},
	StatusCompleted: {
		StatusCanceled: true,
	},
	StatusCanceled: {},
}

// Transition reports whether moving from -> to is a legal edge of the job
// state machine. Same-state transitions are always legal.
func Transition(from, to Status) error {
	if from == to {
		return nil
	}
	if edges, ok := legalTransitions[from]; ok && edges[to] {
		return nil
	}
	return &Error{
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("illegal job state transition %s -> %s", from, to),
	}
}

// isTerminal reports whether s is a state with no further transitions out.
func isTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}
