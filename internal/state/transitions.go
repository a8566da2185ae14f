package state

// validTransitions contains the permitted transitions other than resetting to idle.
var validTransitions = map[State][]State{
	StateIdle: {
		StateQuoted,
	},
	StateQuoted: {
		StateQuoted,
		StateExecuting,
		StateCancelled,
	},
	StateExecuting: {
		StateExecuted,
		StateFailed,
	},
	StateExecuted: {
		StateQuoted,
	},
	StateFailed: {
		StateQuoted,
	},
	StateCancelled: {
		StateQuoted,
	},
}

// IsTransitionAllowed reports whether moving from one state to another is valid.
func IsTransitionAllowed(from, to State) bool {
	if to == StateIdle {
		return true
	}

	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}

	for _, state := range allowed {
		if state == to {
			return true
		}
	}

	return false
}

// IsTerminal reports whether a session in this state has no quote to confirm.
func IsTerminal(s State) bool {
	switch s {
	case StateExecuted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}
