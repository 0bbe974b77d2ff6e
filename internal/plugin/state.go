package plugin

// State is a plugin's lifecycle state.
type State int

// Lifecycle states. The happy path is Unloaded → Initializing → Active →
// ShuttingDown → Unloaded. Failed marks a plugin whose load or initialize
// did not complete; Faulted marks a plugin whose handler trapped at
// runtime. Both are terminal for the session.
const (
	StateUnloaded State = iota
	StateInitializing
	StateActive
	StateShuttingDown
	StateFailed
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateShuttingDown:
		return "shutting_down"
	case StateFailed:
		return "failed"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

var transitions = map[State][]State{
	StateUnloaded:     {StateInitializing, StateFailed},
	StateInitializing: {StateActive, StateFailed},
	StateActive:       {StateShuttingDown, StateFaulted},
	StateShuttingDown: {StateUnloaded},
}

// CanTransition reports whether the move from s to next is legal.
func (s State) CanTransition(next State) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the state ends a plugin's participation in the
// current load session.
func (s State) Terminal() bool {
	return s == StateFailed || s == StateFaulted
}
