package lua

import "errors"

// Runtime errors.
var (
	// ErrStateClosed is returned when using a closed Lua state.
	ErrStateClosed = errors.New("lua: state is closed")

	// ErrExecutorClosed is returned when using a closed executor.
	ErrExecutorClosed = errors.New("lua: executor is closed")

	// ErrBudgetExceeded is returned when a guest call exceeds its
	// execution budget. The lifecycle manager treats it as a fault.
	ErrBudgetExceeded = errors.New("lua: execution budget exceeded")
)
