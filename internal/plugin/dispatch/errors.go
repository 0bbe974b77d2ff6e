package dispatch

import (
	"errors"
	"fmt"

	"github.com/vail-editor/vail/internal/plugin/schema"
)

// Dispatch validation errors. All are detected before the handler runs;
// a failed validation never invokes guest code.
var (
	ErrCommandNotFound   = errors.New("dispatch: command not found")
	ErrRangeNotSupported = errors.New("dispatch: command does not accept a range")
	ErrRangeRequired     = errors.New("dispatch: command requires a range")
)

// ArityViolationError reports an invocation whose argument count falls
// outside the command's declared arity.
type ArityViolationError struct {
	Command string
	Arity   schema.Arity
	Got     int
}

func (e *ArityViolationError) Error() string {
	return fmt.Sprintf("dispatch: command %q expects %s arguments, got %d", e.Command, e.Arity, e.Got)
}

// HandlerFaultError reports a guest handler that trapped, errored, or
// exceeded its execution budget. The owning plugin is faulted as a result.
type HandlerFaultError struct {
	Plugin  string
	Command string
	Err     error
}

func (e *HandlerFaultError) Error() string {
	return fmt.Sprintf("dispatch: handler for %q (plugin %s) faulted: %v", e.Command, e.Plugin, e.Err)
}

func (e *HandlerFaultError) Unwrap() error {
	return e.Err
}
