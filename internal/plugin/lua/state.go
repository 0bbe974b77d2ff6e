// Package lua hosts the sandboxed guest runtime for Vail plugins.
//
// Each plugin owns exactly one State. gopher-lua's LState is not
// goroutine-safe, so every call into a State must go through its plugin's
// Executor, which pins execution to a single goroutine.
package lua

import (
	"context"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// Default execution limits for guest calls.
const (
	DefaultExecutionBudget = 2 * time.Second
	DefaultCallStackSize   = 128
)

// State wraps a sandboxed gopher-lua state.
//
// Guest execution is bounded: each boundary call (load, initialize, exec,
// shutdown) runs under a deadline installed via LState.SetContext, so a
// non-terminating plugin cannot stall the host indefinitely.
type State struct {
	mu sync.Mutex

	L       *lua.LState
	sandbox *Sandbox

	budget time.Duration

	closed bool
}

// StateOption configures a State.
type StateOption func(*State)

// WithExecutionBudget bounds the wall-clock time of a single guest call.
func WithExecutionBudget(d time.Duration) StateOption {
	return func(s *State) {
		s.budget = d
	}
}

// NewState creates a sandboxed Lua state with only the safe standard
// libraries opened.
func NewState(opts ...StateOption) *State {
	s := &State{
		budget: DefaultExecutionBudget,
	}
	for _, opt := range opts {
		opt(s)
	}

	L := lua.NewState(lua.Options{
		SkipOpenLibs:        true,
		CallStackSize:       DefaultCallStackSize,
		IncludeGoStackTrace: false,
	})
	s.L = L

	openSafeLibraries(L)

	s.sandbox = NewSandbox(L)
	s.sandbox.Install()

	return s
}

// openSafeLibraries opens the Lua standard libraries that cannot touch
// the host environment, plus the package library so require and
// package.preload exist. The sandbox then clears the package search paths
// and replaces require with a whitelist version, so the package library's
// file loaders are unreachable. io, os, and debug stay closed.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenPackage(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

// DoFile loads and runs a plugin source file under the execution budget.
func (s *State) DoFile(ctx context.Context, path string) error {
	return s.guarded(ctx, func() error {
		return s.L.DoFile(path)
	})
}

// Call invokes a global guest function under the execution budget and
// returns its results.
func (s *State) Call(ctx context.Context, fn string, args ...lua.LValue) ([]lua.LValue, error) {
	var results []lua.LValue
	err := s.guarded(ctx, func() error {
		fnVal := s.L.GetGlobal(fn)
		if fnVal.Type() != lua.LTFunction {
			return fmt.Errorf("lua: %q is not a function (got %s)", fn, fnVal.Type())
		}

		top := s.L.GetTop()
		s.L.Push(fnVal)
		for _, arg := range args {
			s.L.Push(arg)
		}
		if err := s.L.PCall(len(args), lua.MultRet, nil); err != nil {
			return err
		}

		n := s.L.GetTop() - top
		results = make([]lua.LValue, n)
		for i := 0; i < n; i++ {
			results[i] = s.L.Get(top + i + 1)
		}
		s.L.Pop(n)
		return nil
	})
	return results, err
}

// CallValue invokes a guest function value (e.g. a handler method) under
// the execution budget, discarding results.
func (s *State) CallValue(ctx context.Context, fn lua.LValue, args ...lua.LValue) error {
	return s.guarded(ctx, func() error {
		s.L.Push(fn)
		for _, arg := range args {
			s.L.Push(arg)
		}
		return s.L.PCall(len(args), 0, nil)
	})
}

// guarded runs fn with the budget deadline installed and panic recovery.
// Traps inside guest code never unwind past this point.
func (s *State) guarded(ctx context.Context, fn func() error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStateClosed
	}

	if s.budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.budget)
		defer cancel()
	}
	s.L.SetContext(ctx)
	defer s.L.RemoveContext()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua: guest trap: %v", r)
		}
		if err != nil && ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", ErrBudgetExceeded, err)
		}
	}()
	return fn()
}

// GetGlobal returns a global value, or LNil when the state is closed.
func (s *State) GetGlobal(name string) lua.LValue {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return lua.LNil
	}
	return s.L.GetGlobal(name)
}

// HasFunction reports whether the guest defines the named global function.
func (s *State) HasFunction(name string) bool {
	return s.GetGlobal(name).Type() == lua.LTFunction
}

// PreloadModule makes a host-provided module available to require().
func (s *State) PreloadModule(name string, loader lua.LGFunction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.L.PreloadModule(name, loader)
	s.sandbox.AllowModule(name)
}

// LuaState exposes the raw LState. Callers bypass the budget and the
// mutex; only the owning executor goroutine may use it.
func (s *State) LuaState() *lua.LState {
	return s.L
}

// Sandbox returns the installed sandbox.
func (s *State) Sandbox() *Sandbox {
	return s.sandbox
}

// IsClosed reports whether Close has been called.
func (s *State) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close releases the Lua state. All later calls return ErrStateClosed.
func (s *State) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.L.Close()
	s.closed = true
}
