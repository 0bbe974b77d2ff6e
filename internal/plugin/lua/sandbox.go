package lua

import (
	lua "github.com/yuin/gopher-lua"
)

// Sandbox restricts a guest state to pure computation plus the host
// modules explicitly preloaded for it. Plugins never receive filesystem,
// network, process, or module-loading access; every effect on the editor
// goes through the capability broker.
type Sandbox struct {
	L *lua.LState

	// Host-provided modules require() may load.
	allowed map[string]bool
}

// builtinModules are gopher-lua built-ins safe to require.
var builtinModules = map[string]bool{
	"string": true,
	"table":  true,
	"math":   true,
}

// NewSandbox creates a sandbox for the given state.
func NewSandbox(L *lua.LState) *Sandbox {
	return &Sandbox{
		L:       L,
		allowed: make(map[string]bool),
	}
}

// Install applies the sandbox restrictions. Must run before any guest
// code executes.
func (s *Sandbox) Install() {
	// Code-loading primitives can smuggle source past the loader.
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		s.L.SetGlobal(name, lua.LNil)
	}

	s.installSafeRequire()
}

// AllowModule permits require() to load a host-preloaded module.
func (s *Sandbox) AllowModule(name string) {
	s.allowed[name] = true
}

// installSafeRequire clears the package search paths and replaces require
// with a whitelist version. Only gopher-lua built-ins and host-preloaded
// modules resolve; everything else raises.
func (s *Sandbox) installSafeRequire() {
	if pkg, ok := s.L.GetGlobal("package").(*lua.LTable); ok {
		s.L.SetField(pkg, "path", lua.LString(""))
		s.L.SetField(pkg, "cpath", lua.LString(""))
	}

	originalRequire := s.L.GetGlobal("require")

	s.L.SetGlobal("require", s.L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)

		if !builtinModules[name] && !s.allowed[name] {
			L.RaiseError("module %q is not available", name)
			return 0
		}

		L.Push(originalRequire)
		L.Push(lua.LString(name))
		L.Call(1, 1)
		return 1
	}))
}
