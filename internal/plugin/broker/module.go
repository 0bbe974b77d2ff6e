package broker

import (
	"errors"

	lua "github.com/yuin/gopher-lua"

	"github.com/vail-editor/vail/internal/plugin/schema"
)

// ModuleName is the guest-visible module plugins require for editor access.
const ModuleName = "ed"

// ModuleLoader returns the gopher-lua loader for the "ed" module, bound to
// one plugin's session. Every function goes through the broker; none holds
// editor state. Capability-time failures (stale handles, readonly buffers,
// revoked sessions) come back to the guest as nil plus a message, never as
// a raised error.
func (b *Broker) ModuleLoader(s *Session) lua.LGFunction {
	return func(L *lua.LState) int {
		mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
			"insert":          b.luaInsert(s),
			"get_mode":        b.luaGetMode(s),
			"set_mode":        b.luaSetMode(s),
			"get_active_view": b.luaActiveView(s),
			"view_buffer":     b.luaViewBuffer(s),
			"view_cursor":     b.luaViewCursor(s),
			"view_set_cursor": b.luaViewSetCursor(s),
		})
		L.Push(mod)
		return 1
	}
}

// pushErr reports a capability failure to the guest as (nil, message).
func pushErr(L *lua.LState, err error) int {
	var editErr *schema.EditError
	if errors.As(err, &editErr) {
		L.Push(lua.LNil)
		L.Push(lua.LString(editErr.Kind.String()))
		return 2
	}
	L.Push(lua.LNil)
	L.Push(lua.LString(err.Error()))
	return 2
}

func (b *Broker) luaInsert(s *Session) lua.LGFunction {
	return func(L *lua.LState) int {
		text := L.CheckString(1)
		if err := b.Insert(s, text); err != nil {
			return pushErr(L, err)
		}
		L.Push(lua.LTrue)
		return 1
	}
}

func (b *Broker) luaGetMode(s *Session) lua.LGFunction {
	return func(L *lua.LState) int {
		m, err := b.GetMode(s)
		if err != nil {
			return pushErr(L, err)
		}
		L.Push(lua.LString(m.String()))
		if m.Kind == schema.ModeOperatorPending {
			L.Push(lua.LString(m.Operator.String()))
			return 2
		}
		return 1
	}
}

func (b *Broker) luaSetMode(s *Session) lua.LGFunction {
	return func(L *lua.LState) int {
		kind := L.CheckString(1)
		operator := L.OptString(2, "")
		m, err := schema.ParseMode(kind, operator)
		if err != nil {
			// A malformed mode is a contract violation by the guest,
			// not a capability failure.
			L.ArgError(1, err.Error())
			return 0
		}
		if err := b.SetMode(s, m); err != nil {
			return pushErr(L, err)
		}
		L.Push(lua.LTrue)
		return 1
	}
}

func (b *Broker) luaActiveView(s *Session) lua.LGFunction {
	return func(L *lua.LState) int {
		h, err := b.ActiveView(s)
		if err != nil {
			return pushErr(L, err)
		}
		L.Push(lua.LNumber(h))
		return 1
	}
}

func (b *Broker) luaViewBuffer(s *Session) lua.LGFunction {
	return func(L *lua.LState) int {
		view := Handle(L.CheckNumber(1))
		h, err := b.ViewBuffer(s, view)
		if err != nil {
			return pushErr(L, err)
		}
		L.Push(lua.LNumber(h))
		return 1
	}
}

func (b *Broker) luaViewCursor(s *Session) lua.LGFunction {
	return func(L *lua.LState) int {
		view := Handle(L.CheckNumber(1))
		p, err := b.ViewCursor(s, view)
		if err != nil {
			return pushErr(L, err)
		}
		L.Push(lua.LNumber(p.Line))
		L.Push(lua.LNumber(p.Col))
		return 2
	}
}

func (b *Broker) luaViewSetCursor(s *Session) lua.LGFunction {
	return func(L *lua.LState) int {
		view := Handle(L.CheckNumber(1))
		line := L.CheckInt(2)
		col := L.CheckInt(3)
		if line < 0 || col < 0 {
			L.ArgError(2, "cursor position must be non-negative")
			return 0
		}
		p := schema.Point{Line: uint32(line), Col: uint32(col)}
		if err := b.ViewSetCursor(s, view, p); err != nil {
			return pushErr(L, err)
		}
		L.Push(lua.LTrue)
		return 1
	}
}
