package lua

import (
	lua "github.com/yuin/gopher-lua"
)

// Bridge converts values between Go and the guest representation. Only the
// scalar and list shapes of the capability contract are supported: strings,
// numbers, booleans, string lists, and string-keyed tables of those.
type Bridge struct {
	L *lua.LState
}

// NewBridge creates a Bridge for the given state.
func NewBridge(L *lua.LState) *Bridge {
	return &Bridge{L: L}
}

// StringsToTable converts a string list to a 1-indexed Lua array.
func (b *Bridge) StringsToTable(values []string) *lua.LTable {
	t := b.L.NewTable()
	for i, v := range values {
		t.RawSetInt(i+1, lua.LString(v))
	}
	return t
}

// TableToStrings converts a Lua array to a string list. Non-string
// elements are rendered with their Lua string form.
func (b *Bridge) TableToStrings(t *lua.LTable) []string {
	n := t.Len()
	out := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, t.RawGetInt(i).String())
	}
	return out
}

// TableString reads a string field, reporting whether it was present.
func (b *Bridge) TableString(t *lua.LTable, key string) (string, bool) {
	if s, ok := t.RawGetString(key).(lua.LString); ok {
		return string(s), true
	}
	return "", false
}

// TableInt reads an integer field, reporting whether it was present.
func (b *Bridge) TableInt(t *lua.LTable, key string) (int, bool) {
	if n, ok := t.RawGetString(key).(lua.LNumber); ok {
		return int(n), true
	}
	return 0, false
}

// TableBool reads a boolean field, reporting whether it was present.
func (b *Bridge) TableBool(t *lua.LTable, key string) (bool, bool) {
	if v, ok := t.RawGetString(key).(lua.LBool); ok {
		return bool(v), true
	}
	return false, false
}

// TableTable reads a nested table field, reporting whether it was present.
func (b *Bridge) TableTable(t *lua.LTable, key string) (*lua.LTable, bool) {
	if sub, ok := t.RawGetString(key).(*lua.LTable); ok {
		return sub, true
	}
	return nil, false
}
