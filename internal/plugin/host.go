package plugin

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"

	plua "github.com/vail-editor/vail/internal/plugin/lua"
	"github.com/vail-editor/vail/internal/plugin/schema"
)

// Guest entry points. A plugin source file defines the global
// api_version (a number equal to schema.Version) and the functions
// plugin_name() and initialize(); dependencies(), shutdown() and
// new_handler() are optional, though new_handler() becomes required the
// moment initialize() declares commands.
//
// initialize() returns a table of the shape
//
//	{ commands = { { name = "yank", min = 0, max = 1, range = false }, ... } }
//
// new_handler() returns the plugin's command handler: a table with an
// exec(self, cmd, args, range) method. Range arrives as a table with
// start and stop fields, or nil when the invocation carried no range.
const (
	globalAPIVersion  = "api_version"
	fnPluginName      = "plugin_name"
	fnDependencies    = "dependencies"
	fnInitialize      = "initialize"
	fnShutdown        = "shutdown"
	fnNewHandler      = "new_handler"
	handlerExecMethod = "exec"
)

// Host runs one plugin in its own sandboxed Lua state. All guest calls
// are marshalled onto the host's executor goroutine; the handler table is
// constructed exactly once and never leaves this host.
type Host struct {
	path   string
	state  *plua.State
	exec   *plua.Executor
	cancel context.CancelFunc
	log    zerolog.Logger

	handler *lua.LTable
}

// NewHost creates a host for the plugin source at path and starts its
// executor goroutine. The caller must Close the host.
func NewHost(path string, log zerolog.Logger, opts ...plua.StateOption) *Host {
	state := plua.NewState(opts...)
	exec := plua.NewExecutor(state.LuaState(), 16)

	ctx, cancel := context.WithCancel(context.Background())
	go exec.Run(ctx)

	return &Host{
		path:   path,
		state:  state,
		exec:   exec,
		cancel: cancel,
		log:    log.With().Str("component", "host").Str("path", path).Logger(),
	}
}

// Preload makes a host module (e.g. the broker's "ed" module) available to
// the guest's require. Must be called before Load.
func (h *Host) Preload(name string, loader lua.LGFunction) {
	h.state.PreloadModule(name, loader)
}

// Load runs the plugin source and verifies the contract: the declared
// schema version must match and the required entry points must exist.
func (h *Host) Load(ctx context.Context) error {
	return h.exec.Execute(ctx, func(_ *lua.LState) error {
		if err := h.state.DoFile(ctx, h.path); err != nil {
			return fmt.Errorf("plugin: load %s: %w", h.path, err)
		}

		ver, ok := h.state.GetGlobal(globalAPIVersion).(lua.LNumber)
		if !ok {
			return fmt.Errorf("%w: %s declares no %s", ErrSchemaVersion, h.path, globalAPIVersion)
		}
		if int(ver) != schema.Version {
			return fmt.Errorf("%w: %s targets version %d, host speaks %d", ErrSchemaVersion, h.path, int(ver), schema.Version)
		}

		for _, fn := range []string{fnPluginName, fnInitialize} {
			if !h.state.HasFunction(fn) {
				return fmt.Errorf("%w: %s", ErrMissingEntryPoint, fn)
			}
		}
		return nil
	})
}

// Describe queries the plugin's declared name and dependencies.
func (h *Host) Describe(ctx context.Context) (Descriptor, error) {
	var desc Descriptor
	err := h.exec.Execute(ctx, func(L *lua.LState) error {
		results, err := h.state.Call(ctx, fnPluginName)
		if err != nil {
			return err
		}
		if len(results) == 0 || results[0].Type() != lua.LTString {
			return fmt.Errorf("plugin: %s() must return a string", fnPluginName)
		}
		name := results[0].String()
		if name == "" {
			return fmt.Errorf("plugin: %s() returned an empty name", fnPluginName)
		}
		desc = Descriptor{Name: name, Path: h.path}

		if !h.state.HasFunction(fnDependencies) {
			return nil
		}
		results, err = h.state.Call(ctx, fnDependencies)
		if err != nil {
			return err
		}
		if len(results) > 0 {
			tbl, ok := results[0].(*lua.LTable)
			if !ok {
				return fmt.Errorf("plugin: %s() must return a table", fnDependencies)
			}
			desc.Dependencies = plua.NewBridge(L).TableToStrings(tbl)
		}
		return nil
	})
	return desc, err
}

// Initialize runs the guest's initialize() and returns its declared
// commands. When commands are declared, the handler is constructed here,
// exactly once, via new_handler().
func (h *Host) Initialize(ctx context.Context) ([]schema.Command, error) {
	var commands []schema.Command
	err := h.exec.Execute(ctx, func(L *lua.LState) error {
		results, err := h.state.Call(ctx, fnInitialize)
		if err != nil {
			return err
		}

		if len(results) > 0 && results[0] != lua.LNil {
			tbl, ok := results[0].(*lua.LTable)
			if !ok {
				return fmt.Errorf("plugin: %s() must return a table or nil", fnInitialize)
			}
			commands = h.parseCommands(L, tbl)
		}

		if len(commands) == 0 {
			return nil
		}
		if !h.state.HasFunction(fnNewHandler) {
			return fmt.Errorf("%w: %s (commands declared)", ErrMissingEntryPoint, fnNewHandler)
		}
		results, err = h.state.Call(ctx, fnNewHandler)
		if err != nil {
			return err
		}
		handler, ok := firstTable(results)
		if !ok {
			return fmt.Errorf("plugin: %s() must return a handler table", fnNewHandler)
		}
		if handler.RawGetString(handlerExecMethod).Type() != lua.LTFunction {
			return fmt.Errorf("plugin: handler has no %s method", handlerExecMethod)
		}
		h.handler = handler
		return nil
	})
	return commands, err
}

// Exec invokes the plugin's handler for one validated command invocation.
// It satisfies the dispatcher's Handler interface.
func (h *Host) Exec(ctx context.Context, cmd string, args []string, rng *schema.Range) error {
	return h.exec.Execute(ctx, func(L *lua.LState) error {
		if h.handler == nil {
			return fmt.Errorf("plugin: no handler constructed for %q", cmd)
		}
		fn := h.handler.RawGetString(handlerExecMethod)

		var rngVal lua.LValue = lua.LNil
		if rng != nil {
			t := L.NewTable()
			t.RawSetString("start", lua.LNumber(rng.Start))
			t.RawSetString("stop", lua.LNumber(rng.End))
			rngVal = t
		}

		argsTbl := plua.NewBridge(L).StringsToTable(args)
		return h.state.CallValue(ctx, fn, h.handler, lua.LString(cmd), argsTbl, rngVal)
	})
}

// Shutdown runs the guest's shutdown() if it defines one.
func (h *Host) Shutdown(ctx context.Context) error {
	return h.exec.Execute(ctx, func(_ *lua.LState) error {
		if !h.state.HasFunction(fnShutdown) {
			return nil
		}
		_, err := h.state.Call(ctx, fnShutdown)
		return err
	})
}

// Close stops the executor and releases the Lua state.
func (h *Host) Close() {
	h.cancel()
	h.exec.Close()
	h.state.Close()
}

func firstTable(results []lua.LValue) (*lua.LTable, bool) {
	if len(results) == 0 {
		return nil, false
	}
	tbl, ok := results[0].(*lua.LTable)
	return tbl, ok
}

// parseCommands reads the commands array from an initialize() result.
// A malformed declaration is dropped with a warning; the plugin keeps its
// remaining commands and continues loading.
func (h *Host) parseCommands(L *lua.LState, tbl *lua.LTable) []schema.Command {
	bridge := plua.NewBridge(L)
	list, ok := bridge.TableTable(tbl, "commands")
	if !ok {
		return nil
	}

	var out []schema.Command
	for i := 1; i <= list.Len(); i++ {
		entry, ok := list.RawGetInt(i).(*lua.LTable)
		if !ok {
			h.log.Warn().Int("index", i).Msg("command declaration is not a table, dropped")
			continue
		}

		name, ok := bridge.TableString(entry, "name")
		if !ok {
			h.log.Warn().Int("index", i).Msg("command declaration has no name, dropped")
			continue
		}

		min, _ := bridge.TableInt(entry, "min")
		max, _ := bridge.TableInt(entry, "max")
		if min < 0 || min > 255 || max < 0 || max > 255 {
			h.log.Warn().Str("command", name).Msg("command arity out of range, dropped")
			continue
		}

		cmd := schema.Command{
			Name:  name,
			Arity: schema.Arity{Min: uint8(min), Max: uint8(max)},
		}
		if ranged, _ := bridge.TableBool(entry, "range"); ranged {
			cmd.Flags |= schema.FlagRange
		}
		if err := cmd.Validate(); err != nil {
			h.log.Warn().Err(err).Str("command", name).Msg("command declaration dropped")
			continue
		}
		out = append(out, cmd)
	}
	return out
}
