package plugin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"

	"github.com/vail-editor/vail/internal/plugin/schema"
)

func writePluginSource(t *testing.T, code string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "init.lua")
	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestHost(t *testing.T, code string) *Host {
	t.Helper()
	h := NewHost(writePluginSource(t, code), zerolog.Nop())
	t.Cleanup(h.Close)
	return h
}

const minimalPlugin = `
api_version = 1
function plugin_name() return "mini" end
function initialize() end
`

func TestHostLoadAndDescribe(t *testing.T) {
	h := newTestHost(t, `
		api_version = 1
		function plugin_name() return "core" end
		function dependencies() return { "base", "util" } end
		function initialize() end
	`)

	ctx := context.Background()
	if err := h.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	desc, err := h.Describe(ctx)
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if desc.Name != "core" {
		t.Errorf("Name = %q, want core", desc.Name)
	}
	if len(desc.Dependencies) != 2 || desc.Dependencies[0] != "base" || desc.Dependencies[1] != "util" {
		t.Errorf("Dependencies = %v, want [base util]", desc.Dependencies)
	}
}

func TestHostSchemaVersionMismatch(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{"wrong version", `
			api_version = 99
			function plugin_name() return "p" end
			function initialize() end
		`},
		{"no version", `
			function plugin_name() return "p" end
			function initialize() end
		`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHost(t, tt.code)
			if err := h.Load(context.Background()); !errors.Is(err, ErrSchemaVersion) {
				t.Errorf("Load() = %v, want ErrSchemaVersion", err)
			}
		})
	}
}

func TestHostMissingEntryPoint(t *testing.T) {
	h := newTestHost(t, `
		api_version = 1
		function plugin_name() return "p" end
	`)
	if err := h.Load(context.Background()); !errors.Is(err, ErrMissingEntryPoint) {
		t.Errorf("Load() = %v, want ErrMissingEntryPoint", err)
	}
}

func TestHostInitializeDeclaresCommands(t *testing.T) {
	h := newTestHost(t, `
		api_version = 1
		function plugin_name() return "p" end
		function initialize()
			return { commands = {
				{ name = "yank", min = 0, max = 1 },
				{ name = "sort", min = 0, max = 0, range = true },
			} }
		end
		function new_handler()
			return { exec = function(self, cmd, args, range) end }
		end
	`)

	ctx := context.Background()
	if err := h.Load(ctx); err != nil {
		t.Fatal(err)
	}
	commands, err := h.Initialize(ctx)
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if len(commands) != 2 {
		t.Fatalf("commands = %v, want 2", commands)
	}
	if commands[0].Name != "yank" || commands[0].Arity != (schema.Arity{Min: 0, Max: 1}) {
		t.Errorf("commands[0] = %+v", commands[0])
	}
	if !commands[1].Flags.Has(schema.FlagRange) {
		t.Errorf("sort should carry the range flag: %+v", commands[1])
	}
}

func TestHostInitializeNoCommands(t *testing.T) {
	h := newTestHost(t, minimalPlugin)

	ctx := context.Background()
	if err := h.Load(ctx); err != nil {
		t.Fatal(err)
	}
	commands, err := h.Initialize(ctx)
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if len(commands) != 0 {
		t.Errorf("commands = %v, want none", commands)
	}
}

func TestHostCommandsRequireHandler(t *testing.T) {
	h := newTestHost(t, `
		api_version = 1
		function plugin_name() return "p" end
		function initialize()
			return { commands = { { name = "x" } } }
		end
	`)

	ctx := context.Background()
	if err := h.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Initialize(ctx); !errors.Is(err, ErrMissingEntryPoint) {
		t.Errorf("Initialize() = %v, want ErrMissingEntryPoint", err)
	}
}

func TestHostExecPassesArgsAndRange(t *testing.T) {
	h := newTestHost(t, `
		api_version = 1
		function plugin_name() return "p" end
		function initialize()
			return { commands = { { name = "say", min = 0, max = 2, range = true } } }
		end
		function new_handler()
			return {
				exec = function(self, cmd, args, range)
					last_cmd = cmd
					last_args = table.concat(args, ",")
					if range then
						last_range = range.start .. "-" .. range.stop
					end
				end,
			}
		end
	`)

	ctx := context.Background()
	if err := h.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Initialize(ctx); err != nil {
		t.Fatal(err)
	}

	rng := &schema.Range{Start: 2, End: 8}
	if err := h.Exec(ctx, "say", []string{"a", "b"}, rng); err != nil {
		t.Fatalf("Exec() error = %v", err)
	}

	if got := h.state.GetGlobal("last_cmd").String(); got != "say" {
		t.Errorf("last_cmd = %q, want say", got)
	}
	if got := h.state.GetGlobal("last_args").String(); got != "a,b" {
		t.Errorf("last_args = %q, want a,b", got)
	}
	if got := h.state.GetGlobal("last_range").String(); got != "2-8" {
		t.Errorf("last_range = %q, want 2-8", got)
	}
}

func TestHostHandlerConstructedOnce(t *testing.T) {
	h := newTestHost(t, `
		api_version = 1
		handler_count = 0
		function plugin_name() return "p" end
		function initialize()
			return { commands = { { name = "noop" } } }
		end
		function new_handler()
			handler_count = handler_count + 1
			return { exec = function(self, cmd, args, range) end }
		end
	`)

	ctx := context.Background()
	if err := h.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := h.Exec(ctx, "noop", nil, nil); err != nil {
			t.Fatal(err)
		}
	}

	if got := h.state.GetGlobal("handler_count"); got != lua.LNumber(1) {
		t.Errorf("handler_count = %v, want 1", got)
	}
}

func TestHostGuestErrorSurfacesFromExec(t *testing.T) {
	h := newTestHost(t, `
		api_version = 1
		function plugin_name() return "p" end
		function initialize()
			return { commands = { { name = "boom" } } }
		end
		function new_handler()
			return { exec = function(self, cmd, args, range) error("deliberate") end }
		end
	`)

	ctx := context.Background()
	if err := h.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.Exec(ctx, "boom", nil, nil); err == nil {
		t.Error("Exec() should surface the guest error")
	}
}

func TestHostDropsInvalidDeclaration(t *testing.T) {
	// One malformed declaration costs only itself, not the plugin.
	h := newTestHost(t, `
		api_version = 1
		function plugin_name() return "p" end
		function initialize()
			return { commands = {
				{ name = "good", min = 0, max = 1 },
				{ name = "bad", min = 5, max = 1 },
				"not a table",
				{ min = 0, max = 0 },
			} }
		end
		function new_handler()
			return { exec = function() end }
		end
	`)

	ctx := context.Background()
	if err := h.Load(ctx); err != nil {
		t.Fatal(err)
	}
	commands, err := h.Initialize(ctx)
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if len(commands) != 1 || commands[0].Name != "good" {
		t.Errorf("commands = %v, want only good", commands)
	}
}
