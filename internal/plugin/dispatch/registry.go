// Package dispatch owns the command namespace: plugins contribute command
// declarations during initialization, and user invocations are validated
// against those declarations before any guest code runs.
package dispatch

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vail-editor/vail/internal/plugin/schema"
)

// Handler executes one command invocation on behalf of its owning plugin.
// A validated range is passed through as declared; rng is nil when the
// invocation carried none.
type Handler interface {
	Exec(ctx context.Context, cmd string, args []string, rng *schema.Range) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, cmd string, args []string, rng *schema.Range) error

// Exec calls f.
func (f HandlerFunc) Exec(ctx context.Context, cmd string, args []string, rng *schema.Range) error {
	return f(ctx, cmd, args, rng)
}

// Binding ties a registered command to its owning plugin and handler.
type Binding struct {
	Owner   string
	Command schema.Command
	Handler Handler
}

// Registry maps command names to bindings. Names are global; on a
// collision the first registrant wins and the loser is logged and dropped.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Binding
	log    zerolog.Logger
}

// NewRegistry creates an empty command registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		byName: make(map[string]Binding),
		log:    log.With().Str("component", "registry").Logger(),
	}
}

// Register binds a command declaration to its handler. It reports whether
// the binding took effect: an invalid declaration returns an error, a name
// already claimed by another plugin is dropped with a warning.
func (r *Registry) Register(owner string, cmd schema.Command, h Handler) (bool, error) {
	if err := cmd.Validate(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byName[cmd.Name]; ok {
		r.log.Warn().
			Str("command", cmd.Name).
			Str("owner", prev.Owner).
			Str("rejected", owner).
			Msg("duplicate command registration dropped")
		return false, nil
	}

	r.byName[cmd.Name] = Binding{Owner: owner, Command: cmd, Handler: h}
	r.log.Debug().Str("command", cmd.Name).Str("owner", owner).Msg("command registered")
	return true, nil
}

// Lookup returns the binding for a command name.
func (r *Registry) Lookup(name string) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byName[name]
	return b, ok
}

// DeregisterOwner removes every command the plugin registered and returns
// how many were removed. Called when a plugin shuts down or faults.
func (r *Registry) DeregisterOwner(owner string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for name, b := range r.byName {
		if b.Owner == owner {
			delete(r.byName, name)
			n++
		}
	}
	if n > 0 {
		r.log.Debug().Str("owner", owner).Int("commands", n).Msg("commands deregistered")
	}
	return n
}

// Commands returns all bindings sorted by command name.
func (r *Registry) Commands() []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Binding, 0, len(r.byName))
	for _, b := range r.byName {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Command.Name < out[j].Command.Name })
	return out
}
