package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vail-editor/vail/internal/plugin/schema"
)

// FaultFunc is notified when a handler faults, after the plugin's commands
// have been deregistered. The lifecycle manager uses it to move the plugin
// to its faulted state.
type FaultFunc func(plugin string, err error)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithFaultHandler installs the fault notification callback.
func WithFaultHandler(f FaultFunc) Option {
	return func(d *Dispatcher) { d.onFault = f }
}

// Dispatcher validates invocations against the registry and runs them one
// at a time. Handlers that need to trigger further commands must use
// Enqueue; calling Dispatch from inside a handler would deadlock on the
// serialization lock.
type Dispatcher struct {
	reg     *Registry
	log     zerolog.Logger
	onFault FaultFunc

	runMu sync.Mutex

	qMu   sync.Mutex
	queue []invocation
}

type invocation struct {
	name string
	args []string
	rng  *schema.Range
}

// NewDispatcher creates a dispatcher over the registry.
func NewDispatcher(reg *Registry, log zerolog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		reg: reg,
		log: log.With().Str("component", "dispatcher").Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch validates and executes one invocation, then drains anything
// handlers enqueued while it ran. The returned error reflects only the
// primary invocation; enqueued follow-ups report through the log and the
// fault callback.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args []string, rng *schema.Range) error {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	err := d.dispatchOne(ctx, name, args, rng)
	d.drain(ctx)
	return err
}

// Enqueue schedules an invocation to run after the in-flight dispatch
// completes. Invocations run in enqueue order.
func (d *Dispatcher) Enqueue(name string, args []string, rng *schema.Range) {
	d.qMu.Lock()
	d.queue = append(d.queue, invocation{name: name, args: args, rng: rng})
	d.qMu.Unlock()
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		d.qMu.Lock()
		if len(d.queue) == 0 {
			d.qMu.Unlock()
			return
		}
		inv := d.queue[0]
		d.queue = d.queue[1:]
		d.qMu.Unlock()

		if err := d.dispatchOne(ctx, inv.name, inv.args, inv.rng); err != nil {
			d.log.Warn().Err(err).Str("command", inv.name).Msg("enqueued dispatch failed")
		}
	}
}

func (d *Dispatcher) dispatchOne(ctx context.Context, name string, args []string, rng *schema.Range) error {
	b, ok := d.reg.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrCommandNotFound, name)
	}

	if !b.Command.Arity.Contains(len(args)) {
		return &ArityViolationError{Command: name, Arity: b.Command.Arity, Got: len(args)}
	}

	hasRange := b.Command.Flags.Has(schema.FlagRange)
	switch {
	case rng != nil && !hasRange:
		return fmt.Errorf("%w: %q", ErrRangeNotSupported, name)
	case rng == nil && hasRange:
		return fmt.Errorf("%w: %q", ErrRangeRequired, name)
	}

	if err := b.Handler.Exec(ctx, name, args, rng); err != nil {
		return d.fault(b, err)
	}
	return nil
}

// fault deregisters the faulting plugin's commands and notifies the
// lifecycle callback. State the handler committed before the fault stays
// committed.
func (d *Dispatcher) fault(b Binding, err error) error {
	fault := &HandlerFaultError{Plugin: b.Owner, Command: b.Command.Name, Err: err}
	d.log.Error().
		Err(err).
		Str("plugin", b.Owner).
		Str("command", b.Command.Name).
		Msg("handler faulted")

	d.reg.DeregisterOwner(b.Owner)
	if d.onFault != nil {
		d.onFault(b.Owner, fault)
	}
	return fault
}
