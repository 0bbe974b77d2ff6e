package plugin

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vail-editor/vail/internal/plugin/broker"
	"github.com/vail-editor/vail/internal/plugin/dispatch"
	plua "github.com/vail-editor/vail/internal/plugin/lua"
	"github.com/vail-editor/vail/internal/plugin/schema"
)

// instance tracks one plugin through a load session.
type instance struct {
	candidate Candidate
	desc      Descriptor
	host      *Host
	state     State
	err       error
}

// Info is a read-only snapshot of a plugin's lifecycle state.
type Info struct {
	Name  string
	Path  string
	State State
	Err   error
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithStateOptions forwards Lua state options (e.g. the execution
// budget) to every plugin host.
func WithStateOptions(opts ...plua.StateOption) ManagerOption {
	return func(m *Manager) { m.stateOpts = opts }
}

// Manager drives plugin lifecycle: discovery, dependency resolution,
// ordered initialization, command registration, and reverse-order
// shutdown. Failures are isolated per plugin; one broken plugin never
// takes down an unrelated one.
type Manager struct {
	loader     *Loader
	broker     *broker.Broker
	registry   *dispatch.Registry
	dispatcher *dispatch.Dispatcher
	log        zerolog.Logger
	stateOpts  []plua.StateOption

	mu      sync.RWMutex
	plugins map[string]*instance
	order   []string // initialization order of active plugins
	session string   // current load-session id
}

// NewManager creates a manager over the loader and broker. It owns the
// command registry and dispatcher.
func NewManager(loader *Loader, b *broker.Broker, log zerolog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		loader:  loader,
		broker:  b,
		log:     log.With().Str("component", "manager").Logger(),
		plugins: make(map[string]*instance),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.registry = dispatch.NewRegistry(log)
	m.dispatcher = dispatch.NewDispatcher(m.registry, log, dispatch.WithFaultHandler(m.fault))
	return m
}

// Load runs one load session: discover, load and describe every
// candidate, resolve dependencies, then initialize in resolved order and
// register the declared commands. Plugins that fail any phase are
// excluded together with their transitive dependents; the rest proceed.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.order) > 0 {
		m.shutdownLocked(ctx)
	}

	m.session = uuid.NewString()
	log := m.log.With().Str("load_session", m.session).Logger()

	candidates, err := m.loader.Discover()
	if err != nil {
		return fmt.Errorf("plugin: discovery failed: %w", err)
	}
	log.Info().Int("candidates", len(candidates)).Msg("load session started")

	described := m.loadAll(ctx, candidates, log)

	descs := make([]Descriptor, 0, len(described))
	for _, inst := range described {
		descs = append(descs, inst.desc)
	}
	res := Resolve(descs)

	for name, cause := range res.Excluded {
		inst := m.plugins[name]
		m.failInstance(inst, cause, log)
	}

	for _, name := range res.Order {
		m.initialize(ctx, m.plugins[name], log)
	}

	log.Info().Int("active", len(m.order)).Msg("load session complete")
	return nil
}

// loadAll loads and describes every candidate, recording failures. It
// returns the successfully described instances in discovery order.
func (m *Manager) loadAll(ctx context.Context, candidates []Candidate, log zerolog.Logger) []*instance {
	var described []*instance
	for _, cand := range candidates {
		inst := &instance{candidate: cand, state: StateUnloaded}

		host := NewHost(cand.Path, log, m.stateOpts...)
		inst.host = host
		session := m.broker.OpenSession(cand.Name)
		host.Preload(broker.ModuleName, m.broker.ModuleLoader(session))

		if err := host.Load(ctx); err != nil {
			m.plugins[cand.Name] = inst
			m.failInstance(inst, err, log)
			continue
		}

		desc, err := host.Describe(ctx)
		if err != nil {
			m.plugins[cand.Name] = inst
			m.failInstance(inst, err, log)
			continue
		}
		inst.desc = desc

		if _, dup := m.plugins[desc.Name]; dup {
			m.plugins[cand.Name] = inst
			m.failInstance(inst, fmt.Errorf("%w: %s", ErrDuplicateName, desc.Name), log)
			continue
		}

		m.plugins[desc.Name] = inst
		described = append(described, inst)
	}
	return described
}

// initialize moves one resolved plugin to Active, registering its
// commands. A dependency that did not reach Active fails the plugin.
func (m *Manager) initialize(ctx context.Context, inst *instance, log zerolog.Logger) {
	name := inst.desc.Name

	for _, dep := range inst.desc.Dependencies {
		if d, ok := m.plugins[dep]; !ok || d.state != StateActive {
			m.failInstance(inst, fmt.Errorf("%w: %s", ErrDependencyFailed, dep), log)
			return
		}
	}

	inst.state = StateInitializing
	commands, err := inst.host.Initialize(ctx)
	if err != nil {
		m.failInstance(inst, err, log)
		return
	}

	registered := 0
	for _, cmd := range commands {
		ok, err := m.registry.Register(name, cmd, inst.host)
		if err != nil {
			log.Warn().Err(err).Str("plugin", name).Str("command", cmd.Name).Msg("command registration rejected")
			continue
		}
		if ok {
			registered++
		}
	}

	inst.state = StateActive
	m.order = append(m.order, name)
	log.Info().Str("plugin", name).Int("commands", registered).Msg("plugin active")
}

// failInstance marks a plugin Failed and releases its resources.
func (m *Manager) failInstance(inst *instance, err error, log zerolog.Logger) {
	inst.state = StateFailed
	inst.err = err
	m.broker.CloseSession(inst.candidate.Name)
	inst.host.Close()
	log.Warn().Err(err).Str("plugin", inst.name()).Msg("plugin failed")
}

func (inst *instance) name() string {
	if inst.desc.Name != "" {
		return inst.desc.Name
	}
	return inst.candidate.Name
}

// Shutdown unwinds the session in exact reverse of initialization order.
// Guest shutdown failures are logged, never propagated; every plugin's
// commands are deregistered and its broker session revoked regardless.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownLocked(ctx)
}

func (m *Manager) shutdownLocked(ctx context.Context) {
	log := m.log.With().Str("load_session", m.session).Logger()

	for i := len(m.order) - 1; i >= 0; i-- {
		name := m.order[i]
		inst := m.plugins[name]
		if inst == nil || inst.state != StateActive {
			continue
		}

		inst.state = StateShuttingDown
		// Commands come out of the registry before the shutdown hook runs,
		// so a dispatch racing shutdown cannot reach a departing plugin.
		m.registry.DeregisterOwner(name)
		if err := inst.host.Shutdown(ctx); err != nil {
			log.Error().Err(err).Str("plugin", name).Msg("shutdown hook failed")
		}

		m.broker.CloseSession(inst.candidate.Name)
		inst.host.Close()
		inst.state = StateUnloaded
		log.Info().Str("plugin", name).Msg("plugin unloaded")
	}

	// The session's resolution data does not survive teardown.
	m.order = nil
	m.plugins = make(map[string]*instance)
	m.session = ""
}

// Reload tears the current session down and runs a fresh one.
func (m *Manager) Reload(ctx context.Context) error {
	m.Shutdown(ctx)
	return m.Load(ctx)
}

// fault is the dispatcher's fault callback: the plugin's commands are
// already deregistered when it runs.
func (m *Manager) fault(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.plugins[name]
	if !ok {
		return
	}
	inst.state = StateFaulted
	inst.err = err
	m.broker.CloseSession(inst.candidate.Name)
	inst.host.Close()
	m.log.Error().Err(err).Str("plugin", name).Msg("plugin faulted")
}

// Dispatch validates and executes one command invocation.
func (m *Manager) Dispatch(ctx context.Context, name string, args []string, rng *schema.Range) error {
	return m.dispatcher.Dispatch(ctx, name, args, rng)
}

// Enqueue schedules an invocation to run after the in-flight dispatch.
func (m *Manager) Enqueue(name string, args []string, rng *schema.Range) {
	m.dispatcher.Enqueue(name, args, rng)
}

// Commands lists all registered commands sorted by name.
func (m *Manager) Commands() []dispatch.Binding {
	return m.registry.Commands()
}

// Plugins returns lifecycle snapshots of every known plugin, sorted by
// name.
func (m *Manager) Plugins() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Info, 0, len(m.plugins))
	for name, inst := range m.plugins {
		out = append(out, Info{Name: name, Path: inst.candidate.Path, State: inst.state, Err: inst.err})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Plugin returns the lifecycle snapshot for one plugin.
func (m *Manager) Plugin(name string) (Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inst, ok := m.plugins[name]
	if !ok {
		return Info{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return Info{Name: name, Path: inst.candidate.Path, State: inst.state, Err: inst.err}, nil
}
