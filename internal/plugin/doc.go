// Package plugin implements the Vail plugin execution core: discovery,
// dependency resolution, lifecycle management, and command dispatch for
// sandboxed Lua plugins.
//
// A load session proceeds in phases. The Loader discovers plugin sources
// in the configured search paths; each candidate gets its own Host with a
// sandboxed Lua state and the "ed" capability module bound to a broker
// session. All candidates are loaded and described, the Resolver orders
// them so dependencies initialize before dependents, and the Manager then
// initializes each plugin in turn, registering the commands it declares.
// Failures are isolated: a plugin that fails any phase is excluded along
// with its transitive dependents, and unrelated plugins proceed.
//
// Shutdown unwinds in exact reverse of initialization order. Guest
// shutdown hooks are best-effort; commands are deregistered and broker
// sessions revoked unconditionally, so handles held by a dead plugin can
// never touch editor state again.
//
// Subpackages: schema holds the host/guest contract types, lua the
// sandboxed runtime, broker the capability gateway, and dispatch the
// command registry and dispatcher.
package plugin
