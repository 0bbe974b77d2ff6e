package plugin

import (
	"errors"
	"fmt"
	"strings"
)

// Load and lifecycle errors.
var (
	// ErrSchemaVersion - the plugin targets a schema version this host does
	// not speak.
	ErrSchemaVersion = errors.New("plugin: unsupported schema version")
	// ErrMissingEntryPoint - the plugin omits a required guest function.
	ErrMissingEntryPoint = errors.New("plugin: missing entry point")
	// ErrDuplicateName - two discovered plugins declared the same name.
	ErrDuplicateName = errors.New("plugin: duplicate plugin name")
	// ErrDependencyFailed - a declared dependency was present but did not
	// reach the active state.
	ErrDependencyFailed = errors.New("plugin: dependency failed")
	// ErrNotFound - no plugin with that name is loaded.
	ErrNotFound = errors.New("plugin: not found")
	// ErrNoWatchablePaths - none of the configured search paths can be
	// watched.
	ErrNoWatchablePaths = errors.New("plugin: no watchable search paths")
)

// UnresolvedDependencyError reports a declared dependency that no
// discovered plugin provides.
type UnresolvedDependencyError struct {
	Plugin  string
	Missing string
}

func (e *UnresolvedDependencyError) Error() string {
	return fmt.Sprintf("plugin: %s depends on %s, which is not present", e.Plugin, e.Missing)
}

// DependencyCycleError reports a dependency cycle. Cycle lists the
// affected plugins in discovery order.
type DependencyCycleError struct {
	Cycle []string
}

func (e *DependencyCycleError) Error() string {
	return fmt.Sprintf("plugin: dependency cycle involving %s", strings.Join(e.Cycle, ", "))
}
