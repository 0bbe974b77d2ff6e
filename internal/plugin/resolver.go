package plugin

import "fmt"

// Resolution is the outcome of dependency resolution over one load
// session. Order lists the plugins that can initialize, dependencies
// before dependents; Excluded maps every plugin that cannot initialize to
// the reason. A plugin appears in exactly one of the two.
type Resolution struct {
	Order    []string
	Excluded map[string]error
}

// Resolve orders descriptors so that every dependency initializes before
// its dependents. Ties are broken by discovery order (the order of descs),
// making the result fully deterministic for a given input.
//
// Failures are isolated to the affected subgraph: a missing dependency or
// a cycle excludes the plugins involved and their transitive dependents,
// and nothing else.
func Resolve(descs []Descriptor) Resolution {
	res := Resolution{Excluded: make(map[string]error)}

	index := make(map[string]int, len(descs))
	for i, d := range descs {
		index[d.Name] = i
	}

	// Plugins with a dependency nobody provides are out immediately.
	for _, d := range descs {
		for _, dep := range d.Dependencies {
			if _, ok := index[dep]; !ok {
				res.Excluded[d.Name] = &UnresolvedDependencyError{Plugin: d.Name, Missing: dep}
				break
			}
		}
	}

	propagateExclusions(descs, res.Excluded)

	// Kahn's algorithm over the surviving subgraph, edge dep -> dependent.
	indegree := make(map[string]int)
	dependents := make(map[string][]string)
	for _, d := range descs {
		if _, out := res.Excluded[d.Name]; out {
			continue
		}
		indegree[d.Name] = len(d.Dependencies)
		for _, dep := range d.Dependencies {
			dependents[dep] = append(dependents[dep], d.Name)
		}
	}

	ordered := make(map[string]bool)
	for len(res.Order) < len(indegree) {
		// Pick the ready plugin that was discovered earliest.
		next := ""
		for _, d := range descs {
			if _, out := res.Excluded[d.Name]; out {
				continue
			}
			if !ordered[d.Name] && indegree[d.Name] == 0 {
				next = d.Name
				break
			}
		}
		if next == "" {
			break // remainder is cyclic
		}

		ordered[next] = true
		res.Order = append(res.Order, next)
		for _, dep := range dependents[next] {
			indegree[dep]--
		}
	}

	// Everything not ordered and not yet excluded sits on or behind a
	// cycle. Only actual cycle members belong in the cycle error; plugins
	// that merely depend on the cycle are excluded as failed dependents.
	if len(res.Order) < len(indegree) {
		unordered := make(map[string]bool)
		for _, d := range descs {
			if _, out := res.Excluded[d.Name]; out {
				continue
			}
			if !ordered[d.Name] {
				unordered[d.Name] = true
			}
		}

		deps := make(map[string][]string, len(unordered))
		for _, d := range descs {
			if unordered[d.Name] {
				deps[d.Name] = d.Dependencies
			}
		}

		var cycle []string
		for _, d := range descs {
			if unordered[d.Name] && reachesSelf(d.Name, deps) {
				cycle = append(cycle, d.Name)
			}
		}
		err := &DependencyCycleError{Cycle: cycle}
		for _, name := range cycle {
			res.Excluded[name] = err
		}
		propagateExclusions(descs, res.Excluded)
	}

	return res
}

// reachesSelf reports whether start can reach itself by following
// dependency edges within deps.
func reachesSelf(start string, deps map[string][]string) bool {
	seen := make(map[string]bool)
	stack := append([]string(nil), deps[start]...)
	for len(stack) > 0 {
		name := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if name == start {
			return true
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		stack = append(stack, deps[name]...)
	}
	return false
}

// propagateExclusions marks every transitive dependent of an excluded
// plugin as excluded, naming the failed dependency.
func propagateExclusions(descs []Descriptor, excluded map[string]error) {
	for changed := true; changed; {
		changed = false
		for _, d := range descs {
			if _, out := excluded[d.Name]; out {
				continue
			}
			for _, dep := range d.Dependencies {
				if cause, out := excluded[dep]; out {
					excluded[d.Name] = fmt.Errorf("%w: %s (%v)", ErrDependencyFailed, dep, cause)
					changed = true
					break
				}
			}
		}
	}
}
