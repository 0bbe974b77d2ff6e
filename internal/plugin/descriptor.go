package plugin

// Descriptor identifies a loaded plugin. It is immutable once produced by
// the describe phase; the resolver and manager treat it as a value.
type Descriptor struct {
	// Name is the plugin's self-declared identity, unique per load session.
	Name string
	// Dependencies lists plugin names that must initialize first.
	Dependencies []string
	// Path is the source file the plugin was loaded from.
	Path string
}
