package plugin

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// Candidate is a discovered plugin source before it has been loaded. Its
// name is provisional, taken from the filesystem; the plugin's declared
// name from plugin_name() is authoritative once loaded.
type Candidate struct {
	Name string
	Path string
}

// Loader discovers plugin sources in the configured search paths. A plugin
// is either a bare "<name>.lua" file or a "<name>/init.lua" directory.
type Loader struct {
	paths []string
	log   zerolog.Logger
}

// NewLoader creates a loader over the given search paths. Earlier paths
// shadow later ones.
func NewLoader(paths []string, log zerolog.Logger) *Loader {
	return &Loader{
		paths: paths,
		log:   log.With().Str("component", "loader").Logger(),
	}
}

// Discover scans the search paths and returns candidates in deterministic
// order: paths in configured order, entries within a path sorted by name.
// The first path to provide a name wins; shadowed candidates are logged
// and dropped. Missing search paths are skipped.
func (l *Loader) Discover() ([]Candidate, error) {
	var out []Candidate
	seen := make(map[string]string) // name -> winning path

	for _, dir := range l.paths {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				l.log.Debug().Str("path", dir).Msg("search path missing, skipped")
				continue
			}
			return nil, err
		}

		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

		for _, entry := range entries {
			c, ok := l.candidate(dir, entry.Name(), entry.IsDir())
			if !ok {
				continue
			}
			if prev, dup := seen[c.Name]; dup {
				l.log.Warn().
					Str("plugin", c.Name).
					Str("shadowed", c.Path).
					Str("winner", prev).
					Msg("shadowed plugin skipped")
				continue
			}
			seen[c.Name] = c.Path
			out = append(out, c)
		}
	}
	return out, nil
}

func (l *Loader) candidate(dir, name string, isDir bool) (Candidate, bool) {
	if isDir {
		init := filepath.Join(dir, name, "init.lua")
		if _, err := os.Stat(init); err != nil {
			return Candidate{}, false
		}
		return Candidate{Name: name, Path: init}, true
	}
	if !strings.HasSuffix(name, ".lua") {
		return Candidate{}, false
	}
	return Candidate{
		Name: strings.TrimSuffix(name, ".lua"),
		Path: filepath.Join(dir, name),
	}, true
}
