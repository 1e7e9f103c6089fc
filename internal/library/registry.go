// Package library holds the Starlark modules generated code may load.
//
// The built-in set is math, json, time and stats; the charts package adds
// chart. Operators can install more modules from a directory of .star files.
// A library root being allow-listed and a library being installed are
// separate facts: the sanitizer checks the first, the context builder the
// second.
package library

import (
	"sort"
	"sync"

	starjson "go.starlark.net/lib/json"
	starmath "go.starlark.net/lib/math"
	startime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
)

// Registry maps library roots to installed modules. It is safe for
// concurrent use so a directory watcher can reload it.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]starlark.Value
	custom  map[string]bool
}

// NewRegistry returns a registry with the built-in modules installed.
func NewRegistry() *Registry {
	r := &Registry{
		modules: make(map[string]starlark.Value),
		custom:  make(map[string]bool),
	}
	r.Register("math", starmath.Module)
	r.Register("json", starjson.Module)
	r.Register("time", startime.Module)
	r.Register(StatsModuleName, StatsModule)
	return r
}

// Register installs module under name, replacing any previous module.
func (r *Registry) Register(name string, module starlark.Value) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[name] = module
}

// Module returns the module installed under name.
func (r *Registry) Module(name string) (starlark.Value, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	return m, ok
}

// Member returns symbol from the module installed under name. When the module
// has no such member the whole module is returned, so `load("stats", "stats")`
// binds the module itself.
func (r *Registry) Member(name, symbol string) (starlark.Value, bool) {
	m, ok := r.Module(name)
	if !ok {
		return nil, false
	}
	if attrs, ok := m.(starlark.HasAttrs); ok {
		if v, err := attrs.Attr(symbol); err == nil && v != nil {
			return v, true
		}
	}
	return m, true
}

// Names returns the installed library names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReplaceCustom swaps the modules loaded from disk for modules. Modules
// registered in code are never replaced; their names are returned as
// conflicts.
func (r *Registry) ReplaceCustom(modules []*LoadedModule) (conflicts []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name := range r.custom {
		delete(r.modules, name)
	}
	r.custom = make(map[string]bool, len(modules))
	for _, m := range modules {
		if _, taken := r.modules[m.Name]; taken {
			conflicts = append(conflicts, m.Name)
			continue
		}
		r.modules[m.Name] = m.Module()
		r.custom[m.Name] = true
	}
	return conflicts
}
