// Package skills manages operator-provided functions that generated code can
// call by name. A skill is bound into an execution context only when the
// code calls it, and every bound skill is recorded as used for the current
// query.
package skills

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.starlark.net/starlark"
)

// Skill is a named callable with a description for prompts.
type Skill struct {
	Name      string
	Args      []string
	Docstring string
	Fn        starlark.Callable
}

// Signature returns the call signature, e.g. "plot_revenue(table, year=None)".
func (s *Skill) Signature() string {
	return s.Name + "(" + strings.Join(s.Args, ", ") + ")"
}

// Registry holds skills and the skills used by the current query.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]*Skill
	used   map[string]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		skills: make(map[string]*Skill),
		used:   make(map[string]bool),
	}
}

// Add registers skills. A name may be registered only once.
func (r *Registry) Add(skills ...*Skill) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range skills {
		if s.Fn == nil {
			return fmt.Errorf("skill %q has no function", s.Name)
		}
		if _, exists := r.skills[s.Name]; exists {
			return fmt.Errorf("skill %q already registered", s.Name)
		}
		r.skills[s.Name] = s
	}
	return nil
}

// Replace swaps every registered skill for skills and clears the used-set.
func (r *Registry) Replace(skills []*Skill) error {
	fresh := NewRegistry()
	if err := fresh.Add(skills...); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skills = fresh.skills
	r.used = fresh.used
	return nil
}

// Get returns the skill registered under name.
func (r *Registry) Get(name string) (*Skill, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skills[name]
	return s, ok
}

// Names returns the registered skill names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.skills)
}

// MarkUsed records name as used by the current query.
func (r *Registry) MarkUsed(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.used[name] = true
}

// Used returns the skills used since the last ResetUsed, sorted.
func (r *Registry) Used() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.used)
}

// ResetUsed clears the used-set. Callers reset it between queries.
func (r *Registry) ResetUsed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.used = make(map[string]bool)
}

// Describe renders the registered skills for a prompt, in name order.
func (r *Registry) Describe() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var b strings.Builder
	for _, name := range sortedKeys(r.skills) {
		s := r.skills[name]
		fmt.Fprintf(&b, "def %s:\n", s.Signature())
		if s.Docstring != "" {
			for _, line := range strings.Split(s.Docstring, "\n") {
				fmt.Fprintf(&b, "    %s\n", strings.TrimRight(line, " "))
			}
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
